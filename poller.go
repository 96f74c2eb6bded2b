package hxcommunity

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PollFunc is one polling round. It should check ctx before applying
// results so nothing lands after Stop.
type PollFunc func(ctx context.Context) error

// Poller runs a PollFunc immediately and then every interval. Consecutive
// failures stretch the wait exponentially, up to maxFactor times the
// interval; the first success resets it.
type Poller struct {
	interval  time.Duration
	maxFactor int
	fn        PollFunc
	logger    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(interval time.Duration, fn PollFunc) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		interval:  interval,
		maxFactor: 8,
		fn:        fn,
		logger:    log.Logger.With().Str("component", "poller").Logger(),
	}
}

// Start launches the polling goroutine. Starting a live poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

// Stop cancels the poller and waits for the current round to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Live reports whether the poller has been started and not stopped.
func (p *Poller) Live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) newBackOff() *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.interval * 2
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = p.interval * time.Duration(p.maxFactor)
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	exp := p.newBackOff()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := p.interval
		if err := p.fn(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = exp.NextBackOff()
			p.logger.Warn().Err(err).Dur("next", wait).Msg("poll failed")
		} else {
			exp.Reset()
		}
		timer.Reset(wait)
	}
}
