package hxcommunity

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Registration owns the worker generations for one origin. A newly
// registered worker installs, then waits until the active worker retires
// or skipWaiting is requested.
type Registration struct {
	network http.RoundTripper
	logger  zerolog.Logger

	mu      sync.Mutex
	active  *Worker
	waiting *Worker
}

func NewRegistration(network http.RoundTripper) *Registration {
	if network == nil {
		network = http.DefaultTransport
	}
	return &Registration{
		network: network,
		logger:  log.Logger.With().Str("component", "registration").Logger(),
	}
}

// Register installs w. With no active worker, or when w asks to skip
// waiting, it activates immediately and the previous worker retires.
// Otherwise it is parked as the waiting worker.
func (r *Registration) Register(ctx context.Context, w *Worker) error {
	if err := w.Install(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	if r.active != nil && !w.skipWaitingRequested() {
		if r.waiting != nil && r.waiting != w {
			r.waiting.retire()
		}
		r.waiting = w
		r.mu.Unlock()
		r.logger.Info().Str("cache", w.CacheName()).Msg("worker installed, waiting")
		return nil
	}
	r.mu.Unlock()
	return r.promote(ctx, w)
}

// SkipWaiting activates the waiting worker, if there is one.
func (r *Registration) SkipWaiting(ctx context.Context) error {
	r.mu.Lock()
	w := r.waiting
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	w.SkipWaiting()
	return r.promote(ctx, w)
}

// PostMessage delivers a control message. "skipWaiting" promotes the
// waiting worker.
func (r *Registration) PostMessage(ctx context.Context, msg string) error {
	if msg != ControlSkipWaiting {
		r.logger.Debug().Str("message", msg).Msg("ignored control message")
		return nil
	}
	return r.SkipWaiting(ctx)
}

func (r *Registration) promote(ctx context.Context, w *Worker) error {
	r.mu.Lock()
	prev := r.active
	r.active = w
	if r.waiting == w {
		r.waiting = nil
	}
	r.mu.Unlock()

	if prev != nil && prev != w {
		prev.retire()
	}
	if err := w.Activate(ctx); err != nil {
		return err
	}
	r.logger.Info().Str("cache", w.CacheName()).Msg("worker activated")
	return nil
}

func (r *Registration) Active() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Registration) Waiting() *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// RoundTrip routes through the active worker, or straight to the network
// when none is active.
func (r *Registration) RoundTrip(req *http.Request) (*http.Response, error) {
	if w := r.Active(); w != nil {
		return w.RoundTrip(req)
	}
	return r.network.RoundTrip(req)
}

func (r *Registration) HandlePush(ctx context.Context, payload []byte) error {
	w := r.Active()
	if w == nil {
		return ErrNoActiveWorker
	}
	return w.HandlePush(ctx, payload)
}

func (r *Registration) HandleNotificationClick(ctx context.Context, n NotificationSpec) error {
	w := r.Active()
	if w == nil {
		return ErrNoActiveWorker
	}
	return w.HandleNotificationClick(ctx, n)
}

func (r *Registration) HandleSync(ctx context.Context, tag string) error {
	w := r.Active()
	if w == nil {
		return ErrNoActiveWorker
	}
	return w.HandleSync(ctx, tag)
}

// Close retires every worker.
func (r *Registration) Close() {
	r.mu.Lock()
	active, waiting := r.active, r.waiting
	r.active, r.waiting = nil, nil
	r.mu.Unlock()
	if waiting != nil {
		waiting.retire()
	}
	if active != nil {
		active.retire()
	}
}
