package hxcommunity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedResource is the local copy of one remote list. It is only ever
// replaced whole.
type CachedResource[T any] struct {
	Name      string    `json:"name"`
	FetchedAt time.Time `json:"fetchedAt"`
	Items     []T       `json:"items"`
}

// FetchFunc loads the full remote list.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Mirror keeps a CachedResource in step with a remote list. A failed fetch
// leaves the previous copy in place; a successful one replaces it whole.
// Concurrent Refresh calls share one fetch.
type Mirror[T any] struct {
	mu        sync.RWMutex
	current   CachedResource[T]
	fetch     FetchFunc[T]
	store     *Store
	key       string
	onReplace func([]T)
	group     singleflight.Group
	now       func() time.Time
}

type MirrorOption[T any] func(*Mirror[T])

// WithMirrorStore persists every replacement under key and seeds the mirror
// from it.
func WithMirrorStore[T any](store *Store, key string) MirrorOption[T] {
	return func(m *Mirror[T]) {
		m.store = store
		m.key = key
	}
}

// WithReplaceHook calls fn with the new items after each replacement.
func WithReplaceHook[T any](fn func([]T)) MirrorOption[T] {
	return func(m *Mirror[T]) { m.onReplace = fn }
}

func NewMirror[T any](name string, fetch FetchFunc[T], opts ...MirrorOption[T]) *Mirror[T] {
	m := &Mirror[T]{
		current: CachedResource[T]{Name: name, Items: []T{}},
		fetch:   fetch,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store != nil {
		saved := Load(m.store, m.key, CachedResource[T]{})
		if saved.Items != nil {
			saved.Name = name
			m.current = saved
		}
	}
	return m
}

// Refresh fetches the remote list and, on success, replaces the local copy.
// The shared fetch ignores ctx cancellation; a cancelled caller returns
// early while the others keep waiting.
func (m *Mirror[T]) Refresh(ctx context.Context) ([]T, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("refresh", func() (interface{}, error) {
		items, err := m.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		m.replace(items)
		return items, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]T{}, res.Val.([]T)...), nil
	}
}

// Reset empties the local copy and removes its persisted form.
func (m *Mirror[T]) Reset() {
	m.mu.Lock()
	m.current = CachedResource[T]{Name: m.current.Name, Items: []T{}}
	m.mu.Unlock()
	if m.store != nil {
		m.store.Remove(m.key)
	}
}

func (m *Mirror[T]) replace(items []T) {
	m.mu.Lock()
	next := CachedResource[T]{Name: m.current.Name, FetchedAt: m.now(), Items: append([]T{}, items...)}
	m.current = next
	m.mu.Unlock()
	if m.store != nil {
		m.store.Set(m.key, next)
	}
	if m.onReplace != nil {
		m.onReplace(append([]T{}, items...))
	}
}

// Snapshot returns a copy of the cached resource.
func (m *Mirror[T]) Snapshot() CachedResource[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.current
	snap.Items = append([]T{}, m.current.Items...)
	return snap
}

func (m *Mirror[T]) Items() []T {
	return m.Snapshot().Items
}
