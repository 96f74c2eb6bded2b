package hxcommunity

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NotificationAction is a button on a shown notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// NotificationSpec describes a notification to show.
type NotificationSpec struct {
	Title   string                 `json:"title"`
	Body    string                 `json:"body,omitempty"`
	Icon    string                 `json:"icon,omitempty"`
	Badge   string                 `json:"badge,omitempty"`
	Tag     string                 `json:"tag,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Actions []NotificationAction   `json:"actions"`
}

// Notifier displays notifications.
type Notifier interface {
	ShowNotification(ctx context.Context, n NotificationSpec) error
}

// WindowClient is an open window controlled by the worker.
type WindowClient struct {
	ID      string
	URL     string
	Focused bool
}

// Clients is the set of windows a worker controls.
type Clients interface {
	MatchAll(ctx context.Context) ([]WindowClient, error)
	Focus(ctx context.Context, id string) error
	OpenWindow(ctx context.Context, url string) (WindowClient, error)
	// Claim makes the calling worker the controller of every open window.
	Claim(ctx context.Context) error
}

// ============================================================================
// In-memory implementations
// ============================================================================

// MemoryClients tracks windows in memory.
type MemoryClients struct {
	mu      sync.Mutex
	windows []WindowClient
	claims  int
}

// NewMemoryClients starts with one window per url.
func NewMemoryClients(urls ...string) *MemoryClients {
	c := &MemoryClients{}
	for _, u := range urls {
		c.windows = append(c.windows, WindowClient{ID: uuid.NewString(), URL: u})
	}
	return c
}

func (c *MemoryClients) MatchAll(context.Context) ([]WindowClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WindowClient(nil), c.windows...), nil
}

func (c *MemoryClients) Focus(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := false
	for i := range c.windows {
		c.windows[i].Focused = c.windows[i].ID == id
		found = found || c.windows[i].Focused
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (c *MemoryClients) OpenWindow(_ context.Context, url string) (WindowClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.windows {
		c.windows[i].Focused = false
	}
	w := WindowClient{ID: uuid.NewString(), URL: url, Focused: true}
	c.windows = append(c.windows, w)
	return w, nil
}

func (c *MemoryClients) Claim(context.Context) error {
	c.mu.Lock()
	c.claims++
	c.mu.Unlock()
	return nil
}

// Claims returns how many times a worker claimed the windows.
func (c *MemoryClients) Claims() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claims
}

// LogNotifier writes notifications to a zerolog logger and keeps them.
type LogNotifier struct {
	logger zerolog.Logger

	mu    sync.Mutex
	shown []NotificationSpec
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ShowNotification(_ context.Context, spec NotificationSpec) error {
	n.logger.Info().Str("title", spec.Title).Str("body", spec.Body).Str("tag", spec.Tag).Msg("notification")
	n.mu.Lock()
	n.shown = append(n.shown, spec)
	n.mu.Unlock()
	return nil
}

// Shown returns every notification shown so far.
func (n *LogNotifier) Shown() []NotificationSpec {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotificationSpec(nil), n.shown...)
}
