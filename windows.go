package hxcommunity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Window command types. The hub sends hello, focus, open, claim and
// notification; windows send navigate and focus.
const (
	CommandHello        = "hello"
	CommandFocus        = "focus"
	CommandOpen         = "open"
	CommandClaim        = "claim"
	CommandNotification = "notification"
	CommandNavigate     = "navigate"
)

// WindowCommand is the wire format between the hub and a window.
type WindowCommand struct {
	Type         string            `json:"type"`
	Window       string            `json:"window,omitempty"`
	URL          string            `json:"url,omitempty"`
	Notification *NotificationSpec `json:"notification,omitempty"`
}

// ============================================================================
// WindowHub
// ============================================================================

const windowSendBuffer = 16

type hubWindow struct {
	client WindowClient
	conn   *websocket.Conn
	send   chan WindowCommand
}

// WindowHub tracks windows connected over WebSocket. It serves as both the
// Clients and the Notifier of a worker.
type WindowHub struct {
	logger zerolog.Logger

	mu      sync.Mutex
	windows map[string]*hubWindow
	order   []string
	pending []string
}

func NewWindowHub(logger zerolog.Logger) *WindowHub {
	return &WindowHub{
		logger:  logger.With().Str("component", "windows").Logger(),
		windows: make(map[string]*hubWindow),
	}
}

// ServeHTTP upgrades the request and holds the window until it disconnects.
// The page URL is taken from the url query parameter.
func (h *WindowHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("window upgrade failed")
		return
	}
	win := h.add(conn, r.URL.Query().Get("url"))
	defer h.remove(win.client.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.writeLoop(ctx, win)

	for {
		var cmd WindowCommand
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		h.update(win.client.ID, cmd)
	}
}

func (h *WindowHub) writeLoop(ctx context.Context, win *hubWindow) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-win.send:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, win.conn, cmd)
			cancel()
			if err != nil {
				h.logger.Debug().Err(err).Str("window", win.client.ID).Msg("window write failed")
				return
			}
		}
	}
}

func (h *WindowHub) add(conn *websocket.Conn, pageURL string) *hubWindow {
	win := &hubWindow{
		client: WindowClient{ID: uuid.NewString(), URL: pageURL},
		conn:   conn,
		send:   make(chan WindowCommand, windowSendBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows[win.client.ID] = win
	h.order = append(h.order, win.client.ID)
	win.send <- WindowCommand{Type: CommandHello, Window: win.client.ID}
	for _, u := range h.pending {
		h.enqueue(win, WindowCommand{Type: CommandOpen, URL: u})
	}
	h.pending = nil
	h.logger.Debug().Str("window", win.client.ID).Str("url", pageURL).Msg("window connected")
	return win
}

func (h *WindowHub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, id)
	for i, o := range h.order {
		if o == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.logger.Debug().Str("window", id).Msg("window disconnected")
}

func (h *WindowHub) update(id string, cmd WindowCommand) {
	h.mu.Lock()
	defer h.mu.Unlock()
	win, ok := h.windows[id]
	if !ok {
		return
	}
	switch cmd.Type {
	case CommandNavigate:
		win.client.URL = cmd.URL
	case CommandFocus:
		h.setFocus(id)
	}
}

// enqueue must be called with h.mu held. A full buffer drops the command.
func (h *WindowHub) enqueue(win *hubWindow, cmd WindowCommand) {
	select {
	case win.send <- cmd:
	default:
		h.logger.Warn().Str("window", win.client.ID).Str("type", cmd.Type).Msg("window send buffer full; command dropped")
	}
}

func (h *WindowHub) setFocus(id string) {
	for _, w := range h.windows {
		w.client.Focused = w.client.ID == id
	}
}

func (h *WindowHub) MatchAll(context.Context) ([]WindowClient, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]WindowClient, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.windows[id].client)
	}
	return out, nil
}

func (h *WindowHub) Focus(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	win, ok := h.windows[id]
	if !ok {
		return ErrNotFound
	}
	h.setFocus(id)
	h.enqueue(win, WindowCommand{Type: CommandFocus, Window: id})
	return nil
}

// OpenWindow asks the most recently connected window to open u. With no
// window connected, the request is held for the next one.
func (h *WindowHub) OpenWindow(_ context.Context, u string) (WindowClient, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	opened := WindowClient{ID: uuid.NewString(), URL: u, Focused: true}
	if len(h.order) == 0 {
		h.pending = append(h.pending, u)
		return opened, nil
	}
	h.enqueue(h.windows[h.order[len(h.order)-1]], WindowCommand{Type: CommandOpen, URL: u})
	return opened, nil
}

func (h *WindowHub) Claim(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, win := range h.windows {
		h.enqueue(win, WindowCommand{Type: CommandClaim})
	}
	return nil
}

// ShowNotification forwards n to every connected window.
func (h *WindowHub) ShowNotification(_ context.Context, n NotificationSpec) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger.Info().Str("title", n.Title).Int("windows", len(h.windows)).Msg("notification")
	for _, win := range h.windows {
		spec := n
		h.enqueue(win, WindowCommand{Type: CommandNotification, Notification: &spec})
	}
	return nil
}

// Close disconnects every window.
func (h *WindowHub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.windows))
	for _, win := range h.windows {
		conns = append(conns, win.conn)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.Close(websocket.StatusGoingAway, "hub closing")
	}
}

// ============================================================================
// WindowConn
// ============================================================================

// WindowState is the connection state of a WindowConn.
type WindowState string

const (
	WindowDisconnected WindowState = "disconnected"
	WindowConnected    WindowState = "connected"
	WindowReconnecting WindowState = "reconnecting"
)

// WindowHandler receives commands sent by the hub.
type WindowHandler func(WindowCommand)

// WindowConfig controls reconnects and heartbeats of a WindowConn.
type WindowConfig struct {
	MaxReconnectAttempts uint64
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	Logger               zerolog.Logger
}

func (c *WindowConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
}

// WindowConn is a window connected to a WindowHub. It reconnects with
// exponential backoff when the connection drops.
type WindowConn struct {
	endpoint string
	handler  WindowHandler
	cfg      WindowConfig

	mu     sync.Mutex
	id     string
	conn   *websocket.Conn
	state  WindowState
	cancel context.CancelFunc
	done   chan struct{}
}

// DialWindow connects to the hub at hubURL as a window showing pageURL.
// hubURL may use http(s) or ws(s).
func DialWindow(ctx context.Context, hubURL, pageURL string, handler WindowHandler, cfg *WindowConfig) (*WindowConn, error) {
	c := &WindowConn{handler: handler, state: WindowDisconnected, done: make(chan struct{})}
	if cfg != nil {
		c.cfg = *cfg
	}
	c.cfg.defaults()

	endpoint, err := windowEndpoint(hubURL, pageURL)
	if err != nil {
		return nil, err
	}
	c.endpoint = endpoint

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(runCtx, conn)
	return c, nil
}

func windowEndpoint(hubURL, pageURL string) (string, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return "", fmt.Errorf("parse hub url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("url", pageURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect dials and waits for the hello that assigns the window ID.
func (c *WindowConn) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	var hello WindowCommand
	if err := wsjson.Read(ctx, conn, &hello); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != CommandHello || hello.Window == "" {
		conn.Close(websocket.StatusPolicyViolation, "expected hello")
		return nil, fmt.Errorf("expected %q, got %q", CommandHello, hello.Type)
	}
	c.mu.Lock()
	c.id = hello.Window
	c.conn = conn
	c.state = WindowConnected
	c.mu.Unlock()
	return conn, nil
}

func (c *WindowConn) run(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)
	for {
		err := c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		c.cfg.Logger.Warn().Err(err).Msg("window connection lost")
		c.setState(WindowReconnecting)

		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.cfg.ReconnectBaseDelay
		exp.MaxInterval = c.cfg.ReconnectMaxDelay
		exp.MaxElapsedTime = 0
		policy := backoff.WithContext(backoff.WithMaxRetries(exp, c.cfg.MaxReconnectAttempts), ctx)

		conn = nil
		err = backoff.Retry(func() error {
			next, err := c.connect(ctx)
			conn = next
			return err
		}, policy)
		if err != nil {
			c.setState(WindowDisconnected)
			if ctx.Err() == nil {
				c.cfg.Logger.Error().Err(err).Msg("window reconnect gave up")
			}
			return
		}
	}
}

// serve reads commands until the connection fails.
func (c *WindowConn) serve(ctx context.Context, conn *websocket.Conn) error {
	hbCtx, stop := context.WithCancel(ctx)
	defer stop()
	go c.heartbeat(hbCtx, conn)

	for {
		var cmd WindowCommand
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			return err
		}
		if c.handler != nil {
			c.handler(cmd)
		}
	}
}

func (c *WindowConn) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				}
				return
			}
		}
	}
}

func (c *WindowConn) setState(s WindowState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ID returns the window ID assigned by the hub.
func (c *WindowConn) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *WindowConn) State() WindowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Navigate reports that the window now shows pageURL.
func (c *WindowConn) Navigate(ctx context.Context, pageURL string) error {
	return c.send(ctx, WindowCommand{Type: CommandNavigate, URL: pageURL})
}

// Focused reports that the user focused this window.
func (c *WindowConn) Focused(ctx context.Context) error {
	return c.send(ctx, WindowCommand{Type: CommandFocus})
}

func (c *WindowConn) send(ctx context.Context, cmd WindowCommand) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if conn == nil || state != WindowConnected {
		return errors.New("window not connected")
	}
	return wsjson.Write(ctx, conn, cmd)
}

// Close disconnects and stops reconnecting.
func (c *WindowConn) Close() {
	c.cancel()
	<-c.done

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = WindowDisconnected
	c.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "window closed")
	}
}
