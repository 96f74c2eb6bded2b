package hxcommunity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// CacheHeader reports how the worker answered a request: "network", "hit",
// "miss", "fallback" or "offline".
const CacheHeader = "X-HX-Cache"

// Sync tag registered for pending posts.
const SyncTagPosts = "sync-posts"

// ControlSkipWaiting is the control message that activates a waiting worker.
const ControlSkipWaiting = "skipWaiting"

const defaultNotificationIcon = "/logo.png"

// Phase is a worker lifecycle phase.
type Phase int

const (
	PhaseNew Phase = iota
	PhaseInstalling
	PhaseInstalled
	PhaseActivating
	PhaseActivated
	PhaseRedundant
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhaseInstalling:
		return "installing"
	case PhaseInstalled:
		return "installed"
	case PhaseActivating:
		return "activating"
	case PhaseActivated:
		return "activated"
	case PhaseRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// WorkerConfig controls caching policy.
type WorkerConfig struct {
	// Version is embedded in the cache name: hx-community-<Version>.
	Version string
	// Origin is the app origin manifest paths are resolved against.
	Origin string
	// Manifest lists the paths cached at install.
	Manifest []string
	// APIPrefix marks paths served network-first.
	APIPrefix string
	// BypassHosts are host suffixes passed straight to the network.
	BypassHosts []string
	// OfflinePage is served for failed navigations; "/" is tried after it.
	OfflinePage string
	// SkipWaitingOnInstall activates a new worker as soon as it installs.
	SkipWaitingOnInstall bool
}

// DefaultWorkerConfig returns the stock policy for origin.
func DefaultWorkerConfig(origin string) WorkerConfig {
	return WorkerConfig{
		Version:              DefaultCacheVersion,
		Origin:               strings.TrimRight(origin, "/"),
		Manifest:             []string{"/", "/index.html", "/manifest.json", "/logo.png"},
		APIPrefix:            "/api/",
		BypassHosts:          []string{"google.com", "googleapis.com"},
		OfflinePage:          "/index.html",
		SkipWaitingOnInstall: true,
	}
}

// CacheName is the name of the cache generation owned by this config.
func (c WorkerConfig) CacheName() string {
	return "hx-community-" + c.Version
}

// SyncFunc handles one background sync tag.
type SyncFunc func(ctx context.Context) error

// ============================================================================
// Worker
// ============================================================================

// Worker is an http.RoundTripper that answers GET requests from a versioned
// cache. API paths are network-first; everything else is cache-first with
// background revalidation.
type Worker struct {
	cfg      WorkerConfig
	caches   CacheStorage
	network  http.RoundTripper
	clients  Clients
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	phase       Phase
	skipWaiting bool
	syncs       map[string]SyncFunc

	revalidate singleflight.Group
	// bgMu orders wg.Add against Close.
	bgMu     sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

type WorkerOption func(*Worker)

// WithNetwork sets the transport used for real network requests.
func WithNetwork(rt http.RoundTripper) WorkerOption {
	return func(w *Worker) { w.network = rt }
}

func WithClients(c Clients) WorkerOption {
	return func(w *Worker) { w.clients = c }
}

func WithNotifier(n Notifier) WorkerOption {
	return func(w *Worker) { w.notifier = n }
}

func WithWorkerLogger(logger zerolog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func NewWorker(cfg WorkerConfig, caches CacheStorage, opts ...WorkerOption) *Worker {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	w := &Worker{
		cfg:      cfg,
		caches:   caches,
		network:  http.DefaultTransport,
		clients:  NewMemoryClients(),
		notifier: NewLogNotifier(log.Logger),
		logger:   log.Logger,
		now:      time.Now,
		syncs:    make(map[string]SyncFunc),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With().Str("component", "worker").Str("cache", cfg.CacheName()).Logger()
	return w
}

func (w *Worker) Config() WorkerConfig { return w.cfg }

func (w *Worker) CacheName() string { return w.cfg.CacheName() }

func (w *Worker) Phase() Phase {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.phase
}

func (w *Worker) setPhase(p Phase) {
	w.mu.Lock()
	w.phase = p
	w.mu.Unlock()
	w.logger.Debug().Stringer("phase", p).Msg("worker phase")
}

// ============================================================================
// Lifecycle
// ============================================================================

// Install opens the cache and stores every manifest path. A path that cannot
// be fetched is logged and skipped; only failing to open the cache fails
// the install.
func (w *Worker) Install(ctx context.Context) error {
	w.setPhase(PhaseInstalling)
	cache, err := w.caches.Open(ctx, w.CacheName())
	if err != nil {
		w.setPhase(PhaseRedundant)
		return fmt.Errorf("install: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range w.cfg.Manifest {
		path := path
		g.Go(func() error {
			u := w.resolve(path)
			if err := w.precache(gctx, cache, u); err != nil {
				w.logger.Warn().Err(err).Str("url", u).Msg("precache failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	w.mu.Lock()
	w.phase = PhaseInstalled
	if w.cfg.SkipWaitingOnInstall {
		w.skipWaiting = true
	}
	w.mu.Unlock()
	return nil
}

func (w *Worker) precache(ctx context.Context, cache Cache, u string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := w.network.RoundTrip(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !okStatus(resp.StatusCode) {
		return fmt.Errorf("precache %s: HTTP %d", u, resp.StatusCode)
	}
	entry, _, err := captureResponse(u, resp, w.now())
	if err != nil {
		return err
	}
	return cache.Put(ctx, entry)
}

// Activate deletes every cache generation other than this worker's and
// claims all open windows.
func (w *Worker) Activate(ctx context.Context) error {
	w.setPhase(PhaseActivating)
	names, err := w.caches.Keys(ctx)
	if err != nil {
		return fmt.Errorf("activate: list caches: %w", err)
	}
	for _, name := range names {
		if name == w.CacheName() {
			continue
		}
		if _, err := w.caches.Delete(ctx, name); err != nil {
			w.logger.Warn().Err(err).Str("stale", name).Msg("failed to delete stale cache")
			continue
		}
		w.logger.Info().Str("stale", name).Msg("deleted stale cache")
	}
	w.setPhase(PhaseActivated)
	if err := w.clients.Claim(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("claim failed")
	}
	return nil
}

// SkipWaiting asks for activation without waiting for the current worker
// to retire.
func (w *Worker) SkipWaiting() {
	w.mu.Lock()
	w.skipWaiting = true
	w.mu.Unlock()
}

func (w *Worker) skipWaitingRequested() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.skipWaiting
}

// HandleMessage processes a control message. Only "skipWaiting" is known;
// it reports whether the message was recognised.
func (w *Worker) HandleMessage(msg string) bool {
	if msg == ControlSkipWaiting {
		w.SkipWaiting()
		return true
	}
	return false
}

// Close stops background revalidation and waits for it to drain.
func (w *Worker) Close() {
	w.bgMu.Lock()
	w.closed = true
	w.bgCancel()
	w.bgMu.Unlock()
	w.wg.Wait()
}

// Wait blocks until pending background revalidations finish.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) retire() {
	w.setPhase(PhaseRedundant)
	w.Close()
}

// ============================================================================
// Fetch handling
// ============================================================================

// RoundTrip implements http.RoundTripper.
func (w *Worker) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || w.bypassed(req.URL) {
		cacheRequestsTotal.WithLabelValues("passthrough", "network").Inc()
		return w.network.RoundTrip(req)
	}
	if strings.HasPrefix(req.URL.Path, w.cfg.APIPrefix) {
		return w.networkFirst(req)
	}
	return w.cacheFirst(req)
}

func (w *Worker) bypassed(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	for _, h := range w.cfg.BypassHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func (w *Worker) networkFirst(req *http.Request) (*http.Response, error) {
	resp, err := w.fetchAndStore(req.Context(), req)
	if err == nil {
		cacheRequestsTotal.WithLabelValues("network-first", "network").Inc()
		resp.Header.Set(CacheHeader, "network")
		return resp, nil
	}

	if entry := w.match(req.Context(), cacheKey(req)); entry != nil {
		w.logger.Debug().Err(err).Str("url", entry.URL).Msg("network failed, serving cached copy")
		cacheRequestsTotal.WithLabelValues("network-first", "fallback").Inc()
		return w.respond(req, entry, "fallback"), nil
	}
	cacheRequestsTotal.WithLabelValues("network-first", "error").Inc()
	return nil, err
}

func (w *Worker) cacheFirst(req *http.Request) (*http.Response, error) {
	if entry := w.match(req.Context(), cacheKey(req)); entry != nil {
		w.revalidateInBackground(req)
		cacheRequestsTotal.WithLabelValues("cache-first", "hit").Inc()
		return w.respond(req, entry, "hit"), nil
	}

	resp, err := w.fetchAndStore(req.Context(), req)
	if err == nil {
		cacheRequestsTotal.WithLabelValues("cache-first", "miss").Inc()
		resp.Header.Set(CacheHeader, "miss")
		return resp, nil
	}

	if isNavigation(req) {
		for _, page := range []string{w.cfg.OfflinePage, "/"} {
			if entry := w.match(req.Context(), w.resolve(page)); entry != nil {
				cacheRequestsTotal.WithLabelValues("cache-first", "offline").Inc()
				return w.respond(req, entry, "offline"), nil
			}
		}
	}
	cacheRequestsTotal.WithLabelValues("cache-first", "error").Inc()
	return nil, err
}

// fetchAndStore performs req on the network and stores a 2xx response.
// Storage failures are logged and do not affect the returned response.
func (w *Worker) fetchAndStore(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := w.network.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if !okStatus(resp.StatusCode) {
		return resp, nil
	}
	entry, resp, err := captureResponse(cacheKey(req), resp, w.now())
	if err != nil {
		return nil, err
	}
	w.put(ctx, entry)
	return resp, nil
}

// revalidateInBackground refreshes the cached copy of req without blocking
// the caller. Concurrent revalidations of one URL share a single request,
// and failures only leave the old entry in place.
func (w *Worker) revalidateInBackground(req *http.Request) {
	w.bgMu.Lock()
	if w.closed {
		w.bgMu.Unlock()
		return
	}
	w.wg.Add(1)
	w.bgMu.Unlock()

	key := cacheKey(req)
	bgReq := req.Clone(w.bgCtx)
	go func() {
		defer w.wg.Done()
		_, _, _ = w.revalidate.Do(key, func() (interface{}, error) {
			resp, err := w.fetchAndStore(w.bgCtx, bgReq)
			if err != nil {
				revalidationsTotal.WithLabelValues("error").Inc()
				w.logger.Debug().Err(err).Str("url", key).Msg("revalidation failed")
				return nil, nil
			}
			resp.Body.Close()
			if okStatus(resp.StatusCode) {
				revalidationsTotal.WithLabelValues("updated").Inc()
			} else {
				revalidationsTotal.WithLabelValues("skipped").Inc()
			}
			return nil, nil
		})
	}()
}

func (w *Worker) match(ctx context.Context, key string) *CacheEntry {
	cache, err := w.caches.Open(ctx, w.CacheName())
	if err != nil {
		w.logger.Warn().Err(err).Msg("cache open failed")
		return nil
	}
	entry, err := cache.Match(ctx, key)
	if err != nil {
		w.logger.Warn().Err(err).Str("url", key).Msg("cache match failed")
		return nil
	}
	return entry
}

func (w *Worker) put(ctx context.Context, entry *CacheEntry) {
	cache, err := w.caches.Open(ctx, w.CacheName())
	if err == nil {
		err = cache.Put(ctx, entry)
	}
	if err != nil {
		w.logger.Warn().Err(err).Str("url", entry.URL).Msg("cache put failed")
	}
}

func (w *Worker) respond(req *http.Request, entry *CacheEntry, how string) *http.Response {
	resp := entry.Response(req)
	resp.Header.Set(CacheHeader, how)
	return resp
}

func (w *Worker) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return w.cfg.Origin + path
}

func cacheKey(req *http.Request) string {
	return req.URL.String()
}

func okStatus(code int) bool {
	return code >= 200 && code < 300
}

// isNavigation reports whether req loads a top-level document.
func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// ============================================================================
// Push, notification click, sync
// ============================================================================

// PushPayload is the JSON body of a push message.
type PushPayload struct {
	Title   string                 `json:"title"`
	Body    string                 `json:"body,omitempty"`
	Icon    string                 `json:"icon,omitempty"`
	Badge   string                 `json:"badge,omitempty"`
	Tag     string                 `json:"tag,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Actions []NotificationAction   `json:"actions,omitempty"`
}

// HandlePush shows a notification for a push payload. An empty payload is
// ignored.
func (w *Worker) HandlePush(ctx context.Context, payload []byte) error {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil
	}
	var p PushPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: push payload: %v", ErrMalformedPayload, err)
	}
	spec := NotificationSpec{
		Title:   p.Title,
		Body:    p.Body,
		Icon:    firstNonEmpty(p.Icon, defaultNotificationIcon),
		Badge:   firstNonEmpty(p.Badge, defaultNotificationIcon),
		Tag:     p.Tag,
		Data:    p.Data,
		Actions: p.Actions,
	}
	if spec.Actions == nil {
		spec.Actions = []NotificationAction{}
	}
	return w.notifier.ShowNotification(ctx, spec)
}

// HandleNotificationClick focuses an open window on the app's origin, or
// opens one at the notification's data.url (default "/").
func (w *Worker) HandleNotificationClick(ctx context.Context, n NotificationSpec) error {
	windows, err := w.clients.MatchAll(ctx)
	if err != nil {
		return err
	}
	for _, win := range windows {
		if w.sameOrigin(win.URL) {
			return w.clients.Focus(ctx, win.ID)
		}
	}
	target := "/"
	if u, ok := n.Data["url"].(string); ok && u != "" {
		target = u
	}
	_, err = w.clients.OpenWindow(ctx, w.resolve(target))
	return err
}

func (w *Worker) sameOrigin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw == "/"
	}
	o, err := url.Parse(w.cfg.Origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, o.Scheme) && strings.EqualFold(u.Host, o.Host)
}

// RegisterSync installs fn as the handler for tag.
func (w *Worker) RegisterSync(tag string, fn SyncFunc) {
	w.mu.Lock()
	w.syncs[tag] = fn
	w.mu.Unlock()
}

// HandleSync runs the handler for tag. Unknown tags are ignored.
func (w *Worker) HandleSync(ctx context.Context, tag string) error {
	w.mu.RLock()
	fn := w.syncs[tag]
	w.mu.RUnlock()
	if fn == nil {
		w.logger.Debug().Str("tag", tag).Msg("no sync handler")
		return nil
	}
	if err := fn(ctx); err != nil {
		return fmt.Errorf("sync %s: %w", tag, err)
	}
	return nil
}

// ErrNoActiveWorker is returned when an event arrives before any worker has
// been activated.
var ErrNoActiveWorker = errors.New("no active worker")
