package hxcommunity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App wires the client, the persisted state and the offline worker into one
// session.
type App struct {
	Config       *Config
	Client       *Client
	Store        *Store
	State        *AppState
	Mutations    *Mutations
	Assistant    *Assistant
	Registration *Registration
	Feed         *Mirror[Post]
	Users        *Mirror[User]

	caches   CacheStorage
	clients  Clients
	notifier Notifier
	db       *sql.DB
	logger   zerolog.Logger
}

type appOptions struct {
	backend    Backend
	caches     CacheStorage
	network    http.RoundTripper
	clients    Clients
	notifier   Notifier
	clientOpts []ClientOption
	logger     zerolog.Logger
}

type AppOption func(*appOptions)

// WithBackend sets the key-value backend behind the encrypted store.
func WithBackend(b Backend) AppOption {
	return func(o *appOptions) { o.backend = b }
}

func WithCacheStorage(cs CacheStorage) AppOption {
	return func(o *appOptions) { o.caches = cs }
}

// WithNetworkTransport sets the transport the worker uses to reach the
// network.
func WithNetworkTransport(rt http.RoundTripper) AppOption {
	return func(o *appOptions) { o.network = rt }
}

func WithWindowClients(c Clients) AppOption {
	return func(o *appOptions) { o.clients = c }
}

func WithAppNotifier(n Notifier) AppOption {
	return func(o *appOptions) { o.notifier = n }
}

// WithClientOptions passes extra options to NewClient. They run after the
// app's own, so a custom transport here bypasses the worker.
func WithClientOptions(opts ...ClientOption) AppOption {
	return func(o *appOptions) { o.clientOpts = append(o.clientOpts, opts...) }
}

func WithAppLogger(logger zerolog.Logger) AppOption {
	return func(o *appOptions) { o.logger = logger }
}

// NewApp builds an app over in-memory storage unless options say otherwise.
// Every request the client makes goes through the worker registration.
func NewApp(cfg *Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := appOptions{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.backend == nil {
		o.backend = NewMemoryBackend(0)
	}
	if o.caches == nil {
		o.caches = NewMemoryCacheStorage()
	}
	if o.clients == nil {
		o.clients = NewMemoryClients()
	}
	if o.notifier == nil {
		o.notifier = NewLogNotifier(o.logger)
	}
	if o.network == nil && debugLoggingRequested() {
		o.network = NewDebugTransport(nil, o.logger)
	}

	store := NewStore(o.backend, NewPassphraseCipher(cfg.EncryptionKey), WithStoreLogger(o.logger))
	reg := NewRegistration(o.network)

	clientOpts := append([]ClientOption{
		WithConfig(cfg),
		WithTransport(reg),
		WithLogger(o.logger),
	}, o.clientOpts...)
	client := NewClient(clientOpts...)

	state := NewAppState(store)
	a := &App{
		Config:       cfg,
		Client:       client,
		Store:        store,
		State:        state,
		Mutations:    NewMutations(state, client.Actions),
		Assistant:    NewAssistant(state, client.AI),
		Registration: reg,
		caches:       o.caches,
		clients:      o.clients,
		notifier:     o.notifier,
		logger:       o.logger.With().Str("component", "app").Logger(),
	}
	a.Feed = NewMirror[Post]("posts", client.Feed.Fetch,
		WithMirrorStore[Post](store, KeyFeedCache),
		WithReplaceHook(state.SetPosts),
	)
	a.Users = NewMirror[User]("users", client.Users.Fetch,
		WithReplaceHook(state.SetUserRoles),
	)
	return a, nil
}

// OpenApp builds an app whose store and caches live in the SQLite database
// at path.
func OpenApp(cfg *Config, path string, opts ...AppOption) (*App, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	opts = append([]AppOption{
		WithBackend(NewSQLiteBackend(db)),
		WithCacheStorage(NewSQLiteCacheStorage(db)),
	}, opts...)
	a, err := NewApp(cfg, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.db = db
	return a, nil
}

// NewWorker returns a worker for this app's origin and cache version with
// the feed sync handler registered.
func (a *App) NewWorker() *Worker {
	cfg := DefaultWorkerConfig(a.Config.AppOrigin)
	cfg.Version = a.Config.CacheVersion
	w := NewWorker(cfg, a.caches,
		WithNetwork(a.Registration.network),
		WithClients(a.clients),
		WithNotifier(a.notifier),
		WithWorkerLogger(a.logger),
	)
	w.RegisterSync(SyncTagPosts, func(ctx context.Context) error {
		_, err := a.RefreshFeed(ctx)
		return err
	})
	return w
}

// Start installs and activates a worker for the configured cache version.
func (a *App) Start(ctx context.Context) error {
	return a.Registration.Register(ctx, a.NewWorker())
}

// Close retires the worker and closes the database, if any.
func (a *App) Close() error {
	a.Registration.Close()
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// ============================================================================
// Session
// ============================================================================

// Login signs in and stores the returned user as the current user.
func (a *App) Login(ctx context.Context, username, password string) (*User, error) {
	res := a.Client.Actions.Login(ctx, username, password)
	return a.signIn(res, ActionLogin, User{Username: strings.TrimSpace(username)})
}

// Signup creates an account and signs in as it.
func (a *App) Signup(ctx context.Context, username, email, password, pic string) (*User, error) {
	res := a.Client.Actions.Signup(ctx, username, email, password, pic)
	return a.signIn(res, ActionSignup, User{Username: strings.TrimSpace(username), Email: email, Pic: pic})
}

func (a *App) signIn(res *APIResponse, action string, fallback User) (*User, error) {
	if !res.OK() {
		return nil, &DispatchError{Action: action, Status: res.Status, Message: res.Message}
	}
	u := fallback
	if err := res.Decode(&u); err != nil {
		a.logger.Warn().Err(err).Str("action", action).Msg("unexpected user payload")
		u = fallback
	}
	if u.Username == "" {
		u.Username = fallback.Username
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	a.State.SetCurrentUser(&u)
	a.State.Navigate(ScreenHome)
	return &u, nil
}

// UpdateProfile saves bio and pic remotely, then locally.
func (a *App) UpdateProfile(ctx context.Context, bio, pic string) error {
	u := a.State.CurrentUser()
	if u == nil {
		return ErrNotSignedIn
	}
	res := a.Client.Actions.UpdateProfile(ctx, u.Username, bio, pic)
	if !res.OK() {
		return &DispatchError{Action: ActionUpdateProfile, Status: res.Status, Message: res.Message}
	}
	u.Bio, u.Pic = bio, pic
	a.State.SetCurrentUser(u)
	return nil
}

// Logout clears the session and discards the mirrored lists; the AI chats,
// role cache and theme remain.
func (a *App) Logout() {
	a.State.Logout()
	a.Feed.Reset()
	a.Users.Reset()
}

func (a *App) Follow(ctx context.Context, username string) error {
	return a.follow(ctx, username, true)
}

func (a *App) Unfollow(ctx context.Context, username string) error {
	return a.follow(ctx, username, false)
}

func (a *App) follow(ctx context.Context, username string, follow bool) error {
	u := a.State.CurrentUser()
	if u == nil {
		return ErrNotSignedIn
	}
	var res *APIResponse
	action := ActionFollow
	if follow {
		res = a.Client.Actions.Follow(ctx, u.Username, username)
	} else {
		action = ActionUnfollow
		res = a.Client.Actions.Unfollow(ctx, u.Username, username)
	}
	if !res.OK() {
		return &DispatchError{Action: action, Status: res.Status, Message: res.Message}
	}
	return nil
}

// ============================================================================
// Lists
// ============================================================================

// RefreshFeed replaces the feed with the remote list. On failure the
// current feed is kept and the error returned.
func (a *App) RefreshFeed(ctx context.Context) ([]Post, error) {
	a.State.SetLoading(true, "Loading posts...")
	defer a.State.SetLoading(false, "")
	posts, err := a.Feed.Refresh(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("feed refresh failed")
		return a.State.Posts(), err
	}
	return posts, nil
}

// RefreshUsers reloads the user list and the role cache.
func (a *App) RefreshUsers(ctx context.Context) ([]User, error) {
	users, err := a.Users.Refresh(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("users refresh failed")
		return a.Users.Items(), err
	}
	return users, nil
}

// OpenConversation makes other the current chat partner and loads the
// thread.
func (a *App) OpenConversation(ctx context.Context, other string) ([]Message, error) {
	u := a.State.CurrentUser()
	if u == nil {
		return nil, ErrNotSignedIn
	}
	a.State.SetCurrentChatUser(other)
	a.State.SetMessages(nil)
	msgs, err := a.Client.Messages.FetchConversation(ctx, u.Username, other)
	if err != nil {
		return nil, err
	}
	a.State.SetMessages(msgs)
	return msgs, nil
}

// WatchConversation returns a stopped poller that reloads the thread with
// other every poll interval. Results are dropped once the partner changes
// or the poller stops.
func (a *App) WatchConversation(other string) *Poller {
	return NewPoller(a.Config.PollInterval, func(ctx context.Context) error {
		u := a.State.CurrentUser()
		if u == nil {
			return ErrNotSignedIn
		}
		msgs, err := a.Client.Messages.FetchConversation(ctx, u.Username, other)
		if err != nil {
			return err
		}
		if ctx.Err() != nil || a.State.CurrentChatUser() != other {
			return nil
		}
		a.State.SetMessages(msgs)
		return nil
	})
}

// ErrNoDatabase is returned by operations that need OpenApp.
var ErrNoDatabase = errors.New("app has no database")

// DB returns the SQLite handle opened by OpenApp.
func (a *App) DB() (*sql.DB, error) {
	if a.db == nil {
		return nil, ErrNoDatabase
	}
	return a.db, nil
}
