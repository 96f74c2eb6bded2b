package hxcommunity

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultLoadingText = "Initializing..."
	busyLoadingText    = "Processing..."
	defaultTheme       = "dark"
)

// Snapshot is a copy of the application state at one point in time. Slices
// and maps in a Snapshot are never shared with the live state.
type Snapshot struct {
	CurrentUser     *User
	Screen          Screen
	PreviousScreen  Screen
	Loading         bool
	LoadingText     string
	Posts           []Post
	LikedPosts      []string
	Messages        []Message
	CurrentChatUser string
	AIChats         []ChatSession
	CurrentAIChat   string
	Notifications   []Notification
	UnreadCount     int
	ShowFab         bool
	ComposeOpen     bool
	RoleCache       map[string]Role
	Theme           string
}

// Listener is notified after every state change.
type Listener func(Snapshot)

// AppState is the process-wide client state. Only the current user, liked
// post ids, role cache, AI chats and theme are written to the Store; posts,
// messages and notifications live for the session only.
type AppState struct {
	mu    sync.RWMutex
	store *Store

	currentUser     *User
	screen          Screen
	previousScreen  Screen
	loading         bool
	loadingText     string
	posts           []Post
	likedPosts      []string
	messages        []Message
	currentChatUser string
	aiChats         []ChatSession
	currentAIChat   string
	notifications   []Notification
	showFab         bool
	composeOpen     bool
	roleCache       map[string]Role
	theme           string

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int

	logger zerolog.Logger
}

// NewAppState builds the state and hydrates the persisted slice from store.
func NewAppState(store *Store) *AppState {
	s := &AppState{
		store:       store,
		screen:      ScreenHome,
		loadingText: defaultLoadingText,
		posts:       []Post{},
		messages:    []Message{},
		showFab:     true,
		listeners:   make(map[int]Listener),
		logger:      log.Logger.With().Str("component", "state").Logger(),
	}
	s.currentUser = Load[*User](store, KeyCurrentUser, nil)
	s.likedPosts = Load(store, KeyLikedPosts, []string{})
	s.roleCache = Load(store, KeyRoleCache, map[string]Role{})
	s.aiChats = Load(store, KeyAIChats, []ChatSession{})
	s.theme = Load(store, KeyTheme, defaultTheme)
	if s.likedPosts == nil {
		s.likedPosts = []string{}
	}
	if s.roleCache == nil {
		s.roleCache = map[string]Role{}
	}
	if s.aiChats == nil {
		s.aiChats = []ChatSession{}
	}
	return s
}

// ============================================================================
// Subscription
// ============================================================================

// Subscribe registers fn for change notifications and returns a function
// that removes it. A panicking listener does not affect others.
func (s *AppState) Subscribe(fn Listener) (unsubscribe func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *AppState) notify() {
	s.lmu.Lock()
	if len(s.listeners) == 0 {
		s.lmu.Unlock()
		return
	}
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	snap := s.Snapshot()
	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().Interface("panic", r).Msg("state listener panicked")
				}
			}()
			fn(snap)
		}()
	}
}

// update runs fn under the write lock, writes the named persisted keys and
// notifies listeners.
func (s *AppState) update(fn func(), persist ...string) {
	s.mu.Lock()
	fn()
	for _, key := range persist {
		s.persistLocked(key)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *AppState) persistLocked(key string) {
	switch key {
	case KeyCurrentUser:
		if s.currentUser == nil {
			s.store.Remove(KeyCurrentUser)
			return
		}
		s.store.Set(KeyCurrentUser, s.currentUser)
	case KeyLikedPosts:
		s.store.Set(KeyLikedPosts, s.likedPosts)
	case KeyRoleCache:
		s.store.Set(KeyRoleCache, s.roleCache)
	case KeyAIChats:
		s.store.Set(KeyAIChats, s.aiChats)
	case KeyTheme:
		s.store.Set(KeyTheme, s.theme)
	}
}

// Snapshot returns a deep copy of the current state.
func (s *AppState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Screen:          s.screen,
		PreviousScreen:  s.previousScreen,
		Loading:         s.loading,
		LoadingText:     s.loadingText,
		Posts:           append([]Post{}, s.posts...),
		LikedPosts:      append([]string{}, s.likedPosts...),
		Messages:        append([]Message{}, s.messages...),
		CurrentChatUser: s.currentChatUser,
		CurrentAIChat:   s.currentAIChat,
		Notifications:   append([]Notification{}, s.notifications...),
		UnreadCount:     s.unreadLocked(),
		ShowFab:         s.showFab,
		ComposeOpen:     s.composeOpen,
		RoleCache:       make(map[string]Role, len(s.roleCache)),
		Theme:           s.theme,
	}
	if s.currentUser != nil {
		u := *s.currentUser
		snap.CurrentUser = &u
	}
	snap.AIChats = make([]ChatSession, len(s.aiChats))
	for i, c := range s.aiChats {
		snap.AIChats[i] = c.clone()
	}
	for k, v := range s.roleCache {
		snap.RoleCache[k] = v
	}
	return snap
}

// ============================================================================
// User
// ============================================================================

func (s *AppState) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentUser == nil {
		return nil
	}
	u := *s.currentUser
	return &u
}

// SetCurrentUser signs u in, or signs out when u is nil. The user's role is
// also recorded in the role cache.
func (s *AppState) SetCurrentUser(u *User) {
	s.update(func() {
		if u == nil {
			s.currentUser = nil
			return
		}
		cp := *u
		s.currentUser = &cp
		if cp.Username != "" && cp.Role != "" {
			s.roleCache[strings.ToLower(cp.Username)] = cp.Role
		}
	}, KeyCurrentUser, KeyRoleCache)
}

// ============================================================================
// Navigation
// ============================================================================

func (s *AppState) Screen() Screen {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screen
}

func (s *AppState) PreviousScreen() Screen {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previousScreen
}

// SetScreen switches screens without recording history.
func (s *AppState) SetScreen(screen Screen) {
	s.update(func() { s.screen = screen })
}

// Navigate switches to screen and remembers the current one as previous.
// Only one level is kept.
func (s *AppState) Navigate(screen Screen) {
	s.update(func() {
		s.previousScreen = s.screen
		s.screen = screen
	})
}

// Back returns to the previous screen, or home when there is none, and
// forgets the previous screen. A second Back therefore lands on home.
func (s *AppState) Back() {
	s.update(func() {
		if s.previousScreen != "" {
			s.screen = s.previousScreen
		} else {
			s.screen = ScreenHome
		}
		s.previousScreen = ""
	})
}

// ============================================================================
// UI flags
// ============================================================================

// SetLoading sets the busy flag. An empty text means "Processing...".
func (s *AppState) SetLoading(loading bool, text string) {
	if text == "" {
		text = busyLoadingText
	}
	s.update(func() {
		s.loading = loading
		s.loadingText = text
	})
}

func (s *AppState) Loading() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading, s.loadingText
}

func (s *AppState) SetShowFab(show bool) {
	s.update(func() { s.showFab = show })
}

func (s *AppState) SetComposeOpen(open bool) {
	s.update(func() { s.composeOpen = open })
}

func (s *AppState) Theme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

func (s *AppState) SetTheme(theme string) {
	s.update(func() { s.theme = theme }, KeyTheme)
}

// ============================================================================
// Posts
// ============================================================================

func (s *AppState) Posts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Post{}, s.posts...)
}

func (s *AppState) Post(pid string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.postIndexLocked(pid); i >= 0 {
		return s.posts[i], true
	}
	return Post{}, false
}

// SetPosts replaces the whole feed.
func (s *AppState) SetPosts(posts []Post) {
	cp := append([]Post{}, posts...)
	s.update(func() { s.posts = cp })
}

// AddPost puts post at the top of the feed.
func (s *AppState) AddPost(post Post) {
	s.update(func() { s.posts = append([]Post{post}, s.posts...) })
}

// UpdatePost applies fn to the post with pid. It reports whether the post
// exists.
func (s *AppState) UpdatePost(pid string, fn func(*Post)) bool {
	found := false
	s.update(func() {
		if i := s.postIndexLocked(pid); i >= 0 {
			fn(&s.posts[i])
			found = true
		}
	})
	return found
}

// RemovePost deletes the post with pid and returns it with its former index.
func (s *AppState) RemovePost(pid string) (Post, int, bool) {
	var removed Post
	idx := -1
	s.update(func() {
		if idx = s.postIndexLocked(pid); idx >= 0 {
			removed = s.posts[idx]
			s.posts = append(s.posts[:idx:idx], s.posts[idx+1:]...)
		}
	})
	return removed, idx, idx >= 0
}

// InsertPost puts post back at index, clamped to the feed bounds.
func (s *AppState) InsertPost(index int, post Post) {
	s.update(func() { s.posts = insertAt(s.posts, index, post) })
}

func (s *AppState) postIndexLocked(pid string) int {
	for i := range s.posts {
		if s.posts[i].PID == pid {
			return i
		}
	}
	return -1
}

// ============================================================================
// Likes
// ============================================================================

func (s *AppState) LikedPosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.likedPosts...)
}

func (s *AppState) IsLiked(pid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return containsString(s.likedPosts, pid)
}

// ToggleLike flips pid's membership in the liked set.
func (s *AppState) ToggleLike(pid string) {
	s.update(func() { s.setLikedLocked(pid, !containsString(s.likedPosts, pid)) }, KeyLikedPosts)
}

// SetLiked sets pid's membership in the liked set.
func (s *AppState) SetLiked(pid string, liked bool) {
	s.update(func() { s.setLikedLocked(pid, liked) }, KeyLikedPosts)
}

func (s *AppState) setLikedLocked(pid string, liked bool) {
	has := containsString(s.likedPosts, pid)
	switch {
	case liked && !has:
		s.likedPosts = append(s.likedPosts, pid)
	case !liked && has:
		out := make([]string, 0, len(s.likedPosts)-1)
		for _, id := range s.likedPosts {
			if id != pid {
				out = append(out, id)
			}
		}
		s.likedPosts = out
	}
}

// ============================================================================
// Messages
// ============================================================================

func (s *AppState) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message{}, s.messages...)
}

func (s *AppState) SetMessages(msgs []Message) {
	cp := append([]Message{}, msgs...)
	s.update(func() { s.messages = cp })
}

// AddMessage appends m to the open conversation.
func (s *AppState) AddMessage(m Message) {
	s.update(func() { s.messages = append(s.messages, m) })
}

// ReplaceMessage swaps the message with id for m.
func (s *AppState) ReplaceMessage(id string, m Message) bool {
	found := false
	s.update(func() {
		if i := s.messageIndexLocked(id); i >= 0 {
			s.messages[i] = m
			found = true
		}
	})
	return found
}

// RemoveMessage deletes the message with id and returns it with its former
// index.
func (s *AppState) RemoveMessage(id string) (Message, int, bool) {
	var removed Message
	idx := -1
	s.update(func() {
		if idx = s.messageIndexLocked(id); idx >= 0 {
			removed = s.messages[idx]
			s.messages = append(s.messages[:idx:idx], s.messages[idx+1:]...)
		}
	})
	return removed, idx, idx >= 0
}

// InsertMessage puts m back at index, clamped to the conversation bounds.
func (s *AppState) InsertMessage(index int, m Message) {
	s.update(func() { s.messages = insertAt(s.messages, index, m) })
}

func (s *AppState) messageIndexLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *AppState) CurrentChatUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentChatUser
}

func (s *AppState) SetCurrentChatUser(username string) {
	s.update(func() { s.currentChatUser = username })
}

// ============================================================================
// AI chats
// ============================================================================

func (s *AppState) AIChats() []ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatSession, len(s.aiChats))
	for i, c := range s.aiChats {
		out[i] = c.clone()
	}
	return out
}

func (s *AppState) AIChat(id string) (ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.aiChats {
		if c.ID == id {
			return c.clone(), true
		}
	}
	return ChatSession{}, false
}

// AddAIChat appends chat to the session list.
func (s *AppState) AddAIChat(chat ChatSession) {
	chat = chat.clone()
	s.update(func() { s.aiChats = append(s.aiChats, chat) }, KeyAIChats)
}

// UpdateAIChat applies fn to the session with id.
func (s *AppState) UpdateAIChat(id string, fn func(*ChatSession)) bool {
	found := false
	s.update(func() {
		for i := range s.aiChats {
			if s.aiChats[i].ID == id {
				fn(&s.aiChats[i])
				found = true
				return
			}
		}
	}, KeyAIChats)
	return found
}

// RemoveAIChat deletes the session with id. When it was the current session
// the first remaining one becomes current.
func (s *AppState) RemoveAIChat(id string) {
	s.update(func() {
		out := s.aiChats[:0:0]
		for _, c := range s.aiChats {
			if c.ID != id {
				out = append(out, c)
			}
		}
		s.aiChats = out
		if s.currentAIChat == id {
			s.currentAIChat = ""
			if len(out) > 0 {
				s.currentAIChat = out[0].ID
			}
		}
	}, KeyAIChats)
}

func (s *AppState) CurrentAIChat() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentAIChat
}

func (s *AppState) SetCurrentAIChat(id string) {
	s.update(func() { s.currentAIChat = id })
}

// ============================================================================
// Notifications
// ============================================================================

func (s *AppState) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification{}, s.notifications...)
}

// AddNotification puts n at the top of the list.
func (s *AppState) AddNotification(n Notification) {
	s.update(func() { s.notifications = append([]Notification{n}, s.notifications...) })
}

func (s *AppState) MarkNotificationRead(id string) {
	s.update(func() {
		for i := range s.notifications {
			if s.notifications[i].ID == id {
				s.notifications[i].IsRead = true
			}
		}
	})
}

func (s *AppState) ClearNotifications() {
	s.update(func() { s.notifications = nil })
}

func (s *AppState) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked()
}

func (s *AppState) unreadLocked() int {
	n := 0
	for _, x := range s.notifications {
		if !x.IsRead {
			n++
		}
	}
	return n
}

// ============================================================================
// Role cache
// ============================================================================

// SetUserRole records role for username, case-insensitively.
func (s *AppState) SetUserRole(username string, role Role) {
	s.update(func() { s.roleCache[strings.ToLower(username)] = role }, KeyRoleCache)
}

// SetUserRoles records several roles with a single write.
func (s *AppState) SetUserRoles(users []User) {
	s.update(func() {
		for _, u := range users {
			if u.Username != "" && u.Role != "" {
				s.roleCache[strings.ToLower(u.Username)] = u.Role
			}
		}
	}, KeyRoleCache)
}

func (s *AppState) UserRole(username string) (Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roleCache[strings.ToLower(username)]
	return r, ok
}

// ============================================================================
// Logout
// ============================================================================

// Logout signs out and drops session data: posts, messages, notifications
// and liked ids. AI chats, the role cache and the theme are kept.
func (s *AppState) Logout() {
	s.update(func() {
		s.currentUser = nil
		s.screen = ScreenProfile
		s.posts = []Post{}
		s.messages = []Message{}
		s.notifications = nil
		s.likedPosts = []string{}
	}, KeyCurrentUser, KeyLikedPosts)
}

// ============================================================================
// Helpers
// ============================================================================

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func insertAt[T any](list []T, index int, v T) []T {
	if index < 0 {
		index = 0
	}
	if index > len(list) {
		index = len(list)
	}
	out := make([]T, 0, len(list)+1)
	out = append(out, list[:index]...)
	out = append(out, v)
	return append(out, list[index:]...)
}
