package hxcommunity

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mutation events emitted by Mutations.
const (
	EventMutationApplied    = "mutation.applied"
	EventMutationConfirmed  = "mutation.confirmed"
	EventMutationRolledBack = "mutation.rolledback"
)

// Mutation kinds.
const (
	MutationLike          = "like"
	MutationComment       = "comment"
	MutationSendMessage   = "send_message"
	MutationCreatePost    = "create_post"
	MutationDeletePost    = "delete_post"
	MutationDeleteMessage = "delete_message"
)

// localIDPrefix marks ids minted on the client before the server assigns one.
const localIDPrefix = "local-"

// MutationEvent is the payload of every mutation event.
type MutationEvent struct {
	Kind     string
	Entity   string
	Response *APIResponse
}

// ============================================================================
// Event Emitter
// ============================================================================

// EventHandler handles mutation events.
type EventHandler func(event string, payload any)

type emitter struct {
	mu        sync.RWMutex
	listeners map[string][]EventHandler
}

func (e *emitter) On(event string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]EventHandler)
	}
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *emitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, payload)
		}()
	}
}

// ============================================================================
// Optimistic edits
// ============================================================================

// OptimisticEdit is one local change with the captured state needed to undo
// it. apply captures and changes, returning false when there is nothing to
// do. rollback restores exactly what apply captured. confirm merges
// authoritative fields from a successful response.
type OptimisticEdit struct {
	Kind     string
	Entity   string
	apply    func() bool
	rollback func()
	confirm  func(*APIResponse)
}

func (e *OptimisticEdit) key() string {
	return e.Kind + ":" + e.Entity
}

// ackData is the subset of a dispatch result that can refine a local edit.
type ackData struct {
	PID          flexString `json:"pid"`
	ID           flexString `json:"id"`
	MID          flexString `json:"mid"`
	Timestamp    string     `json:"timestamp"`
	Likes        *int       `json:"likes"`
	CommentCount *int       `json:"comment_count"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	s, _ := toString(v)
	*f = flexString(s)
	return nil
}

func decodeAck(res *APIResponse) ackData {
	var ack ackData
	_ = res.Decode(&ack)
	return ack
}

// ============================================================================
// Mutations
// ============================================================================

// Mutations applies user actions to AppState immediately, dispatches them and
// rolls the local change back when the dispatch fails. Failures are never
// retried automatically.
type Mutations struct {
	emitter
	state   *AppState
	actions *ActionsClient
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewMutations(state *AppState, actions *ActionsClient) *Mutations {
	return &Mutations{
		emitter:  emitter{listeners: make(map[string][]EventHandler)},
		state:    state,
		actions:  actions,
		logger:   log.Logger.With().Str("component", "mutations").Logger(),
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// InFlight reports whether a mutation of kind on entity is pending.
func (m *Mutations) InFlight(kind, entity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[kind+":"+entity]
	return ok
}

func (m *Mutations) acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[key]; busy {
		return false
	}
	m.inflight[key] = struct{}{}
	return true
}

func (m *Mutations) release(key string) {
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
}

// run applies edit, awaits call and settles the edit. The in-flight slot is
// taken before apply and released after settling. An edit whose apply
// reports nothing to do is not dispatched.
func (m *Mutations) run(ctx context.Context, edit *OptimisticEdit, call func(context.Context) *APIResponse) (*APIResponse, error) {
	key := edit.key()
	if !m.acquire(key) {
		return nil, ErrMutationInFlight
	}
	defer m.release(key)

	if !edit.apply() {
		return nil, nil
	}
	m.emit(EventMutationApplied, MutationEvent{Kind: edit.Kind, Entity: edit.Entity})

	res := call(ctx)
	if res.OK() {
		if edit.confirm != nil {
			edit.confirm(res)
		}
		m.emit(EventMutationConfirmed, MutationEvent{Kind: edit.Kind, Entity: edit.Entity, Response: res})
		return res, nil
	}

	edit.rollback()
	rollbacksTotal.WithLabelValues(edit.Kind).Inc()
	m.logger.Warn().Str("kind", edit.Kind).Str("entity", edit.Entity).Str("message", res.Message).Msg("mutation rolled back")
	m.emit(EventMutationRolledBack, MutationEvent{Kind: edit.Kind, Entity: edit.Entity, Response: res})

	err := &DispatchError{Action: edit.Kind, Status: res.Status, Message: res.Message}
	return res, err
}

func (m *Mutations) signedIn() (*User, error) {
	u := m.state.CurrentUser()
	if u == nil || u.Username == "" {
		return nil, ErrNotSignedIn
	}
	return u, nil
}

// ============================================================================
// Posts
// ============================================================================

// Like bumps the post's like count and marks it liked, then dispatches.
// Liking an already-liked post does nothing and returns nil, nil.
func (m *Mutations) Like(ctx context.Context, pid string) (*APIResponse, error) {
	user, err := m.signedIn()
	if err != nil {
		return nil, err
	}

	var (
		prevLikes int
		hadPost   bool
	)
	edit := &OptimisticEdit{
		Kind:   MutationLike,
		Entity: pid,
		apply: func() bool {
			if m.state.IsLiked(pid) {
				return false
			}
			if p, ok := m.state.Post(pid); ok {
				prevLikes, hadPost = p.Likes, true
				m.state.UpdatePost(pid, func(p *Post) { p.Likes = prevLikes + 1 })
			}
			m.state.SetLiked(pid, true)
			return true
		},
		rollback: func() {
			if hadPost {
				m.state.UpdatePost(pid, func(p *Post) { p.Likes = prevLikes })
			}
			m.state.SetLiked(pid, false)
		},
		confirm: func(res *APIResponse) {
			if ack := decodeAck(res); ack.Likes != nil {
				m.state.UpdatePost(pid, func(p *Post) { p.Likes = *ack.Likes })
			}
		},
	}

	return m.run(ctx, edit, func(ctx context.Context) *APIResponse {
		return m.actions.Like(ctx, pid, user.Username)
	})
}

// AddComment bumps the post's comment count and dispatches the comment.
func (m *Mutations) AddComment(ctx context.Context, pid, content string) (*APIResponse, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	user, err := m.signedIn()
	if err != nil {
		return nil, err
	}

	var (
		prevCount int
		hadPost   bool
	)
	edit := &OptimisticEdit{
		Kind:   MutationComment,
		Entity: pid,
		apply: func() bool {
			if p, ok := m.state.Post(pid); ok {
				prevCount, hadPost = p.CommentCount, true
				m.state.UpdatePost(pid, func(p *Post) { p.CommentCount = prevCount + 1 })
			}
			return true
		},
		rollback: func() {
			if hadPost {
				m.state.UpdatePost(pid, func(p *Post) { p.CommentCount = prevCount })
			}
		},
		confirm: func(res *APIResponse) {
			if ack := decodeAck(res); ack.CommentCount != nil {
				m.state.UpdatePost(pid, func(p *Post) { p.CommentCount = *ack.CommentCount })
			}
		},
	}
	return m.run(ctx, edit, func(ctx context.Context) *APIResponse {
		return m.actions.Comment(ctx, pid, user.Username, content)
	})
}

// CreatePost puts a local post at the top of the feed and dispatches it.
// On success the local id is swapped for the server's when one is returned.
func (m *Mutations) CreatePost(ctx context.Context, content, media, mediaType string) (Post, error) {
	if strings.TrimSpace(content) == "" && media == "" {
		return Post{}, ErrEmptyContent
	}
	user, err := m.signedIn()
	if err != nil {
		return Post{}, err
	}
	if media != "" && mediaType == "" {
		mediaType = MediaTypeOf(media)
	}

	role := user.Role
	if role == "" {
		role = RoleUser
	}
	local := Post{
		PID:       localIDPrefix + uuid.NewString(),
		Author:    user.Username,
		Content:   content,
		Media:     media,
		MediaType: mediaType,
		Timestamp: isoTimestamp(m.now()),
		Role:      string(role),
		Pic:       user.Pic,
	}
	result := local

	edit := &OptimisticEdit{
		Kind:     MutationCreatePost,
		Entity:   local.PID,
		apply:    func() bool { m.state.AddPost(local); return true },
		rollback: func() { m.state.RemovePost(local.PID) },
		confirm: func(res *APIResponse) {
			ack := decodeAck(res)
			if ack.PID == "" && ack.ID == "" {
				return
			}
			m.state.UpdatePost(local.PID, func(p *Post) {
				p.PID = firstNonEmpty(string(ack.PID), string(ack.ID))
				if ack.Timestamp != "" {
					p.Timestamp = ack.Timestamp
				}
				result = *p
			})
		},
	}
	if _, err := m.run(ctx, edit, func(ctx context.Context) *APIResponse {
		return m.actions.CreatePost(ctx, user.Username, content, media, mediaType)
	}); err != nil {
		return Post{}, err
	}
	return result, nil
}

// DeletePost removes the post locally and dispatches the delete. A failed
// delete puts the post back at its original position.
func (m *Mutations) DeletePost(ctx context.Context, pid string) (*APIResponse, error) {
	user, err := m.signedIn()
	if err != nil {
		return nil, err
	}

	var (
		removed Post
		index   int
		had     bool
	)
	edit := &OptimisticEdit{
		Kind:   MutationDeletePost,
		Entity: pid,
		apply: func() bool {
			removed, index, had = m.state.RemovePost(pid)
			return true
		},
		rollback: func() {
			if had {
				m.state.InsertPost(index, removed)
			}
		},
	}
	return m.run(ctx, edit, func(ctx context.Context) *APIResponse {
		return m.actions.DeletePost(ctx, pid, user.Username)
	})
}

// ============================================================================
// Messages
// ============================================================================

// SendMessage appends a local message to the open conversation and
// dispatches it. The local id is replaced by the server's on success.
func (m *Mutations) SendMessage(ctx context.Context, receiver, content, media, mediaType string) (Message, error) {
	if strings.TrimSpace(content) == "" && media == "" {
		return Message{}, ErrEmptyContent
	}
	user, err := m.signedIn()
	if err != nil {
		return Message{}, err
	}
	if media != "" && mediaType == "" {
		mediaType = MediaTypeOf(media)
	}

	local := Message{
		ID:        localIDPrefix + uuid.NewString(),
		Sender:    user.Username,
		Receiver:  receiver,
		Content:   content,
		Media:     media,
		MediaType: mediaType,
		Timestamp: isoTimestamp(m.now()),
	}
	result := local

	edit := &OptimisticEdit{
		Kind:     MutationSendMessage,
		Entity:   local.ID,
		apply:    func() bool { m.state.AddMessage(local); return true },
		rollback: func() { m.state.RemoveMessage(local.ID) },
		confirm: func(res *APIResponse) {
			ack := decodeAck(res)
			id := firstNonEmpty(string(ack.MID), string(ack.ID))
			if id == "" {
				return
			}
			confirmed := local
			confirmed.ID = id
			if ack.Timestamp != "" {
				confirmed.Timestamp = ack.Timestamp
			}
			m.state.ReplaceMessage(local.ID, confirmed)
			result = confirmed
		},
	}
	if _, err := m.run(ctx, edit, func(ctx context.Context) *APIResponse {
		return m.actions.SendMessage(ctx, user.Username, receiver, content, media, mediaType)
	}); err != nil {
		return Message{}, err
	}
	return result, nil
}

// DeleteMessage removes the message locally and dispatches the delete. A
// failed delete puts it back at its original position.
func (m *Mutations) DeleteMessage(ctx context.Context, id string) (*APIResponse, error) {
	user, err := m.signedIn()
	if err != nil {
		return nil, err
	}

	var (
		removed Message
		index   int
		had     bool
	)
	edit := &OptimisticEdit{
		Kind:   MutationDeleteMessage,
		Entity: id,
		apply: func() bool {
			removed, index, had = m.state.RemoveMessage(id)
			return true
		},
		rollback: func() {
			if had {
				m.state.InsertMessage(index, removed)
			}
		},
	}
	return m.run(ctx, edit, func(ctx context.Context) *APIResponse {
		return m.actions.DeleteMessage(ctx, id, user.Username)
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
