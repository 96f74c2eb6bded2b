package hxcommunity

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Storage keys. Each is encrypted on its own.
const (
	KeyCurrentUser = "hx_comm_user"
	KeyLikedPosts  = "hx_comm_liked"
	KeyRoleCache   = "hx_role_cache"
	KeyAIChats     = "dechris_ai_chats"
	KeyFeedCache   = "hx_feed_cache"
	KeyTheme       = "hx_theme"
)

// ErrQuotaExceeded is returned by a backend that has no room left.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// ============================================================================
// Backend
// ============================================================================

// Backend is a synchronous string key-value store. GetItem reports ok=false
// for a missing key.
type Backend interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Clear() error
}

// MemoryBackend is a goroutine-safe in-memory backend. A positive quota caps
// the total bytes of keys plus values.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]string
	quota int
	used  int
}

// NewMemoryBackend creates an empty backend. quota <= 0 means unlimited.
func NewMemoryBackend(quota int) *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string), quota: quota}
}

func (b *MemoryBackend) GetItem(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.items[key]
	return v, ok, nil
}

func (b *MemoryBackend) SetItem(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	used := b.used
	if old, ok := b.items[key]; ok {
		used -= len(key) + len(old)
	}
	used += len(key) + len(value)
	if b.quota > 0 && used > b.quota {
		return ErrQuotaExceeded
	}
	b.items[key] = value
	b.used = used
	return nil
}

func (b *MemoryBackend) RemoveItem(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.items[key]; ok {
		b.used -= len(key) + len(old)
		delete(b.items, key)
	}
	return nil
}

func (b *MemoryBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make(map[string]string)
	b.used = 0
	return nil
}

// ============================================================================
// Store
// ============================================================================

// Store reads and writes JSON values through a Cipher and a Backend.
// Reads never fail: anything unreadable yields the caller's fallback.
// Writes never fail either; backend errors are logged and dropped.
type Store struct {
	backend Backend
	cipher  Cipher
	logger  zerolog.Logger
}

type StoreOption func(*Store)

func WithStoreLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore wraps backend. A nil cipher stores plaintext.
func NewStore(backend Backend, c Cipher, opts ...StoreOption) *Store {
	if c == nil {
		c = PlainCipher{}
	}
	s := &Store{
		backend: backend,
		cipher:  c,
		logger:  log.Logger.With().Str("component", "store").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the value stored under key, or fallback when the key is
// missing, fails to decrypt or holds malformed JSON.
func Load[T any](s *Store, key string, fallback T) T {
	raw, ok, err := s.backend.GetItem(key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("storage read failed")
		return fallback
	}
	if !ok || raw == "" {
		return fallback
	}
	plain, err := s.cipher.Decrypt(raw)
	if err != nil || plain == "" {
		s.logger.Debug().Err(err).Str("key", key).Msg("stored value did not decrypt")
		return fallback
	}
	var v T
	if err := json.Unmarshal([]byte(plain), &v); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("stored value is not valid JSON")
		return fallback
	}
	return v
}

// Set stores v under key.
func (s *Store) Set(key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("storage encode failed")
		return
	}
	enc, err := s.cipher.Encrypt(string(b))
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("storage encrypt failed")
		return
	}
	if err := s.backend.SetItem(key, enc); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("storage write failed")
	}
}

func (s *Store) Remove(key string) {
	if err := s.backend.RemoveItem(key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("storage remove failed")
	}
}

// Clear drops every key, including ones this package did not write.
func (s *Store) Clear() {
	if err := s.backend.Clear(); err != nil {
		s.logger.Warn().Err(err).Msg("storage clear failed")
	}
}
