package hxcommunity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// CacheEntry is one stored response, keyed by full request URL.
type CacheEntry struct {
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// Response rebuilds an *http.Response for req from the entry. Each call
// returns an independent body.
func (e *CacheEntry) Response(req *http.Request) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func (e *CacheEntry) clone() *CacheEntry {
	cp := *e
	cp.Header = e.Header.Clone()
	cp.Body = append([]byte(nil), e.Body...)
	return &cp
}

// captureResponse drains resp into an entry and returns a replacement
// response whose body can still be read by the caller.
func captureResponse(key string, resp *http.Response, now time.Time) (*CacheEntry, *http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	entry := &CacheEntry{
		URL:      key,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: now,
	}
	return entry, resp, nil
}

// ============================================================================
// Interfaces
// ============================================================================

// Cache is one named generation of stored responses.
type Cache interface {
	// Match returns the entry for url, or nil when there is none.
	Match(ctx context.Context, url string) (*CacheEntry, error)
	Put(ctx context.Context, entry *CacheEntry) error
	Delete(ctx context.Context, url string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// CacheStorage holds the named caches.
type CacheStorage interface {
	// Open returns the named cache, creating it when missing.
	Open(ctx context.Context, name string) (Cache, error)
	Has(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// ============================================================================
// In-memory implementation
// ============================================================================

// MemoryCacheStorage keeps caches in process memory.
type MemoryCacheStorage struct {
	mu     sync.Mutex
	caches map[string]*memoryCache
}

func NewMemoryCacheStorage() *MemoryCacheStorage {
	return &MemoryCacheStorage{caches: make(map[string]*memoryCache)}
}

func (s *MemoryCacheStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[name]
	if !ok {
		c = &memoryCache{entries: make(map[string]*CacheEntry)}
		s.caches[name] = c
	}
	return c, nil
}

func (s *MemoryCacheStorage) Has(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.caches[name]
	return ok, nil
}

func (s *MemoryCacheStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[name]
	if ok {
		c.drop()
		delete(s.caches, name)
	}
	return ok, nil
}

func (s *MemoryCacheStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
}

func (c *memoryCache) Match(_ context.Context, url string) (*CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[url]; ok {
		return e.clone(), nil
	}
	return nil, nil
}

func (c *memoryCache) Put(_ context.Context, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.URL] = entry.clone()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, url string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[url]
	delete(c.entries, url)
	return ok, nil
}

func (c *memoryCache) Keys(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// drop empties a deleted cache so stale handles see nothing.
func (c *memoryCache) drop() {
	c.mu.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mu.Unlock()
}
