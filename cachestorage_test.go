package hxcommunity

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheStorages(t *testing.T) map[string]CacheStorage {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "caches.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]CacheStorage{
		"memory": NewMemoryCacheStorage(),
		"sqlite": NewSQLiteCacheStorage(db),
	}
}

func TestCacheStorage(t *testing.T) {
	for name, storage := range cacheStorages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			has, err := storage.Has(ctx, "hx-community-v1")
			require.NoError(t, err)
			assert.False(t, has)

			cache, err := storage.Open(ctx, "hx-community-v1")
			require.NoError(t, err)
			_, err = storage.Open(ctx, "hx-community-v2")
			require.NoError(t, err)

			names, err := storage.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"hx-community-v1", "hx-community-v2"}, names)

			stored := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
			entry := &CacheEntry{
				URL:      "http://app/index.html",
				Status:   http.StatusOK,
				Header:   http.Header{"Content-Type": {"text/html"}},
				Body:     []byte("<html></html>"),
				StoredAt: stored,
			}
			require.NoError(t, cache.Put(ctx, entry))
			entry.Body[0] = 'X'

			got, err := cache.Match(ctx, "http://app/index.html")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "<html></html>", string(got.Body), "stored entries are independent of the caller's copy")
			assert.Equal(t, "text/html", got.Header.Get("Content-Type"))
			assert.True(t, stored.Equal(got.StoredAt))

			miss, err := cache.Match(ctx, "http://app/other")
			require.NoError(t, err)
			assert.Nil(t, miss)

			require.NoError(t, cache.Put(ctx, &CacheEntry{URL: "http://app/index.html", Status: 200, Header: http.Header{}, Body: []byte("v2")}))
			got, _ = cache.Match(ctx, "http://app/index.html")
			assert.Equal(t, "v2", string(got.Body))

			keys, err := cache.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"http://app/index.html"}, keys)

			ok, err := cache.Delete(ctx, "http://app/index.html")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, _ = cache.Delete(ctx, "http://app/index.html")
			assert.False(t, ok)

			require.NoError(t, cache.Put(ctx, &CacheEntry{URL: "http://app/a", Status: 200, Header: http.Header{}, Body: []byte("a")}))
			deleted, err := storage.Delete(ctx, "hx-community-v1")
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, _ = storage.Delete(ctx, "hx-community-v1")
			assert.False(t, deleted)

			stale, _ := cache.Match(ctx, "http://app/a")
			assert.Nil(t, stale, "handles to a deleted cache see nothing")
			names, _ = storage.Keys(ctx)
			assert.Equal(t, []string{"hx-community-v2"}, names)
		})
	}
}

func TestCacheEntryResponse(t *testing.T) {
	e := &CacheEntry{URL: "http://app/x", Status: http.StatusOK, Header: http.Header{"X-A": {"1"}}, Body: []byte("body")}
	req, _ := http.NewRequest(http.MethodGet, e.URL, nil)

	first := e.Response(req)
	second := e.Response(req)
	b1, _ := io.ReadAll(first.Body)
	b2, _ := io.ReadAll(second.Body)
	assert.Equal(t, "body", string(b1))
	assert.Equal(t, "body", string(b2))
	assert.Equal(t, "4", first.Header.Get("Content-Length"))
	assert.Equal(t, "200 OK", first.Status)
	assert.Same(t, req, first.Request)

	first.Header.Set("X-A", "changed")
	assert.Equal(t, "1", e.Header.Get("X-A"))
}

func TestCaptureResponse(t *testing.T) {
	resp := &http.Response{StatusCode: 201, Header: http.Header{"X-B": {"2"}}, Body: io.NopCloser(strings.NewReader("payload"))}
	now := time.Now()

	entry, replay, err := captureResponse("http://app/y", resp, now)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(entry.Body))
	assert.Equal(t, 201, entry.Status)
	assert.Equal(t, now, entry.StoredAt)

	body, _ := io.ReadAll(replay.Body)
	assert.Equal(t, "payload", string(body), "caller can still read the body")
}
