package hxcommunity

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaUpload(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client()

	u, err := c.Media.Upload(context.Background(), []byte("PNGDATA"), "/tmp/photos/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/abc.png", u, "trailing newline is trimmed")

	fb.mu.Lock()
	uploads := append([]string(nil), fb.uploads...)
	fb.mu.Unlock()
	assert.Equal(t, []string{"fileupload|cat.png|image/png|PNGDATA"}, uploads)
}

func TestMediaUploadFile(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client()

	path := filepath.Join(t.TempDir(), "note.m4a")
	require.NoError(t, os.WriteFile(path, []byte("AUDIO"), 0o600))
	_, err := c.Media.UploadFile(context.Background(), path)
	require.NoError(t, err)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, "fileupload|note.m4a|audio/mp4|AUDIO", fb.uploads[0])

	_, err = c.Media.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestMediaUpload_Failures(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mu.Lock()
	fb.uploadURL = ""
	fb.mu.Unlock()

	_, err := fb.client().Media.Upload(context.Background(), []byte("x"), "a.png")
	assert.ErrorContains(t, err, "empty response")

	broken := fb.client(WithUploadURL(fb.srv.URL + "/nowhere"))
	_, err = broken.Media.Upload(context.Background(), []byte("x"), "a.png")
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.StatusCode)
}

func TestMediaTypeOf(t *testing.T) {
	cases := map[string]string{
		"https://x/a.mp3":     MediaAudio,
		"https://x/a.WAV":     MediaAudio,
		"https://x/a.webm":    MediaAudio,
		"https://x/a.mp4":     MediaVideo,
		"https://x/a.mkv":     MediaVideo,
		"https://x/a.png":     MediaImage,
		"https://x/no-ext":    MediaImage,
		"https://x/a.mp3?x=1": MediaImage,
	}
	for u, want := range cases {
		assert.Equal(t, want, MediaTypeOf(u), u)
	}
}

func TestMediaMarkers(t *testing.T) {
	text := "listen " + MarkMediaLink("https://x/a.ogg") + " and watch " + MarkMediaLink("https://x/b.mov")
	assert.True(t, IsMarkedMedia(text))
	assert.False(t, IsMarkedMedia("plain"))
	assert.Equal(t, []MediaLink{
		{URL: "https://x/a.ogg", Type: MediaAudio},
		{URL: "https://x/b.mov", Type: MediaVideo},
	}, ExtractMediaLinks(text))
	assert.Empty(t, ExtractMediaLinks("nothing here"))
}

func TestGuessMimeType(t *testing.T) {
	assert.Equal(t, "image/webp", guessMimeType("a.webp"))
	assert.Equal(t, "image/jpeg", guessMimeType("a.JPG"))
	assert.Equal(t, "application/octet-stream", guessMimeType("noext"))
	assert.Equal(t, "application/octet-stream", guessMimeType("a.zzzunknown"))
}
