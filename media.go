package hxcommunity

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// MediaMarker brackets media URLs embedded in message text.
const MediaMarker = "§HX§"

// Media kinds derived from a URL's extension.
const (
	MediaImage = "image"
	MediaAudio = "audio"
	MediaVideo = "video"
)

// MediaClient uploads files to the anonymous upload host.
type MediaClient struct{ c *Client }

// Upload sends data as a multipart form (reqtype=fileupload, file under
// fileToUpload) and returns the hosted URL.
func (m *MediaClient) Upload(ctx context.Context, data []byte, fileName string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("reqtype", "fileupload"); err != nil {
		return "", fmt.Errorf("failed to write form field: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="fileToUpload"; filename=%q`, filepath.Base(fileName)))
	h.Set("Content-Type", guessMimeType(fileName))
	part, err := w.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write file data: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close form: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", w.FormDataContentType())
	body, err := m.c.doRequest(ctx, http.MethodPost, m.c.uploadURL, &buf, header)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	u := strings.TrimSpace(string(body))
	if u == "" {
		return "", fmt.Errorf("upload failed: empty response")
	}
	return u, nil
}

// UploadFile reads filePath and uploads it.
func (m *MediaClient) UploadFile(ctx context.Context, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return m.Upload(ctx, data, filePath)
}

// guessMimeType returns MIME type from file extension.
func guessMimeType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		return "application/octet-stream"
	}
	// Fallback for types not in Go's builtin registry
	fallback := map[string]string{
		".m4a": "audio/mp4", ".mkv": "video/x-matroska", ".mov": "video/quicktime",
		".webp": "image/webp", ".webm": "video/webm", ".ogg": "audio/ogg",
	}
	if m, ok := fallback[ext]; ok {
		return m
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if idx := strings.Index(t, ";"); idx > 0 {
			t = strings.TrimSpace(t[:idx])
		}
		return t
	}
	return "application/octet-stream"
}

// ============================================================================
// Media markers
// ============================================================================

// MediaLink is a marked URL found in message text.
type MediaLink struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

var (
	mediaLinkRe = regexp.MustCompile(regexp.QuoteMeta(MediaMarker) + `(.*?)` + regexp.QuoteMeta(MediaMarker))
	audioExtRe  = regexp.MustCompile(`(?i)\.(mp3|wav|ogg|m4a|webm)$`)
	videoExtRe  = regexp.MustCompile(`(?i)\.(mp4|mov|avi|webm|mkv)$`)
)

// MarkMediaLink wraps u in media markers.
func MarkMediaLink(u string) string {
	return MediaMarker + u + MediaMarker
}

func IsMarkedMedia(text string) bool {
	return strings.Contains(text, MediaMarker)
}

// ExtractMediaLinks returns every marked URL in text, in order. A .webm URL
// is classed as audio.
func ExtractMediaLinks(text string) []MediaLink {
	var links []MediaLink
	for _, m := range mediaLinkRe.FindAllStringSubmatch(text, -1) {
		links = append(links, MediaLink{URL: m[1], Type: MediaTypeOf(m[1])})
	}
	return links
}

// MediaTypeOf classifies a URL by extension, defaulting to image.
func MediaTypeOf(u string) string {
	switch {
	case audioExtRe.MatchString(u):
		return MediaAudio
	case videoExtRe.MatchString(u):
		return MediaVideo
	default:
		return MediaImage
	}
}
