package hxcommunity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// PushSignatureHeader carries the hex HMAC-SHA256 of a push body.
const PushSignatureHeader = "X-HX-Signature"

const maxPushBody = 64 << 10

// VerifyPushSignature checks an HMAC-SHA256 signature over body, with or
// without a "sha256=" prefix, in constant time.
func VerifyPushSignature(body []byte, signature, secret string) bool {
	if len(body) == 0 || signature == "" || secret == "" {
		return false
	}
	sig := strings.TrimPrefix(signature, "sha256=")
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(sig) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

// SignPush returns the signature header value for body.
func SignPush(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ParsePushPayload decodes a push body. A title is required.
func ParsePushPayload(body []byte) (*PushPayload, error) {
	var p PushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON in push body: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, fmt.Errorf("%w: missing title in push payload", ErrMalformedPayload)
	}
	return &p, nil
}

// PushTarget receives verified push bodies.
type PushTarget interface {
	HandlePush(ctx context.Context, payload []byte) error
}

// PushHandler verifies, parses and forwards push deliveries.
type PushHandler struct {
	secret string
	target PushTarget
}

// NewPushHandler requires a non-empty shared secret.
func NewPushHandler(secret string, target PushTarget) (*PushHandler, error) {
	if secret == "" {
		return nil, fmt.Errorf("push secret is required")
	}
	return &PushHandler{secret: secret, target: target}, nil
}

// Handle processes one delivery and returns the status code and body to
// write back.
func (h *PushHandler) Handle(ctx context.Context, body []byte, signature string) (int, any) {
	if !VerifyPushSignature(body, signature, h.secret) {
		return http.StatusUnauthorized, map[string]string{"error": "Invalid signature"}
	}
	if _, err := ParsePushPayload(body); err != nil {
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	}
	if err := h.target.HandlePush(ctx, body); err != nil {
		if errors.Is(err, ErrNoActiveWorker) {
			return http.StatusServiceUnavailable, map[string]string{"error": err.Error()}
		}
		return http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}
	return http.StatusOK, map[string]bool{"ok": true}
}

// HTTPHandler serves POST deliveries.
func (h *PushHandler) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(rw, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
			return
		}
		defer r.Body.Close()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "Failed to read body"})
			return
		}
		status, data := h.Handle(r.Context(), body, r.Header.Get(PushSignatureHeader))
		writeJSON(rw, status, data)
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
