package hxcommunity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ============================================================================
// Test Helpers
// ============================================================================

const testPushSecret = "test-push-secret-key"

const testPushBody = `{"title":"New message","body":"bob: hi","tag":"dm-bob","data":{"url":"/dm/bob"}}`

// recordingTarget captures forwarded push bodies.
type recordingTarget struct {
	bodies [][]byte
	err    error
}

func (r *recordingTarget) HandlePush(_ context.Context, payload []byte) error {
	if r.err != nil {
		return r.err
	}
	r.bodies = append(r.bodies, payload)
	return nil
}

// ============================================================================
// VerifyPushSignature
// ============================================================================

func TestVerifyPushSignature(t *testing.T) {
	body := []byte(testPushBody)

	t.Run("valid signature", func(t *testing.T) {
		if !VerifyPushSignature(body, SignPush(body, testPushSecret), testPushSecret) {
			t.Fatal("expected valid signature")
		}
	})

	t.Run("valid without prefix", func(t *testing.T) {
		sig := strings.TrimPrefix(SignPush(body, testPushSecret), "sha256=")
		if !VerifyPushSignature(body, sig, testPushSecret) {
			t.Fatal("expected valid signature without prefix")
		}
	})

	t.Run("wrong signature", func(t *testing.T) {
		if VerifyPushSignature(body, "sha256="+strings.Repeat("0", 64), testPushSecret) {
			t.Fatal("expected invalid signature")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		if VerifyPushSignature(body, SignPush(body, "wrong-secret"), testPushSecret) {
			t.Fatal("expected invalid signature with wrong secret")
		}
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := SignPush(body, testPushSecret)
		if VerifyPushSignature(append(body, 'x'), sig, testPushSecret) {
			t.Fatal("expected invalid for tampered body")
		}
	})

	t.Run("empty inputs", func(t *testing.T) {
		if VerifyPushSignature(nil, "sha256=abc", testPushSecret) {
			t.Fatal("expected false for empty body")
		}
		if VerifyPushSignature(body, "", testPushSecret) {
			t.Fatal("expected false for empty signature")
		}
		if VerifyPushSignature(body, "sha256=abc", "") {
			t.Fatal("expected false for empty secret")
		}
		if VerifyPushSignature(body, "sha256=", testPushSecret) {
			t.Fatal("expected false for sha256= prefix only")
		}
	})
}

// ============================================================================
// ParsePushPayload
// ============================================================================

func TestParsePushPayload(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		p, err := ParsePushPayload([]byte(testPushBody))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Title != "New message" || p.Tag != "dm-bob" {
			t.Errorf("unexpected payload: %+v", p)
		}
		if p.Data["url"] != "/dm/bob" {
			t.Errorf("expected data.url /dm/bob, got %v", p.Data["url"])
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParsePushPayload([]byte("not json"))
		if !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("expected ErrMalformedPayload, got %v", err)
		}
	})

	t.Run("missing title", func(t *testing.T) {
		_, err := ParsePushPayload([]byte(`{"body":"x"}`))
		if err == nil || !strings.Contains(err.Error(), "missing title") {
			t.Fatalf("expected missing title error, got %v", err)
		}
	})
}

// ============================================================================
// PushHandler
// ============================================================================

func TestNewPushHandler(t *testing.T) {
	if _, err := NewPushHandler("", &recordingTarget{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewPushHandler(testPushSecret, &recordingTarget{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPushHandlerHandle(t *testing.T) {
	body := []byte(testPushBody)
	sig := SignPush(body, testPushSecret)

	tests := []struct {
		name   string
		body   []byte
		sig    string
		err    error
		status int
	}{
		{"forwarded", body, sig, nil, http.StatusOK},
		{"bad signature", body, "sha256=" + strings.Repeat("a", 64), nil, http.StatusUnauthorized},
		{"bad payload", []byte(`{"body":"x"}`), SignPush([]byte(`{"body":"x"}`), testPushSecret), nil, http.StatusBadRequest},
		{"no worker", body, sig, ErrNoActiveWorker, http.StatusServiceUnavailable},
		{"target failure", body, sig, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &recordingTarget{err: tt.err}
			h, _ := NewPushHandler(testPushSecret, target)
			status, _ := h.Handle(context.Background(), tt.body, tt.sig)
			if status != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, status)
			}
			if tt.status == http.StatusOK && len(target.bodies) != 1 {
				t.Fatalf("expected one forwarded body, got %d", len(target.bodies))
			}
		})
	}
}

func TestPushHandlerHTTPHandler(t *testing.T) {
	f := newWorkerFixture(t)
	reg := NewRegistration(f.origin)
	t.Cleanup(reg.Close)
	if err := reg.Register(context.Background(), f.worker); err != nil {
		t.Fatalf("register: %v", err)
	}
	h, _ := NewPushHandler(testPushSecret, reg)
	srv := httptest.NewServer(h.HTTPHandler())
	defer srv.Close()

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Get(srv.URL)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", resp.StatusCode)
		}
	})

	t.Run("delivers notification", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(testPushBody))
		req.Header.Set(PushSignatureHeader, SignPush([]byte(testPushBody), testPushSecret))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
		}
		var out map[string]bool
		if err := json.Unmarshal(data, &out); err != nil || !out["ok"] {
			t.Fatalf("unexpected body %s", data)
		}
		shown := f.notifier.Shown()
		if len(shown) != 1 || shown[0].Title != "New message" {
			t.Fatalf("unexpected notifications: %+v", shown)
		}
	})

	t.Run("unsigned delivery", func(t *testing.T) {
		resp, err := http.Post(srv.URL, "application/json", strings.NewReader(testPushBody))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})
}
