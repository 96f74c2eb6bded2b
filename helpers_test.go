package hxcommunity

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// ============================================================================
// Fake community backend
// ============================================================================

// sheetFixture is the table a fake gviz endpoint returns for one sheet.
type sheetFixture struct {
	cols []string
	rows [][]interface{}
}

// scriptReply is what the fake script endpoint answers for an action.
type scriptReply struct {
	status int
	body   interface{}
}

// fakeBackend serves the sheet, script, upload and chat endpoints.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	sheets     map[string]sheetFixture
	sheetFail  map[string]int
	queries    []string
	actions    []map[string]interface{}
	replies    map[string]scriptReply
	gate       chan struct{}
	uploads    []string
	uploadURL  string
	aiRequests []chatCompletionRequest
	aiReply    string
	aiStatus   int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		t:         t,
		sheets:    make(map[string]sheetFixture),
		sheetFail: make(map[string]int),
		replies:   make(map[string]scriptReply),
		uploadURL: "https://files.example.com/abc.png",
		aiReply:   "Hi there!",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/sheet", fb.handleSheet)
	mux.HandleFunc("/script", fb.handleScript)
	mux.HandleFunc("/upload", fb.handleUpload)
	mux.HandleFunc("/ai", fb.handleAI)
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

// clientOptions points a Client at the fake endpoints.
func (fb *fakeBackend) clientOptions() []ClientOption {
	return []ClientOption{
		WithSheetURL(fb.srv.URL + "/sheet"),
		WithScriptURL(fb.srv.URL + "/script"),
		WithUploadURL(fb.srv.URL + "/upload"),
		WithAIEndpoint(fb.srv.URL+"/ai", "test-key"),
		WithLogger(zerolog.Nop()),
		WithDebugLogging(false),
	}
}

func (fb *fakeBackend) client(opts ...ClientOption) *Client {
	return NewClient(append(fb.clientOptions(), opts...)...)
}

func (fb *fakeBackend) setSheet(name string, cols []string, rows ...[]interface{}) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.sheets[name] = sheetFixture{cols: cols, rows: rows}
	delete(fb.sheetFail, name)
}

func (fb *fakeBackend) failSheet(name string, status int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.sheetFail[name] = status
}

// reply sets the answer for action. A string body is written as is.
func (fb *fakeBackend) reply(action string, status int, body interface{}) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.replies[action] = scriptReply{status: status, body: body}
}

// hold makes script calls wait until release is called.
func (fb *fakeBackend) hold() (release func()) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	gate := make(chan struct{})
	fb.gate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (fb *fakeBackend) recordedActions() []map[string]interface{} {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]map[string]interface{}(nil), fb.actions...)
}

func (fb *fakeBackend) recordedQueries() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.queries...)
}

func (fb *fakeBackend) handleSheet(w http.ResponseWriter, r *http.Request) {
	sheet := r.URL.Query().Get("sheet")
	fb.mu.Lock()
	fb.queries = append(fb.queries, sheet+": "+r.URL.Query().Get("tq"))
	fail, failing := fb.sheetFail[sheet]
	fix := fb.sheets[sheet]
	fb.mu.Unlock()

	if failing {
		http.Error(w, "sheet unavailable", fail)
		return
	}
	fmt.Fprintf(w, "/*O_o*/\ngoogle.visualization.Query.setResponse(%s);", gvizJSON(fix))
}

func gvizJSON(fix sheetFixture) string {
	type cell struct {
		V interface{} `json:"v"`
	}
	cols := make([]map[string]string, len(fix.cols))
	for i, c := range fix.cols {
		cols[i] = map[string]string{"id": string(rune('A' + i)), "label": c, "type": "string"}
	}
	rows := make([]map[string][]*cell, len(fix.rows))
	for i, r := range fix.rows {
		cells := make([]*cell, len(r))
		for j, v := range r {
			if v != nil {
				cells[j] = &cell{V: v}
			}
		}
		rows[i] = map[string][]*cell{"c": cells}
	}
	b, _ := json.Marshal(map[string]interface{}{
		"version": "0.6",
		"status":  "ok",
		"table":   map[string]interface{}{"cols": cols, "rows": rows},
	})
	return string(b)
}

func (fb *fakeBackend) handleScript(w http.ResponseWriter, r *http.Request) {
	var envelope struct {
		Payload string `json:"payload"`
	}
	body, _ := io.ReadAll(r.Body)
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}
	var payload map[string]interface{}
	if err := Deobfuscate(envelope.Payload, &payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	fb.mu.Lock()
	fb.actions = append(fb.actions, payload)
	gate := fb.gate
	action, _ := payload["action"].(string)
	rep, ok := fb.replies[action]
	fb.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		rep = scriptReply{status: http.StatusOK, body: map[string]string{"status": "Success"}}
	}
	w.WriteHeader(rep.status)
	if s, isString := rep.body.(string); isString {
		io.WriteString(w, s)
		return
	}
	json.NewEncoder(w).Encode(rep.body)
}

func (fb *fakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, hdr, err := r.FormFile("fileToUpload")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer f.Close()
	data, _ := io.ReadAll(f)

	fb.mu.Lock()
	fb.uploads = append(fb.uploads, fmt.Sprintf("%s|%s|%s|%s", r.FormValue("reqtype"), hdr.Filename, hdr.Header.Get("Content-Type"), data))
	u := fb.uploadURL
	fb.mu.Unlock()
	fmt.Fprintf(w, "%s\n", u)
}

func (fb *fakeBackend) handleAI(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fb.mu.Lock()
	fb.aiRequests = append(fb.aiRequests, req)
	status, reply := fb.aiStatus, fb.aiReply
	fb.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer test-key" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if status != 0 && status != http.StatusOK {
		http.Error(w, "upstream failure", status)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": reply}},
		},
	})
}

// ============================================================================
// Fixtures
// ============================================================================

func mustObfuscate(t *testing.T, v interface{}) string {
	t.Helper()
	s, err := Obfuscate(v)
	if err != nil {
		t.Fatalf("Obfuscate: %v", err)
	}
	return s
}

func newTestState(t *testing.T) (*AppState, *Store, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend(0)
	store := NewStore(backend, NewPassphraseCipher("test-passphrase"), WithStoreLogger(zerolog.Nop()))
	return NewAppState(store), store, backend
}

var postCols = []string{"pid", "author", "content", "media", "mediaType", "Likes", "comment_count", "timestamp", "role", "pic"}

func postRow(pid, author, content string, likes int) []interface{} {
	return []interface{}{pid, author, content, nil, nil, float64(likes), float64(0), "2024-05-01T10:00:00.000Z", "User", nil}
}

// errTransport fails every request.
type errTransport struct{ err error }

func (e errTransport) RoundTrip(*http.Request) (*http.Response, error) { return nil, e.err }
