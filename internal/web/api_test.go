package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/scribe/internal/engine"
	"github.com/haasonsaas/scribe/internal/observability"
	"github.com/haasonsaas/scribe/internal/store"
	"github.com/haasonsaas/scribe/internal/tools"
	"github.com/haasonsaas/scribe/pkg/models"
)

type testEnv struct {
	handler http.Handler
	store   store.Store
	root    string
}

func newTestEnv(t *testing.T, eng engine.Engine) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	root := t.TempDir()
	h := NewHandler(&Config{
		Store:         st,
		Engine:        eng,
		ArtifactsRoot: root,
		Logger:        observability.NewLogger(observability.LogConfig{Output: io.Discard}),
	})
	return &testEnv{handler: h.Mount(), store: st, root: root}
}

func scriptedEngine(steps []engine.Step, final string) engine.Engine {
	return engine.NewScriptedEngine(tools.NewRegistry(), steps, final)
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func TestChatStreamsSSE(t *testing.T) {
	env := newTestEnv(t, scriptedEngine([]engine.Step{{Text: "hello there"}}, "hello there"))

	rec := env.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, ": ") {
		t.Error("stream does not begin with the padding comment")
	}
	if !strings.Contains(body, `"type":"start"`) || !strings.Contains(body, `"delta":"hello there"`) {
		t.Errorf("stream body missing expected chunks:\n%s", body)
	}
	if !strings.Contains(body, `"finishReason":"stop"`) {
		t.Error("stream does not finish with stop")
	}

	// A new conversation was created and both turns persisted.
	summaries, err := env.store.ListConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("conversations = %d, want 1", len(summaries))
	}
	if summaries[0].MessageCount != 2 {
		t.Errorf("message count = %d, want 2", summaries[0].MessageCount)
	}
	if summaries[0].Title != "hi" {
		t.Errorf("title = %q, want derived from first message", summaries[0].Title)
	}
}

func TestChatUnknownConversation(t *testing.T) {
	env := newTestEnv(t, scriptedEngine(nil, "hi"))

	rec := env.do(t, http.MethodPost, "/api/chat", map[string]string{
		"message":         "hi",
		"conversation_id": "nope",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	env := newTestEnv(t, scriptedEngine(nil, "hi"))

	rec := env.do(t, http.MethodPost, "/api/chat", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t, scriptedEngine(nil, "hi"))

	rec := env.do(t, http.MethodPost, "/api/conversations", map[string]string{"title": "Plans"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	var conv models.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatal(err)
	}
	if conv.ID == "" || conv.Title != "Plans" {
		t.Fatalf("created conversation = %+v", conv)
	}

	rec = env.do(t, http.MethodPatch, "/api/conversations/"+conv.ID, map[string]string{"title": "Renamed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/conversations/"+conv.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatal(err)
	}
	if conv.Title != "Renamed" {
		t.Errorf("title = %q", conv.Title)
	}

	rec = env.do(t, http.MethodDelete, "/api/conversations/"+conv.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/conversations/"+conv.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestArtifactDownload(t *testing.T) {
	env := newTestEnv(t, scriptedEngine(nil, "hi"))
	if _, err := env.store.CreateConversation(context.Background(), "conv-a", "Test"); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(env.root, "conv-a")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte("# Report"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/artifacts/conv-a/report.md", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/markdown" {
		t.Errorf("Content-Type = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "report.md") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Body.String() != "# Report" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestArtifactDownloadRefusals(t *testing.T) {
	env := newTestEnv(t, scriptedEngine(nil, "hi"))
	if _, err := env.store.CreateConversation(context.Background(), "conv-a", "Test"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown conversation", "/api/artifacts/ghost/report.md", http.StatusNotFound},
		{"missing file", "/api/artifacts/conv-a/missing.md", http.StatusNotFound},
		{"disallowed extension", "/api/artifacts/conv-a/run.sh", http.StatusForbidden},
		{"backslash traversal", `/api/artifacts/conv-a/..\secret.md`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestArtifactDotDotPathNeverServesFile(t *testing.T) {
	env := newTestEnv(t, scriptedEngine(nil, "hi"))
	if _, err := env.store.CreateConversation(context.Background(), "conv-a", "Test"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.root, "secret.md"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodGet, "/api/artifacts/conv-a/../secret.md", nil)
	if rec.Code == http.StatusOK && rec.Body.String() == "secret" {
		t.Error("path traversal served a file outside the conversation directory")
	}
}

func TestArtifactList(t *testing.T) {
	env := newTestEnv(t, scriptedEngine(nil, "hi"))
	if _, err := env.store.CreateConversation(context.Background(), "conv-a", "Test"); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(env.root, "conv-a")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"b.md", "a.csv", "skip.sh"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/artifacts/conv-a", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Artifacts []models.Artifact `json:"artifacts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Artifacts) != 2 {
		t.Fatalf("artifacts = %+v, want the two allowed files", resp.Artifacts)
	}
	if resp.Artifacts[0].Filename != "a.csv" || resp.Artifacts[1].Filename != "b.md" {
		t.Errorf("artifacts = %+v, want sorted by filename", resp.Artifacts)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, scriptedEngine(nil, "hi"))
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, scriptedEngine(nil, "hi"))
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}
