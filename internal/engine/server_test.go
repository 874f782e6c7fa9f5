package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newModelDir(t *testing.T, size int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "org_model")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model.safetensors"), make([]byte, size), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dir
}

func newFakeChatServer(t *testing.T, reply string, capture *chatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": reply}, "finish_reason": "stop"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestServerEngineGenerate(t *testing.T) {
	var got chatCompletionRequest
	srv := newFakeChatServer(t, "hello there", &got)
	defer srv.Close()

	e := NewServerEngine(srv.URL, "", 5*time.Second, time.Second)
	dir := newModelDir(t, 64)
	h, err := e.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer h.Close()

	out, err := h.Generate(context.Background(), Request{
		System:      "be brief",
		Prompt:      "hi",
		Temperature: 0.7,
		MaxTokens:   32,
		History:     []Turn{{Role: "user", Content: "earlier"}, {Role: "assistant", Content: "noted"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "hello there" {
		t.Fatalf("unexpected response: %q", out)
	}
	// system + 2 history turns + user prompt
	if len(got.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d: %+v", len(got.Messages), got.Messages)
	}
	if got.Messages[0].Role != "system" || got.Messages[3].Content != "hi" {
		t.Fatalf("unexpected message layout: %+v", got.Messages)
	}
	if got.MaxTokens != 32 {
		t.Fatalf("expected max_tokens 32, got %d", got.MaxTokens)
	}
}

func TestServerEngineActiveMemoryTracksHandles(t *testing.T) {
	srv := newFakeChatServer(t, "x", nil)
	defer srv.Close()

	e := NewServerEngine(srv.URL, "", 0, time.Second)
	dir := newModelDir(t, 128)
	h, err := e.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.ActiveMemory() != 128 {
		t.Fatalf("expected 128 active bytes, got %d", e.ActiveMemory())
	}
	if err := h.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if e.ActiveMemory() != 0 {
		t.Fatalf("expected 0 active bytes after close, got %d", e.ActiveMemory())
	}
	// Close is idempotent.
	if err := h.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if e.ActiveMemory() != 0 {
		t.Fatalf("active bytes went negative-ish: %d", e.ActiveMemory())
	}
}

func TestServerEngineLoadMissingDir(t *testing.T) {
	e := NewServerEngine("http://127.0.0.1:0", "", 0, time.Second)
	if _, err := e.Load(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestServerEngineUnreachable(t *testing.T) {
	e := NewServerEngine("http://127.0.0.1:1", "", time.Second, 100*time.Millisecond)
	dir := newModelDir(t, 8)
	h, err := e.Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer h.Close()
	_, err = h.Generate(context.Background(), Request{Prompt: "hi"})
	if err == nil || !IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
