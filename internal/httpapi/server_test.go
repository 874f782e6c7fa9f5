package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"llmd/internal/engine"
	"llmd/internal/hub"
	"llmd/internal/memory"
	"llmd/internal/orchestrator"
	"llmd/internal/registry"
	"llmd/pkg/types"
)

const gb = uint64(1) << 30

// stubEngine returns a canned reply and records the last request it saw.
type stubEngine struct {
	mu      sync.Mutex
	reply   string
	lastReq engine.Request
}

func (e *stubEngine) ActiveMemory() uint64 { return 0 }

func (e *stubEngine) Load(ctx context.Context, dir string) (engine.Handle, error) {
	return &stubHandle{eng: e}, nil
}

func (e *stubEngine) last() engine.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReq
}

type stubHandle struct{ eng *stubEngine }

func (h *stubHandle) Generate(ctx context.Context, req engine.Request) (string, error) {
	h.eng.mu.Lock()
	h.eng.lastReq = req
	h.eng.mu.Unlock()
	return h.eng.reply, nil
}

func (h *stubHandle) Close() error { return nil }

type testServer struct {
	handler http.Handler
	reg     *registry.Registry
}

func newTestServer(t *testing.T, eng engine.Engine, totalMem uint64, hubClient *hub.Client, defaultModel string) *testServer {
	t.Helper()
	if hubClient == nil {
		hubClient = hub.NewClient()
	}
	adm := memory.NewControllerWithTotal(totalMem, eng.ActiveMemory)
	reg := registry.New(t.TempDir(), hubClient, eng, adm, zerolog.Nop())
	orch := orchestrator.New(reg, adm, 0, zerolog.Nop())
	srv := NewServer(reg, orch, defaultModel, zerolog.Nop())
	return &testServer{handler: srv.Router(), reg: reg}
}

func installModel(t *testing.T, reg *registry.Registry, id string, weightBytes int) {
	t.Helper()
	dir := reg.ModelDirectory(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, hub.MarkerFile), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model.safetensors"), make([]byte, weightBytes), 0o644); err != nil {
		t.Fatalf("write weights: %v", err)
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func TestListModelsEmpty(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, 64*gb, nil, "")
	w := ts.do(t, http.MethodGet, "/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	resp := decodeBody[types.ModelsResponse](t, w)
	if len(resp.Models) != 0 {
		t.Fatalf("expected empty list, got %d entries", len(resp.Models))
	}
}

func TestListModelsReturnsInstalled(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, 64*gb, nil, "")
	installModel(t, ts.reg, "org/model-a", 128)
	installModel(t, ts.reg, "org/model-b", 128)

	w := ts.do(t, http.MethodGet, "/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	resp := decodeBody[types.ModelsResponse](t, w)
	if len(resp.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(resp.Models))
	}
	ids := map[string]bool{}
	for _, m := range resp.Models {
		ids[m.ID] = true
		if m.SizeBytes <= 0 {
			t.Fatalf("expected positive size for %s", m.ID)
		}
	}
	if !ids["org/model-a"] || !ids["org/model-b"] {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestRespond(t *testing.T) {
	eng := &stubEngine{reply: "hello from the model"}
	ts := newTestServer(t, eng, 64*gb, nil, "")
	installModel(t, ts.reg, "org/model", 128)

	w := ts.do(t, http.MethodPost, "/respond", types.QueryRequest{
		Model:  "org/model",
		Prompt: "say hello",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	res := decodeBody[types.QueryResult](t, w)
	if res.Response != eng.reply {
		t.Fatalf("expected reply %q got %q", eng.reply, res.Response)
	}
	if res.ModelID != "org/model" {
		t.Fatalf("expected model id org/model got %q", res.ModelID)
	}
	if res.ApproxTokens != len(eng.reply)/4 {
		t.Fatalf("expected approx tokens %d got %d", len(eng.reply)/4, res.ApproxTokens)
	}
	// Zero max_tokens derives from headroom: 64 GB total is the top tier.
	if got := eng.last().MaxTokens; got != 8192 {
		t.Fatalf("expected derived budget 8192 got %d", got)
	}
}

func TestRespondUsesDefaultModel(t *testing.T) {
	eng := &stubEngine{reply: "ok"}
	ts := newTestServer(t, eng, 64*gb, nil, "org/default")
	installModel(t, ts.reg, "org/default", 128)

	w := ts.do(t, http.MethodPost, "/respond", types.QueryRequest{Prompt: "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	res := decodeBody[types.QueryResult](t, w)
	if res.ModelID != "org/default" {
		t.Fatalf("expected default model, got %q", res.ModelID)
	}
}

func TestRespondMissingPrompt(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, 64*gb, nil, "")
	w := ts.do(t, http.MethodPost, "/respond", types.QueryRequest{Model: "org/model"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", w.Code)
	}
}

func TestRespondInvalidPathMapsTo400(t *testing.T) {
	ts := newTestServer(t, &stubEngine{reply: "x"}, 64*gb, nil, "")
	w := ts.do(t, http.MethodPost, "/respond", types.QueryRequest{
		Model:  "/no/such/dir",
		Prompt: "hi",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[types.ErrorResponse](t, w)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected code field 400 got %d", resp.Code)
	}
}

func TestModelInfoNotDownloadedMapsTo404(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, 64*gb, nil, "")
	w := ts.do(t, http.MethodGet, "/models/info?model=org/absent", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", w.Code, w.Body.String())
	}
}

func TestInsufficientMemoryMapsTo507(t *testing.T) {
	// 1000 bytes available, 4096-byte weights: rejected before load.
	ts := newTestServer(t, &stubEngine{reply: "x"}, 1000, nil, "")
	installModel(t, ts.reg, "org/model", 4096)

	w := ts.do(t, http.MethodPost, "/respond", types.QueryRequest{
		Model:  "org/model",
		Prompt: "hi",
	})
	if w.Code != http.StatusInsufficientStorage {
		t.Fatalf("expected 507 got %d: %s", w.Code, w.Body.String())
	}
}

func TestQueryStructured(t *testing.T) {
	eng := &stubEngine{reply: "```json\n{\"answer\": 42}\n```"}
	ts := newTestServer(t, eng, 64*gb, nil, "")
	installModel(t, ts.reg, "org/model", 128)

	w := ts.do(t, http.MethodPost, "/query", types.QueryRequest{
		Model:  "org/model",
		Prompt: "the answer",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	res := decodeBody[structuredResponse](t, w)
	var payload struct {
		Answer int `json:"answer"`
	}
	if err := json.Unmarshal(res.Result, &payload); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if payload.Answer != 42 {
		t.Fatalf("expected answer 42 got %d", payload.Answer)
	}
	// The structured path appends the JSON-only instruction to the system
	// prompt and lowers the temperature.
	if !strings.Contains(eng.last().System, "valid JSON only") {
		t.Fatalf("expected JSON instruction in system prompt: %q", eng.last().System)
	}
}

func TestQueryNoJSONMapsTo422(t *testing.T) {
	eng := &stubEngine{reply: "I am sorry, I cannot help with that."}
	ts := newTestServer(t, eng, 64*gb, nil, "")
	installModel(t, ts.reg, "org/model", 128)

	w := ts.do(t, http.MethodPost, "/query", types.QueryRequest{
		Model:  "org/model",
		Prompt: "give me json",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d: %s", w.Code, w.Body.String())
	}
}

func TestQueryMalformedJSONMapsTo422(t *testing.T) {
	eng := &stubEngine{reply: `{"answer": nope}`}
	ts := newTestServer(t, eng, 64*gb, nil, "")
	installModel(t, ts.reg, "org/model", 128)

	w := ts.do(t, http.MethodPost, "/query", types.QueryRequest{
		Model:  "org/model",
		Prompt: "give me json",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d: %s", w.Code, w.Body.String())
	}
}

func TestPullFetchesFromHub(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		w.Write([]byte("content for " + r.URL.Path))
	}))
	defer fake.Close()

	hc := hub.NewClient(hub.WithBaseURL(fake.URL))
	ts := newTestServer(t, &stubEngine{}, 64*gb, hc, "")

	w := ts.do(t, http.MethodPost, "/models/pull", types.PullRequest{Model: "org/model"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	rec := decodeBody[types.ModelRecord](t, w)
	if rec.ID != "org/model" {
		t.Fatalf("expected id org/model got %q", rec.ID)
	}
	for _, f := range hub.RequiredFiles {
		path := filepath.Join(ts.reg.ModelDirectory("org/model"), f)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s on disk: %v", f, err)
		}
	}
	mu.Lock()
	total := len(hits)
	mu.Unlock()
	if total != len(hub.RequiredFiles) {
		t.Fatalf("expected %d distinct fetches, got %d", len(hub.RequiredFiles), total)
	}
}

func TestPullBadHubMapsTo502(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer fake.Close()

	hc := hub.NewClient(hub.WithBaseURL(fake.URL))
	ts := newTestServer(t, &stubEngine{}, 64*gb, hc, "")

	w := ts.do(t, http.MethodPost, "/models/pull", types.PullRequest{Model: "org/model"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d: %s", w.Code, w.Body.String())
	}
}

func TestDeleteRemovesModel(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, 64*gb, nil, "")
	installModel(t, ts.reg, "org/model", 128)

	w := ts.do(t, http.MethodDelete, "/models?model=org/model", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(ts.reg.ModelDirectory("org/model")); !os.IsNotExist(err) {
		t.Fatalf("expected model directory removed, stat err=%v", err)
	}
	// Deleting again is a no-op.
	w = ts.do(t, http.MethodDelete, "/models?model=org/model", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected idempotent 204 got %d", w.Code)
	}
}

func TestLoadAndUnload(t *testing.T) {
	ts := newTestServer(t, &stubEngine{reply: "x"}, 64*gb, nil, "")
	installModel(t, ts.reg, "org/model", 128)

	w := ts.do(t, http.MethodPost, "/models/load", types.LoadRequest{Model: "org/model"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodPost, "/models/unload", types.LoadRequest{Model: "org/model"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", w.Code)
	}
	// Empty model unloads everything.
	w = ts.do(t, http.MethodPost, "/models/unload", types.LoadRequest{})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", w.Code)
	}
}

func TestContentTypeEnforced(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, 64*gb, nil, "")
	req := httptest.NewRequest(http.MethodPost, "/respond", strings.NewReader(`{"prompt":"hi"}`))
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 got %d", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, 64*gb, nil, "")
	for _, path := range []string{"/healthz", "/readyz"} {
		w := ts.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, w.Code)
		}
	}
}
