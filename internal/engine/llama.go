//go:build llama

package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaEngine runs models in-process through go-llama.cpp.
type llamaEngine struct {
	ctxSize     int
	threads     int
	activeBytes atomic.Uint64
}

// NewLlamaEngine constructs the in-process cgo engine.
func NewLlamaEngine(ctxSize, threads int) Engine {
	if ctxSize <= 0 {
		ctxSize = 4096
	}
	if threads <= 0 {
		threads = 4
	}
	return &llamaEngine{ctxSize: ctxSize, threads: threads}
}

func (e *llamaEngine) ActiveMemory() uint64 {
	return e.activeBytes.Load()
}

func (e *llamaEngine) Load(ctx context.Context, dir string) (Handle, error) {
	path, size, err := weightsPath(dir)
	if err != nil {
		return nil, err
	}
	m, err := llama.New(path, llama.SetContext(e.ctxSize))
	if err != nil {
		return nil, err
	}
	e.activeBytes.Add(uint64(size))
	return &llamaHandle{engine: e, model: m, size: uint64(size)}, nil
}

// weightsPath locates the weights file inside a model directory: a .gguf if
// one exists, otherwise the safetensors archive.
func weightsPath(dir string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}
	var fallback string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if strings.HasSuffix(name, ".gguf") {
			p := filepath.Join(dir, e.Name())
			info, err := e.Info()
			if err != nil {
				return "", 0, err
			}
			return p, info.Size(), nil
		}
		if strings.HasSuffix(name, ".safetensors") {
			fallback = filepath.Join(dir, e.Name())
		}
	}
	if fallback == "" {
		return "", 0, errors.New("no weights file in " + dir)
	}
	info, err := os.Stat(fallback)
	if err != nil {
		return "", 0, err
	}
	return fallback, info.Size(), nil
}

// llamaHandle owns a loaded model.
type llamaHandle struct {
	engine *llamaEngine
	model  *llama.LLama
	size   uint64
}

func (h *llamaHandle) Generate(ctx context.Context, req Request) (string, error) {
	if h.model == nil {
		return "", errors.New("llama model not initialized")
	}
	// Respect cancellation by stopping token emission.
	h.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	opts := []llama.PredictOption{
		llama.SetThreads(h.engine.threads),
		llama.SetTemperature(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llama.SetTokens(req.MaxTokens))
	}
	text, err := h.model.Predict(flattenPrompt(req), opts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

// flattenPrompt renders system prompt + history + user prompt into a single
// chat-style transcript for runtimes without a native message API.
func flattenPrompt(req Request) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString("### System:\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}
	for _, t := range req.History {
		switch t.Role {
		case "assistant":
			b.WriteString("### Assistant:\n")
		default:
			b.WriteString("### User:\n")
		}
		b.WriteString(t.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("### User:\n")
	b.WriteString(req.Prompt)
	b.WriteString("\n\n### Assistant:\n")
	return b.String()
}

func (h *llamaHandle) Close() error {
	if h.model != nil {
		h.model.Free()
		h.model = nil
		for {
			cur := h.engine.activeBytes.Load()
			next := uint64(0)
			if cur > h.size {
				next = cur - h.size
			}
			if h.engine.activeBytes.CompareAndSwap(cur, next) {
				break
			}
		}
	}
	return nil
}
