// Package engine abstracts the on-device inference runtime. The registry
// materializes handles through an Engine; everything below the Handle
// boundary (tokenization, accelerator execution, sampling) belongs to the
// concrete runtime.
package engine

import "context"

// Turn is one exchange in a multi-turn history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything a runtime needs to generate text.
type Request struct {
	System      string
	History     []Turn
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Engine materializes models and reports its memory pressure.
type Engine interface {
	// ActiveMemory returns the engine's currently active memory in bytes.
	// Used by the admission controller; an engine with no insight returns 0.
	ActiveMemory() uint64
	// Load materializes a model from a directory and returns a handle.
	Load(ctx context.Context, dir string) (Handle, error)
}

// Handle is a resident model ready for inference. Handles are owned by the
// registry; callers never close them directly.
type Handle interface {
	// Generate produces text for the request. Implementations must return
	// when the context is canceled.
	Generate(ctx context.Context, req Request) (string, error)
	// Close releases the resources backing the handle.
	Close() error
}

// unavailableError signals a missing runtime dependency (e.g. a build
// without llama support, or an unreachable engine server) so the HTTP layer
// can return 503 instead of 500.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an unavailableError.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing/failed runtime.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
