//go:build !llama

package engine

import "context"

// This file provides a no-CGO stub for the in-process llama engine. It is
// compiled when the 'llama' build tag is NOT set, keeping default builds and
// CI CGO-free. The real engine lives in llama.go (tagged 'llama').

// llamaBuilt indicates this binary was compiled without real llama support.
var llamaBuilt = false

type llamaEngine struct{}

// NewLlamaEngine returns a stub that satisfies Engine but refuses to
// materialize models without the 'llama' build tag. This avoids any mocked
// behavior in production binaries built without CGO support.
func NewLlamaEngine(ctxSize, threads int) Engine {
	return &llamaEngine{}
}

func (e *llamaEngine) ActiveMemory() uint64 { return 0 }

func (e *llamaEngine) Load(ctx context.Context, dir string) (Handle, error) {
	return nil, ErrUnavailable("llama support not built (missing 'llama' build tag)")
}
