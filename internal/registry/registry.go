// Package registry tracks which models are available on disk and which are
// resident in memory. It owns every loaded handle: at most one per model,
// with concurrent loads for the same model collapsing into a single
// materialization.
package registry

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"llmd/internal/common/fsutil"
	"llmd/internal/engine"
	"llmd/internal/hub"
	"llmd/internal/memory"
)

// Registry is the loaded-model registry. Construct one per process and pass
// it explicitly to call sites.
type Registry struct {
	root      string
	hub       *hub.Client
	engine    engine.Engine
	admission *memory.Controller
	log       zerolog.Logger

	// mu guards only the handle map. Filesystem probes stay lock-free, and
	// materialization runs outside the lock through flight.
	mu      sync.Mutex
	handles map[string]engine.Handle
	flight  singleflight.Group
}

// New constructs a Registry rooted at the given models directory.
func New(root string, hubClient *hub.Client, eng engine.Engine, admission *memory.Controller, log zerolog.Logger) *Registry {
	return &Registry{
		root:      root,
		hub:       hubClient,
		engine:    eng,
		admission: admission,
		log:       log,
		handles:   make(map[string]engine.Handle),
	}
}

// Root returns the models root directory.
func (r *Registry) Root() string { return r.root }

// ModelDirectory maps a catalog id to its on-disk directory by replacing
// every path-separator character with an underscore. The mapping is inverted
// by idFromDirName, so ids must not otherwise contain underscores if
// round-tripping is required.
func (r *Registry) ModelDirectory(id string) string {
	return filepath.Join(r.root, dirNameForID(id))
}

func dirNameForID(id string) string {
	name := strings.ReplaceAll(id, "/", "_")
	return strings.ReplaceAll(name, "\\", "_")
}

func idFromDirName(name string) string {
	return strings.ReplaceAll(name, "_", "/")
}

// IsAvailable reports whether the model's directory contains the marker
// descriptor file. This is the only signal that defines availability.
func (r *Registry) IsAvailable(id string) bool {
	return fsutil.PathExists(filepath.Join(r.ModelDirectory(id), hub.MarkerFile))
}

// EnsureAvailable makes the model present on disk, delegating to the
// acquisition engine. It is a no-op (with a single onProgress(1.0) call)
// when the model is already available and force is false.
func (r *Registry) EnsureAvailable(ctx context.Context, id string, force bool, onProgress hub.ProgressFunc) error {
	dest := r.ModelDirectory(id)
	r.log.Info().Str("model", id).Str("dest", dest).Bool("force", force).Msg("ensure model")
	return r.hub.Acquire(ctx, id, dest, force, onProgress)
}
