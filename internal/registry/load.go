package registry

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"llmd/internal/common/fsutil"
	"llmd/internal/engine"
	"llmd/internal/hub"
	"llmd/internal/resolver"
	"llmd/pkg/types"
)

// resolved pairs a registry key with the directory it denotes.
type resolved struct {
	// key identifies the resident handle: the catalog id, or the expanded
	// local path for path references.
	key string
	// id is empty for local path references.
	id  string
	dir string
}

// resolve classifies ref and verifies presence on disk. It does not touch
// the handle map.
func (r *Registry) resolve(ref string) (resolved, error) {
	c, err := resolver.Classify(ref)
	if err != nil {
		return resolved{}, err
	}
	if c.Kind == resolver.KindLocalPath {
		if !fsutil.PathExists(c.Path) {
			return resolved{}, notFoundError{path: c.Path}
		}
		return resolved{key: c.Path, dir: c.Path}, nil
	}
	if !r.IsAvailable(c.ID) {
		return resolved{}, notDownloadedError{id: c.ID}
	}
	return resolved{key: c.ID, id: c.ID, dir: r.ModelDirectory(c.ID)}, nil
}

// Load returns the resident handle for ref, materializing it first if
// needed. Admission runs before materialization, and concurrent calls for
// the same key collapse into one materialization while calls for different
// keys proceed independently.
func (r *Registry) Load(ctx context.Context, ref string) (engine.Handle, error) {
	res, err := r.resolve(ref)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if h, ok := r.handles[res.key]; ok {
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()

	v, err, _ := r.flight.Do(res.key, func() (interface{}, error) {
		// A racing call may have finished while we queued.
		r.mu.Lock()
		if h, ok := r.handles[res.key]; ok {
			r.mu.Unlock()
			return h, nil
		}
		r.mu.Unlock()

		size, err := fsutil.DirSize(res.dir)
		if err != nil {
			return nil, notFoundError{path: res.dir}
		}
		if err := r.admission.AdmitLoad(uint64(size)); err != nil {
			return nil, err
		}

		start := time.Now()
		h, err := r.engine.Load(ctx, res.dir)
		if err != nil {
			if engine.IsUnavailable(err) {
				return nil, err
			}
			return nil, loadFailedError{cause: err}
		}
		r.log.Info().Str("model", res.key).Dur("dur", time.Since(start)).Msg("model materialized")

		r.mu.Lock()
		r.handles[res.key] = h
		r.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(engine.Handle), nil
}

// Unload removes the handle for ref from the registry and closes it. It
// never errors, even when no handle is resident.
func (r *Registry) Unload(ref string) {
	key := ref
	if res, err := r.resolve(ref); err == nil {
		key = res.key
	}
	r.mu.Lock()
	h := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()
	if h != nil {
		_ = h.Close()
		r.log.Info().Str("model", key).Msg("model unloaded")
	}
}

// UnloadAll closes and removes every resident handle.
func (r *Registry) UnloadAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]engine.Handle)
	r.mu.Unlock()
	for key, h := range handles {
		_ = h.Close()
		r.log.Info().Str("model", key).Msg("model unloaded")
	}
}

// Delete unloads the model and removes its directory recursively. It is
// idempotent when the directory is already absent.
func (r *Registry) Delete(id string) error {
	r.Unload(id)
	dir := r.ModelDirectory(id)
	if err := os.RemoveAll(dir); err != nil {
		return notFoundError{path: dir}
	}
	r.log.Info().Str("model", id).Str("dir", dir).Msg("model deleted")
	return nil
}

// ModelInfo returns the record for ref: recursive directory size plus the
// directory timestamp.
func (r *Registry) ModelInfo(ref string) (types.ModelRecord, error) {
	res, err := r.resolve(ref)
	if err != nil {
		return types.ModelRecord{}, err
	}
	size, err := fsutil.DirSize(res.dir)
	if err != nil {
		return types.ModelRecord{}, notFoundError{path: res.dir}
	}
	info, err := os.Stat(res.dir)
	if err != nil {
		return types.ModelRecord{}, notFoundError{path: res.dir}
	}
	id := res.id
	if id == "" {
		id = res.dir
	}
	return types.ModelRecord{
		ID:         id,
		Path:       res.dir,
		SizeBytes:  size,
		AcquiredAt: info.ModTime(),
	}, nil
}

// ListAvailable enumerates immediate subdirectories of the models root and
// returns a record for each one containing the marker file. A missing root
// yields an empty list, not an error. Order follows directory enumeration
// order.
func (r *Registry) ListAvailable() ([]types.ModelRecord, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []types.ModelRecord
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(r.root, e.Name())
		if !fsutil.PathExists(filepath.Join(dir, hub.MarkerFile)) {
			continue
		}
		size, err := fsutil.DirSize(dir)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		records = append(records, types.ModelRecord{
			ID:         idFromDirName(e.Name()),
			Path:       dir,
			SizeBytes:  size,
			AcquiredAt: info.ModTime(),
		})
	}
	return records, nil
}
