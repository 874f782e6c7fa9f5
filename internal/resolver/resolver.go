package resolver

import (
	"strings"

	"llmd/internal/common/fsutil"
)

// Kind discriminates the two forms a model reference can take.
type Kind int

const (
	// KindLocalPath means the reference points at an existing directory or
	// file on disk.
	KindLocalPath Kind = iota
	// KindCatalogID means the reference names a model on the remote hub
	// (namespace/name form).
	KindCatalogID
)

// Reference is the classified form of a raw model reference string.
type Reference struct {
	Kind Kind
	// Path is set for KindLocalPath (tilde-expanded).
	Path string
	// ID is set for KindCatalogID.
	ID string
}

// Classify decides whether ref is a local path or a remote catalog id.
// Only filesystem existence checks are performed; never any network I/O.
// A reference that exists on disk (after tilde expansion) wins over the
// catalog interpretation.
func Classify(ref string) (Reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Reference{}, invalidPathError{path: ref}
	}
	expanded, err := fsutil.ExpandHome(ref)
	if err != nil {
		return Reference{}, invalidPathError{path: ref}
	}
	if fsutil.PathExists(expanded) {
		return Reference{Kind: KindLocalPath, Path: expanded}, nil
	}
	// Paths that look like filesystem references but do not exist are not
	// valid catalog ids either.
	if strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "~") {
		return Reference{}, invalidPathError{path: ref}
	}
	return Reference{Kind: KindCatalogID, ID: ref}, nil
}

// invalidPathError signals a reference that is neither an existing path nor
// a plausible catalog id.
type invalidPathError struct{ path string }

func (e invalidPathError) Error() string { return "invalid model path: " + e.path }

// ErrInvalidPath constructs an invalidPathError.
func ErrInvalidPath(path string) error { return invalidPathError{path: path} }

// IsInvalidPath reports whether err indicates an unusable model reference.
func IsInvalidPath(err error) bool {
	_, ok := err.(invalidPathError)
	return ok
}
