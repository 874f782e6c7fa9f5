package registry

// notDownloadedError signals a catalog id that was never acquired.
type notDownloadedError struct{ id string }

func (e notDownloadedError) Error() string { return "model not downloaded: " + e.id }

// ErrNotDownloaded constructs a notDownloadedError.
func ErrNotDownloaded(id string) error { return notDownloadedError{id: id} }

// IsNotDownloaded reports whether err indicates an unacquired catalog id.
func IsNotDownloaded(err error) bool {
	_, ok := err.(notDownloadedError)
	return ok
}

// notFoundError signals a path reference with nothing behind it.
type notFoundError struct{ path string }

func (e notFoundError) Error() string { return "model not found: " + e.path }

// ErrNotFound constructs a notFoundError.
func ErrNotFound(path string) error { return notFoundError{path: path} }

// IsNotFound reports whether err indicates a missing model path.
func IsNotFound(err error) bool {
	_, ok := err.(notFoundError)
	return ok
}

// loadFailedError wraps an engine materialization failure.
type loadFailedError struct{ cause error }

func (e loadFailedError) Error() string { return "model load failed: " + e.cause.Error() }

func (e loadFailedError) Unwrap() error { return e.cause }

// ErrLoadFailed constructs a loadFailedError.
func ErrLoadFailed(cause error) error { return loadFailedError{cause: cause} }

// IsLoadFailed reports whether err indicates a failed materialization.
func IsLoadFailed(err error) bool {
	_, ok := err.(loadFailedError)
	return ok
}
