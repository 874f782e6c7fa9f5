package hub

// downloadFailedError names the offending file and the transport or
// filesystem reason an acquisition aborted.
type downloadFailedError struct {
	file   string
	reason string
}

func (e downloadFailedError) Error() string {
	return "download failed: " + e.file + ": " + e.reason
}

// File returns the file that failed.
func (e downloadFailedError) File() string { return e.file }

// ErrDownloadFailed constructs a downloadFailedError.
func ErrDownloadFailed(file, reason string) error {
	return downloadFailedError{file: file, reason: reason}
}

// IsDownloadFailed reports whether err indicates a failed artifact fetch.
func IsDownloadFailed(err error) bool {
	_, ok := err.(downloadFailedError)
	return ok
}
