package orchestrator

// queryFailedError wraps a generation failure from the engine.
type queryFailedError struct{ cause error }

func (e queryFailedError) Error() string { return "query failed: " + e.cause.Error() }

func (e queryFailedError) Unwrap() error { return e.cause }

// ErrQueryFailed constructs a queryFailedError.
func ErrQueryFailed(cause error) error { return queryFailedError{cause: cause} }

// IsQueryFailed reports whether err indicates a failed generation.
func IsQueryFailed(err error) bool {
	_, ok := err.(queryFailedError)
	return ok
}

// invalidResponseError signals a response with no usable content (e.g. no
// JSON span for a structured query).
type invalidResponseError struct{ reason string }

func (e invalidResponseError) Error() string { return "invalid response: " + e.reason }

// ErrInvalidResponse constructs an invalidResponseError.
func ErrInvalidResponse(reason string) error { return invalidResponseError{reason: reason} }

// IsInvalidResponse reports whether err indicates an unusable response.
func IsInvalidResponse(err error) bool {
	_, ok := err.(invalidResponseError)
	return ok
}

// parsingFailedError reports a structured-decode failure with the decoder's
// reason and a bounded excerpt of the cleaned text.
type parsingFailedError struct {
	reason  string
	excerpt string
}

func (e parsingFailedError) Error() string {
	return "parsing failed: " + e.reason + " (excerpt: " + e.excerpt + ")"
}

// Excerpt returns the bounded cleaned-text excerpt.
func (e parsingFailedError) Excerpt() string { return e.excerpt }

// ErrParsingFailed constructs a parsingFailedError.
func ErrParsingFailed(reason, excerpt string) error {
	return parsingFailedError{reason: reason, excerpt: excerpt}
}

// IsParsingFailed reports whether err indicates a structured-decode failure.
func IsParsingFailed(err error) bool {
	_, ok := err.(parsingFailedError)
	return ok
}
