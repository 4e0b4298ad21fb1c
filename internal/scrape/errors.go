package scrape

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups for absent labels, products, or jobs. It is
// returned to the caller, never retried.
var ErrNotFound = errors.New("not found")

// FetchError wraps a failed content retrieval. Fetch failures are retryable.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError wraps a failed extraction. Retryable; repeated occurrences
// usually indicate layout drift at the source.
type ExtractionError struct {
	SourceKey string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.SourceKey, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ParseError marks a malformed per-item value (typically a price string).
// Non-fatal: the item is skipped and the error reported alongside the run.
type ParseError struct {
	Field string
	Raw   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse field %q: malformed value %q", e.Field, e.Raw)
}

// Retryable reports whether an execution failure should drive job
// retry/backoff. Only fetch and extraction failures qualify.
func Retryable(err error) bool {
	var fe *FetchError
	var ee *ExtractionError
	return errors.As(err, &fe) || errors.As(err, &ee)
}
