package paging

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration indicates a batch size outside the adapter's
	// declared bounds, or bounds that cannot be satisfied at all.
	ErrInvalidConfiguration = errors.New("invalid paging configuration")

	// ErrConcurrentFetch indicates a second fetch was issued on an engine
	// while another one was still in flight.
	ErrConcurrentFetch = errors.New("concurrent fetch on a single traversal")

	// ErrCancelled marks a fetch abandoned because its context ended. It is an
	// outcome, not a failure: engine state is unchanged and nothing is retried.
	ErrCancelled = errors.New("fetch cancelled")

	// ErrPageOverflow indicates an adapter returned more items than requested.
	ErrPageOverflow = errors.New("adapter returned more items than requested")
)

// AdapterError wraps a failure reported by a source adapter.
type AdapterError struct {
	Source string // engine name
	Op     string // start, more, whoami
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Reason returns the platform's error text unchanged, for display to users.
func (e *AdapterError) Reason() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// IsCancelled reports whether err is a cancellation outcome.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// cancelled builds the cancellation outcome for a context error.
func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// isContextError reports whether err came from the context ending.
func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
