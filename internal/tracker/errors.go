package tracker

import "errors"

// Sentinel errors for the taxonomy spec.md §7 describes for Component A.
// Use errors.Is to classify.
var (
	// ErrUnavailable means the store could not be opened and a fresh store
	// could not be created either (disk full, permissions). Fatal.
	ErrUnavailable = errors.New("tracker: unavailable")

	// ErrWriteFailed means a write could not be committed. Callers must
	// surface this, never swallow it.
	ErrWriteFailed = errors.New("tracker: write failed")
)
