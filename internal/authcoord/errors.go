package authcoord

import "errors"

// Sentinel errors for the taxonomy spec.md §7 assigns to AuthCoordinator.
// Use errors.Is to classify.
var (
	// ErrNoPortAvailable means every port in the configured range was
	// already bound by something else.
	ErrNoPortAvailable = errors.New("authcoord: no port available in configured range")

	// ErrTimedOut means the 5-minute (default) deadline elapsed with no
	// terminal success.
	ErrTimedOut = errors.New("authcoord: timed out waiting for code")

	// ErrCancelled means the caller's context was cancelled externally.
	ErrCancelled = errors.New("authcoord: cancelled")

	// ErrRateLimited is returned by a RequestFunc when the upstream
	// service declines a resend due to rate limiting.
	ErrRateLimited = errors.New("authcoord: rate limited")

	// ErrServiceUnavailable is returned by RequestFunc/SubmitFunc on
	// upstream outages.
	ErrServiceUnavailable = errors.New("authcoord: service unavailable")

	// ErrCodeInvalid is returned by a SubmitFunc when the upstream
	// service rejects the submitted code.
	ErrCodeInvalid = errors.New("authcoord: code invalid")
)
