// Package icloud implements Component E (CloudSession): the capability
// surface spec.md §4.E prescribes, without prescribing a wire protocol.
//
// Grounded on internal/graph/client.go (retry/backoff HTTP client,
// sentinel-error classification) for transport idiom, and on rclone's
// iCloud Photos backend (backend/iclouddrive/icloudphotos.go, retrieved
// under other_examples/) for the concrete cookie/trust-token/2FA-flag
// shape of the Apple-side protocol.
package icloud

import "errors"

// Sentinel errors for the taxonomy spec.md §4.E and §7 describe. Use
// errors.Is to classify.
var (
	ErrTwoFactorRequired      = errors.New("icloud: two-factor authentication required")
	ErrInvalidCredentials     = errors.New("icloud: invalid credentials")
	ErrServiceUnavailable     = errors.New("icloud: service unavailable")
	ErrRateLimited            = errors.New("icloud: rate limited")
	ErrCodeInvalid            = errors.New("icloud: two-factor code invalid")
	ErrNotFound               = errors.New("icloud: remote object not found")
	ErrTruncated              = errors.New("icloud: download truncated")
	ErrConfiguredAlbumMissing = errors.New("icloud: configured album not found")
)
