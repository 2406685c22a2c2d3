package syncengine

import "errors"

// Sentinel errors for the cycle-abort taxonomy spec.md §7 assigns to
// SyncEngine. Use errors.Is to classify; authentication and album-listing
// errors returned by collaborators are wrapped with these so a caller
// (Scheduler, main's exit-code dispatch) can classify without importing
// every collaborator package. Tracker errors keep the tracker package's
// own sentinels.
var (
	// ErrAuthentication wraps any non-OK CloudSession.Authenticate outcome
	// other than two_factor_required succeeding, per spec.md §4.G step 3.
	ErrAuthentication = errors.New("syncengine: authentication failed")

	// ErrTwoFactorIncomplete specifically marks a cycle abort whose
	// proximate cause is an incomplete 2FA exchange — Scheduler applies
	// exponential back-off only for this cause, per spec.md §4.H.
	ErrTwoFactorIncomplete = errors.New("syncengine: two-factor authentication not completed")

	// ErrAlbumListFailed wraps a failure enumerating albums.
	ErrAlbumListFailed = errors.New("syncengine: listing albums failed")
)
