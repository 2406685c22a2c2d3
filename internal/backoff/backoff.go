// Package backoff implements the Scheduler's persisted 2FA back-off
// counter, per spec.md §4.H: exponential back-off (base 8 min, doubling
// per consecutive 2FA failure, capped at 2 days) surviving process
// restarts via a JSON file in the OS temp directory.
//
// Grounded on the teacher's root-level pidfile.go flock-guarded-file
// idiom, substituting a JSON payload (failure count, last-updated
// timestamp) for a bare PID.
package backoff

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// BaseInterval is the back-off starting point after the first
	// consecutive 2FA failure, per spec.md §4.H.
	BaseInterval = 8 * time.Minute

	// MaxInterval is the back-off ceiling spec.md §4.H and §8's boundary
	// behavior both name explicitly ("after 20 consecutive 2FA failures,
	// the wait is exactly 2 days, not more").
	MaxInterval = 48 * time.Hour
)

const stateFilePerm = 0o644

// State is the on-disk back-off counter payload.
type State struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Interval returns the wait to apply for the current failure count:
// zero failures means the base sync_interval applies (back-off does not
// apply at all), and each additional failure doubles the previous
// back-off starting from BaseInterval, capped at MaxInterval.
func (s State) Interval() time.Duration {
	if s.ConsecutiveFailures <= 0 {
		return 0
	}

	d := BaseInterval
	for i := 1; i < s.ConsecutiveFailures; i++ {
		d *= 2
		if d >= MaxInterval {
			return MaxInterval
		}
	}

	return d
}

// Load reads the persisted back-off state from path. A missing file is
// not an error — it means no failures have been recorded yet (zero
// value).
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return State{}, nil
	}

	if err != nil {
		return State{}, fmt.Errorf("backoff: reading state file: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		// A corrupt back-off file is not fatal to the engine — it only
		// governs inter-cycle sleep timing, not correctness — so this
		// resets to "no failures" rather than aborting the cycle.
		return State{}, nil
	}

	return s, nil
}

// Save persists state atomically (write-to-temp-then-rename, flock-guarded
// against a concurrent writer), mirroring the teacher's pidfile idiom.
func Save(path string, s State) error {
	s.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("backoff: encoding state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("backoff: creating state directory: %w", err)
	}

	lockPath := path + ".lock"

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, stateFilePerm)
	if err != nil {
		return fmt.Errorf("backoff: opening lock file: %w", err)
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("backoff: locking state file: %w", err)
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN) //nolint:errcheck

	tmp, err := os.CreateTemp(dir, ".backoff-*.tmp")
	if err != nil {
		return fmt.Errorf("backoff: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath) //nolint:errcheck

		return fmt.Errorf("backoff: writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("backoff: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("backoff: installing state file: %w", err)
	}

	return nil
}

// RecordFailure increments the consecutive-failure counter and persists
// the result, returning the new state.
func RecordFailure(path string) (State, error) {
	s, err := Load(path)
	if err != nil {
		return State{}, err
	}

	s.ConsecutiveFailures++

	if err := Save(path, s); err != nil {
		return State{}, err
	}

	return s, nil
}

// Reset clears the consecutive-failure counter, per spec.md §4.H's "on any
// successful authentication, reset to base interval."
func Reset(path string) error {
	return Save(path, State{})
}
