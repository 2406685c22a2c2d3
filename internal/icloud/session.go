package icloud

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// sessionFilePerms/sessionDirPerms restrict the session blob to
// owner-only access, per spec.md §4.E's "owner-only permissions" and
// grounded on the teacher's internal/tokenfile.go (FilePerms/DirPerms).
const (
	sessionFilePerms = 0o600
	sessionDirPerms  = 0o700
)

// sessionBlob is the on-disk, opaque trusted-session payload. Shaped
// after rclone's iCloud Photos backend (PhotosOptions.Cookies +
// TrustToken), generalized into one JSON document instead of two
// separate config keys.
type sessionBlob struct {
	Cookies    map[string]string `json:"cookies"`
	TrustToken string            `json:"trust_token,omitempty"`
	SCNT       string            `json:"scnt,omitempty"`
	SavedAt    time.Time         `json:"saved_at"`
}

// loadSessionBlob reads a saved session from disk. Returns (nil, nil) if
// the file does not exist — the caller then proceeds through the
// username/password + 2FA flow from scratch.
func loadSessionBlob(path string) (*sessionBlob, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("icloud: reading session file: %w", err)
	}

	var blob sessionBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("icloud: decoding session file: %w", err)
	}

	return &blob, nil
}

// saveSessionBlob writes the session atomically (write-to-temp + rename)
// with 0600 permissions, matching the teacher's tokenfile.Save.
func saveSessionBlob(path string, blob *sessionBlob) error {
	blob.SavedAt = time.Now().UTC()

	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("icloud: encoding session: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, sessionDirPerms); err != nil {
		return fmt.Errorf("icloud: creating session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("icloud: creating temp session file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath) //nolint:errcheck

		return fmt.Errorf("icloud: writing temp session file: %w", err)
	}

	if err := tmp.Chmod(sessionFilePerms); err != nil {
		tmp.Close()
		os.Remove(tmpPath) //nolint:errcheck

		return fmt.Errorf("icloud: setting session file permissions: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath) //nolint:errcheck

		return fmt.Errorf("icloud: syncing temp session file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("icloud: closing temp session file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("icloud: installing session file: %w", err)
	}

	return nil
}

// Session is Component E's concrete CloudSession, encapsulating an
// Apple ID's cookie + trust-token session against iCloud's private web
// API, per DESIGN.md's grounding in rclone's iCloud Photos backend.
type Session struct {
	appleID     string
	password    string
	clientID    string
	sessionPath string

	http   *httpClient
	logger *slog.Logger

	blob       *sessionBlob
	twoFAState *pendingTwoFactor
}

// pendingTwoFactor tracks the in-flight device/trusted-phone verification
// Apple's API issues in response to Authenticate's two_factor_required,
// so Request2FA/Verify2FA can address the right channel.
type pendingTwoFactor struct {
	deviceID string
}

// NewSession constructs a Session. httpClient may be nil (a default,
// 60s-timeout client is used); logger may be nil.
func NewSession(appleID, password, sessionPath string, client *http.Client, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		appleID:     appleID,
		password:    password,
		clientID:    generateClientID(),
		sessionPath: sessionPath,
		http:        newHTTPClient(client, logger),
		logger:      logger,
	}
}

// generateClientID mints a per-device identifier for Apple's
// X-Apple-OAuth-Client-Id-equivalent header, the way rclone's api
// package generates one UUID per configured remote.
func generateClientID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)

	return "auth-" + hex.EncodeToString(buf)
}

// LoadPersistedSession loads a previously trusted session from disk, if
// any, per spec.md §4.E: "a valid trusted session skips the 2FA dance."
func (s *Session) LoadPersistedSession() error {
	blob, err := loadSessionBlob(s.sessionPath)
	if err != nil {
		return err
	}

	s.blob = blob

	return nil
}

// HasPersistedSession reports whether a trusted session was loaded and
// carries a trust token, i.e. authentication can skip straight to the
// cookie-based re-validation instead of username/password + 2FA.
func (s *Session) HasPersistedSession() bool {
	return s.blob != nil && s.blob.TrustToken != ""
}
