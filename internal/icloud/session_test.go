package icloud

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSessionBlob_MissingFileReturnsNil(t *testing.T) {
	blob, err := loadSessionBlob(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestSaveAndLoadSessionBlob_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	original := &sessionBlob{
		Cookies:    map[string]string{"X-APPLE-WEBAUTH-USER": "abc123"},
		TrustToken: "trust-token-value",
		SCNT:       "scnt-value",
	}

	require.NoError(t, saveSessionBlob(path, original))

	loaded, err := loadSessionBlob(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, original.Cookies, loaded.Cookies)
	assert.Equal(t, original.TrustToken, loaded.TrustToken)
	assert.Equal(t, original.SCNT, loaded.SCNT)
	assert.False(t, loaded.SavedAt.IsZero())
}

func TestSaveSessionBlob_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "session.json")

	require.NoError(t, saveSessionBlob(path, &sessionBlob{}))

	_, err := loadSessionBlob(path)
	require.NoError(t, err)
}

func TestNewSession_DefaultsLoggerWhenNil(t *testing.T) {
	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)

	assert.NotNil(t, s.logger)
	assert.NotEmpty(t, s.clientID)
}

func TestHasPersistedSession_FalseUntilLoaded(t *testing.T) {
	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)

	assert.False(t, s.HasPersistedSession())
}

func TestLoadPersistedSession_NoFileLeavesBlobNil(t *testing.T) {
	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)

	require.NoError(t, s.LoadPersistedSession())
	assert.False(t, s.HasPersistedSession())
}

func TestLoadPersistedSession_WithTrustTokenReportsPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, saveSessionBlob(path, &sessionBlob{TrustToken: "tok"}))

	s := NewSession("user@example.com", "hunter2", path, nil, nil)

	require.NoError(t, s.LoadPersistedSession())
	assert.True(t, s.HasPersistedSession())
}
