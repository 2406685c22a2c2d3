package icloud

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const albumsFixtureJSON = `{
  "records": [
    {"recordName": "zebra-id", "fields": {
      "albumNameEnc": {"value": "Zebra"}, "isShared": {"value": 0}, "itemCount": {"value": 3}}},
    {"recordName": "apple-id", "fields": {
      "albumNameEnc": {"value": "Apple"}, "isShared": {"value": 1}, "itemCount": {"value": 1}}},
    {"recordName": "mango-id", "fields": {
      "albumNameEnc": {"value": "Mango"}, "isShared": {"value": 0}, "itemCount": {"value": 2}}}
  ]
}`

func TestListAlbums_OrdersPersonalBeforeSharedThenByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(albumsFixtureJSON))
	}))
	defer srv.Close()

	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)
	s.http.sleepFunc = noopSleep
	s.http.inner = &http.Client{Transport: redirectTransport{target: srv.URL}}

	albums, err := s.ListAlbums(context.Background())
	require.NoError(t, err)
	require.Len(t, albums, 3)

	assert.Equal(t, "Mango", albums[0].Name)
	assert.Equal(t, AlbumPersonal, albums[0].Kind)
	assert.Equal(t, "Zebra", albums[1].Name)
	assert.Equal(t, "Apple", albums[2].Name)
	assert.Equal(t, AlbumShared, albums[2].Kind)
	assert.Equal(t, 1, albums[2].ItemCount)
}

func TestListAlbums_NonOKStatusIsServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)
	s.http.sleepFunc = noopSleep
	s.http.inner = &http.Client{Transport: redirectTransport{target: srv.URL}}

	_, err := s.ListAlbums(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestListAlbums_FallsBackToRecordNameWhenAlbumNameEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"records":[{"recordName":"unnamed-id","fields":{}}]}`))
	}))
	defer srv.Close()

	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)
	s.http.sleepFunc = noopSleep
	s.http.inner = &http.Client{Transport: redirectTransport{target: srv.URL}}

	albums, err := s.ListAlbums(context.Background())
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, "unnamed-id", albums[0].Name)
}
