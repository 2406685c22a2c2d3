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

const photosFixtureJSON = `{
  "records": [
    {"recordName": "photo-1", "fields": {
      "filenameEnc": {"value": "IMG_0001.HEIC"}, "resOriginalRes": {"value": 204800}}},
    {"recordName": "photo-2", "fields": {
      "filenameEnc": {"value": ""}, "resOriginalRes": {"value": 1024}}},
    {"recordName": "photo-3", "fields": {
      "filenameEnc": {"value": "IMG_0003.JPG"}, "resOriginalRes": {"value": 512000}}}
  ]
}`

func TestListPhotos_SkipsRecordsWithoutFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(photosFixtureJSON))
	}))
	defer srv.Close()

	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)
	s.http.sleepFunc = noopSleep
	s.http.inner = &http.Client{Transport: redirectTransport{target: srv.URL}}

	album := Album{Name: "Trip", Kind: AlbumPersonal}

	photos, err := s.ListPhotos(context.Background(), album)
	require.NoError(t, err)
	require.Len(t, photos, 2)

	assert.Equal(t, "IMG_0001.HEIC", photos[0].Filename)
	assert.Equal(t, int64(204800), photos[0].SizeBytes)
	assert.Equal(t, "Trip", photos[0].AlbumName)
	assert.Equal(t, AlbumPersonal, photos[0].Kind)
	assert.Equal(t, "IMG_0003.JPG", photos[1].Filename)
}

func TestListPhotos_NonOKStatusIsServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)
	s.http.sleepFunc = noopSleep
	s.http.inner = &http.Client{Transport: redirectTransport{target: srv.URL}}

	_, err := s.ListPhotos(context.Background(), Album{Name: "Trip"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}
