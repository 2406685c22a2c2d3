package icloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// albumsQueryRequest mirrors the CloudKit-style "records/query" body the
// rclone iCloud Photos backend issues against the photos database to
// enumerate libraries/albums (see PhotosService.GetLibraries/GetAlbums in
// other_examples/..._icloudphotos.go.go).
type albumsQueryRequest struct {
	Query struct {
		RecordType string `json:"recordType"`
	} `json:"query"`
	ZoneID struct {
		ZoneName string `json:"zoneName"`
	} `json:"zoneID"`
}

// albumsQueryResponse is the subset of CloudKit's record-query response
// shape this client cares about: one record per album, each carrying a
// kind flag (own-library vs. shared) and an advisory item count.
type albumsQueryResponse struct {
	Records []struct {
		RecordName string `json:"recordName"`
		Fields     struct {
			AlbumName struct {
				Value string `json:"value"`
			} `json:"albumNameEnc"`
			IsShared struct {
				Value int `json:"value"`
			} `json:"isShared"`
			ItemCount struct {
				Value int `json:"value"`
			} `json:"itemCount"`
		} `json:"fields"`
	} `json:"records"`
}

// ListAlbums returns every album visible to the authenticated account,
// both personal and shared, per spec.md §4.E, sorted by (kind, name)
// ascending.
func (s *Session) ListAlbums(ctx context.Context) ([]Album, error) {
	body, err := json.Marshal(newAlbumsQueryRequest())
	if err != nil {
		return nil, fmt.Errorf("icloud: encoding albums query: %w", err)
	}

	resp, err := s.http.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := newJSONRequest(ctx, http.MethodPost, photosAPIBase+"/records/query", body)
		if err != nil {
			return nil, err
		}

		s.applyAppleHeaders(req)
		s.applyCookies(req)

		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)

	s.captureSessionHeaders(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list_albums HTTP %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var parsed albumsQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding albums response: %v", ErrServiceUnavailable, err)
	}

	albums := make([]Album, 0, len(parsed.Records))

	for _, rec := range parsed.Records {
		name := rec.Fields.AlbumName.Value
		if name == "" {
			name = rec.RecordName
		}

		kind := AlbumPersonal
		if rec.Fields.IsShared.Value != 0 {
			kind = AlbumShared
		}

		albums = append(albums, Album{
			Name:      name,
			Kind:      kind,
			ItemCount: rec.Fields.ItemCount.Value,
		})
	}

	sort.Slice(albums, func(i, j int) bool {
		if albums[i].Kind != albums[j].Kind {
			return albums[i].Kind < albums[j].Kind
		}

		return albums[i].Name < albums[j].Name
	})

	return albums, nil
}

func newAlbumsQueryRequest() albumsQueryRequest {
	var r albumsQueryRequest
	r.Query.RecordType = "Album"
	r.ZoneID.ZoneName = "PrimarySync"

	return r
}

// newJSONRequest builds a request carrying a JSON body. Shared by
// albums.go and photos.go, both of which issue the same CloudKit-style
// records/query POST against different record types.
func newJSONRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
}
