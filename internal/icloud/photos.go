package icloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// photosQueryRequest is the per-album variant of albumsQueryRequest,
// filtering CKRecords of type "CPLAsset" down to one album via its
// parent-record reference, per the rclone iCloud Photos backend's
// GetAlbumPhotos (other_examples/..._icloudphotos.go.go).
type photosQueryRequest struct {
	Query struct {
		RecordType string `json:"recordType"`
		Filter     []struct {
			FieldName  string `json:"fieldName"`
			Comparator string `json:"comparator"`
			FieldValue struct {
				Value string `json:"value"`
			} `json:"fieldValue"`
		} `json:"filterBy"`
	} `json:"query"`
	ZoneID struct {
		ZoneName string `json:"zoneName"`
	} `json:"zoneID"`
}

type photosQueryResponse struct {
	Records []struct {
		RecordName string `json:"recordName"`
		Fields     struct {
			Filename struct {
				Value string `json:"value"`
			} `json:"filenameEnc"`
			Size struct {
				Value int64 `json:"value"`
			} `json:"resOriginalRes"`
		} `json:"fields"`
	} `json:"records"`
}

// ListPhotos enumerates every photo in album, per spec.md §4.E. Each call
// issues a fresh query — the result is restartable per call even though an
// individual call's sequence, once returned, is not re-iterated.
//
// Per spec.md §9's open question on duplicates, this does not itself
// deduplicate; SyncEngine defensively deduplicates by filename within one
// album, preferring the first occurrence.
func (s *Session) ListPhotos(ctx context.Context, album Album) ([]RemotePhoto, error) {
	body, err := json.Marshal(newPhotosQueryRequest(album))
	if err != nil {
		return nil, fmt.Errorf("icloud: encoding photos query: %w", err)
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
		return nil, fmt.Errorf("%w: list_photos(%s) HTTP %d", ErrServiceUnavailable, album.Name, resp.StatusCode)
	}

	var parsed photosQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding photos response: %v", ErrServiceUnavailable, err)
	}

	photos := make([]RemotePhoto, 0, len(parsed.Records))

	for _, rec := range parsed.Records {
		filename := rec.Fields.Filename.Value
		if filename == "" {
			continue
		}

		photos = append(photos, RemotePhoto{
			RemoteID:  rec.RecordName,
			Filename:  filename,
			SizeBytes: rec.Fields.Size.Value,
			AlbumName: album.Name,
			Kind:      album.Kind,
		})
	}

	return photos, nil
}

func newPhotosQueryRequest(album Album) photosQueryRequest {
	var r photosQueryRequest
	r.Query.RecordType = "CPLAsset"
	r.ZoneID.ZoneName = "PrimarySync"
	r.Query.Filter = append(r.Query.Filter, struct {
		FieldName  string `json:"fieldName"`
		Comparator string `json:"comparator"`
		FieldValue struct {
			Value string `json:"value"`
		} `json:"fieldValue"`
	}{
		FieldName:  "parentId",
		Comparator: "EQUALS",
		FieldValue: struct {
			Value string `json:"value"`
		}{Value: album.Name},
	})

	return r
}
