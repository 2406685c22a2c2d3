package icloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// downloadURLResponse resolves a CKAsset's record into the short-lived
// signed URL its bytes are actually served from, mirroring rclone's
// PhotosObject.Open two-step fetch (resolve record -> GET signed URL).
type downloadURLResponse struct {
	Fields struct {
		ResOriginalFile struct {
			Value struct {
				DownloadURL string `json:"downloadURL"`
				Size        int64  `json:"size"`
			} `json:"value"`
		} `json:"resOriginalFile"`
	} `json:"fields"`
}

// Download streams the bytes of the photo identified by remoteID, per
// spec.md §4.E. The returned ReadCloser is a lazy, finite, not-restartable
// byte sequence; the caller must Close it (even on error) to release the
// underlying connection.
func (s *Session) Download(ctx context.Context, remoteID string) (io.ReadCloser, int64, error) {
	resolveResp, err := s.http.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			photosAPIBase+"/records/"+remoteID, nil)
		if err != nil {
			return nil, err
		}

		s.applyAppleHeaders(req)
		s.applyCookies(req)

		return req, nil
	})
	if err != nil {
		return nil, 0, err
	}
	defer drainAndClose(resolveResp)

	s.captureSessionHeaders(resolveResp)

	switch resolveResp.StatusCode {
	case http.StatusNotFound:
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, remoteID)
	default:
		if resolveResp.StatusCode != http.StatusOK {
			return nil, 0, fmt.Errorf("%w: resolving download URL, HTTP %d", ErrServiceUnavailable, resolveResp.StatusCode)
		}
	}

	var parsed downloadURLResponse
	if err := json.NewDecoder(resolveResp.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("%w: decoding download record: %v", ErrServiceUnavailable, err)
	}

	downloadURL := parsed.Fields.ResOriginalFile.Value.DownloadURL
	if downloadURL == "" {
		return nil, 0, fmt.Errorf("%w: %s: no download URL in record", ErrNotFound, remoteID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("icloud: building download request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := s.http.inner.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		drainAndClose(resp)
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, remoteID)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		drainAndClose(resp)
		return nil, 0, fmt.Errorf("%w: download HTTP %d", ErrServiceUnavailable, resp.StatusCode)
	}

	size := resp.ContentLength
	if size <= 0 {
		size = parsed.Fields.ResOriginalFile.Value.Size
	}

	return resp.Body, size, nil
}
