package icloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"
)

// Per the teacher's internal/graph/client.go §7.2-equivalent retry policy:
// base 1s, factor 2x, max 20s, +/-25% jitter, max 4 retries. The ceiling is
// lower than the teacher's Graph client (20s vs 60s, 4 vs 5 retries)
// since iCloud's setup/auth endpoints are interactive, human-facing flows
// rather than bulk data transfer.
const (
	maxRetries     = 4
	baseBackoff    = 1 * time.Second
	maxBackoff     = 20 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "icloud-photo-sync/1.0"
)

// authAPIBase and setupAPIBase mirror the two hosts Apple's private API
// splits requests across, per the rclone iCloudPhotos backend's api
// package.
const (
	authAPIBase   = "https://idmsa.apple.com/appleauth/auth"
	setupAPIBase  = "https://setup.icloud.com/setup/ws/1"
	photosAPIBase = "https://p00-ckdatabasews.icloud.com"
)

// httpClient wraps an *http.Client with the teacher's retry/backoff idiom,
// narrowed to iCloud's session-cookie transport (no bearer-token
// TokenSource, since authentication here is a cookie + trust-token pair
// rather than OAuth2).
type httpClient struct {
	inner     *http.Client
	logger    *slog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error
}

func newHTTPClient(inner *http.Client, logger *slog.Logger) *httpClient {
	if inner == nil {
		inner = &http.Client{Timeout: 60 * time.Second}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &httpClient{inner: inner, logger: logger, sleepFunc: sleepCtx}
}

// doWithRetry executes reqFn (which must build a fresh, unsent *http.Request
// each call, so retries resend any body) with exponential backoff on
// transient network errors and 5xx/429 responses.
func (c *httpClient) doWithRetry(ctx context.Context, reqFn func() (*http.Request, error)) (*http.Response, error) {
	var attempt int

	for {
		req, err := reqFn()
		if err != nil {
			return nil, fmt.Errorf("icloud: building request: %w", err)
		}

		req.Header.Set("User-Agent", userAgent)

		resp, err := c.inner.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("icloud: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := calcBackoff(attempt)
				c.logger.Warn("icloud: retrying after network error",
					slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff))

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("icloud: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}

		if resp.StatusCode < 300 {
			return resp, nil
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			resp.Body.Close()

			backoff := calcBackoff(attempt)
			c.logger.Warn("icloud: retrying after HTTP error",
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1))

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("icloud: request canceled: %w", sleepErr)
			}

			attempt++

			continue
		}

		return resp, nil
	}
}

func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec
	backoff += jitter

	return time.Duration(backoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drainAndClose(resp *http.Response) {
	if resp == nil {
		return
	}

	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()
}
