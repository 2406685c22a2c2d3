package icloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// signInRequest is the body Apple's idmsa sign-in endpoint expects,
// shaped after the accountName/password/trustTokens triple every iCloud
// client (including rclone's) submits.
type signInRequest struct {
	AccountName string   `json:"accountName"`
	Password    string   `json:"password"`
	TrustTokens []string `json:"trustTokens,omitempty"`
}

// Authenticate signs in with the configured Apple ID and password,
// returning which of the four outcomes spec.md §4.E's table prescribes.
// If a trusted session was already loaded via LoadPersistedSession and its
// trust token is still accepted, this skips straight to AuthOK.
func (s *Session) Authenticate(ctx context.Context) (AuthResult, error) {
	if s.HasPersistedSession() {
		ok, err := s.revalidateTrustedSession(ctx)
		if err != nil {
			return AuthServiceUnavailable, err
		}

		if ok {
			return AuthOK, nil
		}
		// Trust token stale or revoked server-side: fall through to a
		// fresh username/password sign-in below.
	}

	body, err := json.Marshal(signInRequest{AccountName: s.appleID, Password: s.password})
	if err != nil {
		return AuthServiceUnavailable, fmt.Errorf("icloud: encoding sign-in request: %w", err)
	}

	resp, err := s.http.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, authAPIBase+"/signin", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		s.applyAppleHeaders(req)

		return req, nil
	})
	if err != nil {
		return AuthServiceUnavailable, err
	}
	defer drainAndClose(resp)

	s.captureSessionHeaders(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return AuthOK, nil
	case http.StatusConflict:
		// Apple signals "additional authentication required" (2FA) with 409.
		return AuthTwoFactorRequired, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return AuthInvalidCredentials, nil
	default:
		return AuthServiceUnavailable, fmt.Errorf("%w: HTTP %d", ErrServiceUnavailable, resp.StatusCode)
	}
}

// revalidateTrustedSession re-presents the stored cookies and trust token
// against Apple's setup endpoint, the equivalent of rclone's
// Session.Requires2FA() check after constructing api.Client with a saved
// cookie jar.
func (s *Session) revalidateTrustedSession(ctx context.Context) (bool, error) {
	resp, err := s.http.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, setupAPIBase+"/validate", nil)
		if err != nil {
			return nil, err
		}

		s.applyAppleHeaders(req)
		s.applyCookies(req)

		return req, nil
	})
	if err != nil {
		return false, err
	}
	defer drainAndClose(resp)

	s.captureSessionHeaders(resp)

	return resp.StatusCode == http.StatusOK, nil
}

// Request2FA asks Apple to (re)send the six-digit code to the user's
// trusted device, per spec.md §4.E.
func (s *Session) Request2FA(ctx context.Context) error {
	resp, err := s.http.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, authAPIBase+"/verify/trusteddevice", nil)
		if err != nil {
			return nil, err
		}

		s.applyAppleHeaders(req)
		s.applyCookies(req)

		return req, nil
	})
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	s.captureSessionHeaders(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: HTTP %d", ErrServiceUnavailable, resp.StatusCode)
	}
}

// verify2FABody is the body POST /verify/trusteddevice/securitycode
// expects, per Apple's (reverse-engineered) 2FA protocol.
type verify2FABody struct {
	SecurityCode struct {
		Code string `json:"code"`
	} `json:"securityCode"`
}

// Verify2FA submits the six-digit code the human entered, per spec.md
// §4.E. code is assumed already validated as six ASCII digits by the
// caller (AuthCoordinator's /submit handler).
func (s *Session) Verify2FA(ctx context.Context, code string) error {
	var body verify2FABody
	body.SecurityCode.Code = code

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("icloud: encoding 2FA submission: %w", err)
	}

	resp, err := s.http.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, authAPIBase+"/verify/trusteddevice/securitycode", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}

		s.applyAppleHeaders(req)
		s.applyCookies(req)

		return req, nil
	})
	if err != nil {
		return err
	}
	defer drainAndClose(resp)

	s.captureSessionHeaders(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return ErrCodeInvalid
	default:
		return fmt.Errorf("%w: HTTP %d", ErrServiceUnavailable, resp.StatusCode)
	}
}

// TrustSession asks Apple to mark this device as trusted so future runs
// skip the 2FA dance, then persists the resulting cookie/trust-token blob
// to disk. Best-effort per spec.md §4.E: a failure here does not unwind a
// successful Authenticate/Verify2FA.
func (s *Session) TrustSession(ctx context.Context) error {
	resp, err := s.http.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, authAPIBase+"/2sv/trust", nil)
		if err != nil {
			return nil, err
		}

		s.applyAppleHeaders(req)
		s.applyCookies(req)

		return req, nil
	})
	if err != nil {
		s.logger.Warn("icloud: trust_session request failed", slog.String("error", err.Error()))
		return nil //nolint:nilerr // best-effort per spec.md §4.E
	}
	defer drainAndClose(resp)

	s.captureSessionHeaders(resp)

	if s.blob == nil {
		s.blob = &sessionBlob{}
	}

	if err := saveSessionBlob(s.sessionPath, s.blob); err != nil {
		s.logger.Warn("icloud: saving trusted session failed", slog.String("error", err.Error()))
	}

	return nil
}

// applyAppleHeaders sets the fixed headers every request against Apple's
// private API needs, per the rclone iCloud Photos backend's client
// construction (client ID + JSON content negotiation).
func (s *Session) applyAppleHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Apple-OAuth-Client-Id", s.clientID)
	req.Header.Set("X-Apple-Widget-Key", s.clientID)

	if s.blob != nil && s.blob.SCNT != "" {
		req.Header.Set("scnt", s.blob.SCNT)
	}
}

// applyCookies replays the session's stored cookies onto req.
func (s *Session) applyCookies(req *http.Request) {
	if s.blob == nil {
		return
	}

	for name, value := range s.blob.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// captureSessionHeaders records any updated cookies/scnt/trust-token
// Apple's response carries, so subsequent requests in the same
// authentication flow present a consistent session.
func (s *Session) captureSessionHeaders(resp *http.Response) {
	if resp == nil {
		return
	}

	if s.blob == nil {
		s.blob = &sessionBlob{Cookies: map[string]string{}}
	} else if s.blob.Cookies == nil {
		s.blob.Cookies = map[string]string{}
	}

	for _, c := range resp.Cookies() {
		s.blob.Cookies[c.Name] = c.Value
	}

	if scnt := resp.Header.Get("scnt"); scnt != "" {
		s.blob.SCNT = scnt
	}

	if tt := resp.Header.Get("X-Apple-TwoSV-Trust-Token"); tt != "" {
		s.blob.TrustToken = tt
	}
}
