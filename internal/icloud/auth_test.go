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

// redirectTransport rewrites every request's scheme/host to point at a
// local httptest server, since authAPIBase/setupAPIBase/photosAPIBase are
// fixed constants rather than injectable fields.
type redirectTransport struct {
	target string
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := req.URL.Parse(rt.target + req.URL.Path)
	if err != nil {
		return nil, err
	}

	redirected := req.Clone(req.Context())
	redirected.URL = target
	redirected.Host = target.Host

	return http.DefaultTransport.RoundTrip(redirected)
}

func newTestSession(t *testing.T, handler http.HandlerFunc) *Session {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)
	s.http.sleepFunc = noopSleep
	s.http.inner = &http.Client{Transport: redirectTransport{target: srv.URL}}

	return s
}

func TestApplyAppleHeaders_SetsClientIDAndContentType(t *testing.T) {
	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	s.applyAppleHeaders(req)

	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, s.clientID, req.Header.Get("X-Apple-OAuth-Client-Id"))
}

func TestApplyCookies_ReplaysStoredCookies(t *testing.T) {
	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)
	s.blob = &sessionBlob{Cookies: map[string]string{"X-APPLE-WEBAUTH-USER": "abc"}}

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	s.applyCookies(req)

	cookie, err := req.Cookie("X-APPLE-WEBAUTH-USER")
	require.NoError(t, err)
	assert.Equal(t, "abc", cookie.Value)
}

func TestCaptureSessionHeaders_StoresTrustTokenAndSCNT(t *testing.T) {
	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("scnt", "scnt-val")
	resp.Header.Set("X-Apple-TwoSV-Trust-Token", "trust-val")

	s.captureSessionHeaders(resp)

	require.NotNil(t, s.blob)
	assert.Equal(t, "scnt-val", s.blob.SCNT)
	assert.Equal(t, "trust-val", s.blob.TrustToken)
}

func TestAuthenticate_FreshSignInOK(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/appleauth/auth/signin", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	result, err := s.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AuthOK, result)
}

func TestAuthenticate_ConflictMapsToTwoFactorRequired(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	result, err := s.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AuthTwoFactorRequired, result)
}

func TestAuthenticate_UnauthorizedMapsToInvalidCredentials(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	result, err := s.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AuthInvalidCredentials, result)
}

func TestAuthenticate_ServerErrorMapsToServiceUnavailable(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	result, err := s.Authenticate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, AuthServiceUnavailable, result)
}

func TestRequest2FA_RateLimited(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := s.Request2FA(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRequest2FA_Success(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	assert.NoError(t, s.Request2FA(context.Background()))
}

func TestVerify2FA_InvalidCodeMapsToErrCodeInvalid(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := s.Verify2FA(context.Background(), "000000")
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestVerify2FA_Success(t *testing.T) {
	s := newTestSession(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, s.Verify2FA(context.Background(), "123456"))
}

func TestTrustSession_PersistsBlobOnSuccess(t *testing.T) {
	sessionPath := filepath.Join(t.TempDir(), "session.json")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Apple-TwoSV-Trust-Token", "new-trust-token")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSession("user@example.com", "hunter2", sessionPath, nil, nil)
	s.http.sleepFunc = noopSleep
	s.http.inner = &http.Client{Transport: redirectTransport{target: srv.URL}}

	require.NoError(t, s.TrustSession(context.Background()))

	loaded, err := loadSessionBlob(sessionPath)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "new-trust-token", loaded.TrustToken)
}

func TestTrustSession_NetworkFailureIsBestEffort(t *testing.T) {
	s := NewSession("user@example.com", "hunter2", filepath.Join(t.TempDir(), "session.json"), nil, nil)
	s.http.sleepFunc = noopSleep
	s.http.inner = &http.Client{Transport: redirectTransport{target: "http://127.0.0.1:1"}}

	assert.NoError(t, s.TrustSession(context.Background()))
}
