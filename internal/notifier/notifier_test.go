package notifier

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestNotifier(t *testing.T, handler http.HandlerFunc, enabled bool) (*Notifier, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	n := New(Config{Enabled: enabled, APIToken: "tok", UserKey: "usr"}, srv.Client(), testLogger())
	n.timeout = 2 * time.Second
	n.endpoint = srv.URL

	return n, srv
}

func TestNotify_DisabledIsNoOp(t *testing.T) {
	called := false
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}, false)

	err := n.Notify(context.Background(), KindInfo, "title", "body", "")
	require.NoError(t, err)
	assert.False(t, called)
}

func TestNotify_SuccessOn2xx(t *testing.T) {
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, true)

	err := n.Notify(context.Background(), KindAuthSuccess, "Signed in", "all good", "")
	require.NoError(t, err)
}

func TestNotify_FailsOnNon2xx(t *testing.T) {
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, true)

	err := n.Notify(context.Background(), KindFatal, "Sync failed", "disk full", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotifyFailed)
}

func TestNotify_NeverLogsCredentials(t *testing.T) {
	n, _ := newTestNotifier(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, true)

	err := n.Notify(context.Background(), KindAuthRequired, "2FA required", "enter code", "http://localhost:8080")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "tok")
	assert.NotContains(t, err.Error(), "usr")
}
