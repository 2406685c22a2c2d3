// Package notifier implements Component C: one-way, out-of-band message
// delivery for 2FA prompts, success confirmations, and fatal-error reports.
//
// Grounded on the teacher's internal/graph/client.go HTTP idiom (bounded
// timeout, sentinel-error classification via errors.Is) narrowed to a
// single attempt — spec.md §4.C assigns retry policy to the caller, not
// the Notifier. The wire shape follows Pushover's push API, the concrete
// push channel spec.md §9 leaves open for substitution.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Kind classifies a notification, per spec.md §4.C.
type Kind string

const (
	KindInfo         Kind = "info"
	KindAuthRequired Kind = "auth_required"
	KindAuthSuccess  Kind = "auth_success"
	KindFatal        Kind = "fatal"
)

// defaultTimeout is spec.md §4.C's "bounded timeout (default 10s)".
const defaultTimeout = 10 * time.Second

// pushoverEndpoint is Pushover's message API, the grounding for this
// Notifier's wire shape (see DESIGN.md).
const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// ErrNotifyFailed is returned on any non-2xx response from the upstream
// service, per spec.md §4.C.
var ErrNotifyFailed = errors.New("notifier: delivery failed")

// Config carries the credentials spec.md §6 defines under the pushover.*
// keys. Enabled=false makes Notify a no-op (used when the operator has not
// configured a push channel).
type Config struct {
	Enabled  bool
	APIToken string
	UserKey  string
	Device   string
}

// Notifier delivers out-of-band notifications. The zero value with
// Config.Enabled=false is usable and simply no-ops.
type Notifier struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	endpoint   string
}

// New constructs a Notifier. httpClient may be nil (defaults to
// http.DefaultClient); logger may be nil (defaults to slog.Default()).
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Notifier {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		timeout:    defaultTimeout,
		endpoint:   pushoverEndpoint,
	}
}

// Notify sends a single out-of-band message. url, if non-empty, is an
// optional deep link to the AuthCoordinator's web interface. Notify never
// blocks beyond its bounded timeout and never retries; it is a no-op,
// returning nil, when the Notifier is not enabled.
//
// Secret-bearing config (APIToken, UserKey) is never logged or included in
// the returned error's message — only the HTTP status code is, matching
// spec.md §4.C's redaction requirement.
func (n *Notifier) Notify(ctx context.Context, kind Kind, title, body, deepLink string) error {
	if n == nil || !n.cfg.Enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("token", n.cfg.APIToken)
	form.Set("user", n.cfg.UserKey)
	form.Set("title", title)
	form.Set("message", composeMessage(kind, body, deepLink))
	form.Set("priority", priorityFor(kind))

	if n.cfg.Device != "" {
		form.Set("device", n.cfg.Device)
	}

	if deepLink != "" {
		form.Set("url", deepLink)
		form.Set("url_title", "Open")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notifier: building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: timed out after %s", ErrNotifyFailed, n.timeout)
		}

		return fmt.Errorf("%w: %v", ErrNotifyFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn("notifier: delivery failed",
			slog.String("kind", string(kind)),
			slog.Int("status", resp.StatusCode))

		return fmt.Errorf("%w: HTTP %d", ErrNotifyFailed, resp.StatusCode)
	}

	return nil
}

func composeMessage(kind Kind, body, deepLink string) string {
	if kind == KindAuthRequired && deepLink != "" {
		return body + "\n\n" + deepLink
	}

	return body
}

// priorityFor maps Kind onto Pushover's priority scale: fatal errors and
// auth prompts surface above quiet-hours, everything else is normal.
func priorityFor(kind Kind) string {
	switch kind {
	case KindFatal, KindAuthRequired:
		return "1"
	default:
		return "0"
	}
}
