package authcoord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"
)

// requestIdempotencyWindow is spec.md §4.D's "idempotent under rate limit:
// at most 1 call per 30 s" for POST /request.
const requestIdempotencyWindow = 30 * time.Second

// submitRateLimit is spec.md §4.D's "at most 5 submissions per minute"
// per loopback client.
const (
	submitRateLimitCount  = 5
	submitRateLimitWindow = time.Minute
)

// shutdownTimeout bounds the graceful-shutdown wait, mirroring the
// teacher's auth.go shutdownCallbackServer.
const shutdownTimeout = 5 * time.Second

// RequestFunc wraps CloudSession.request_2fa(). A nil return means ok.
type RequestFunc func(ctx context.Context) error

// SubmitFunc wraps CloudSession.verify_2fa(code). A nil return means ok.
type SubmitFunc func(ctx context.Context, code string) error

// Capabilities are the CloudSession-supplied callbacks the coordinator
// invokes on the human's behalf, per spec.md §4.D's "on_request and
// on_submit are capabilities supplied by CloudSession".
type Capabilities struct {
	Request RequestFunc
	Submit  SubmitFunc
}

// Options configures a Server.
type Options struct {
	// PortRange is the [low, high] inclusive range to try, per spec.md
	// §6's auth_web_port_range (default [8080, 8090]).
	PortRange [2]int
}

// Server is the loopback-only HTTP interface for Component D. One Server
// serves exactly one ObtainCode call at a time; it is not meant to be
// reused concurrently.
type Server struct {
	caps   Capabilities
	opts   Options
	logger *slog.Logger

	m *machine

	httpServer *http.Server
	listener   net.Listener

	requestGroup  singleflight.Group
	reqMu         sync.Mutex
	lastRequestAt time.Time

	submitMu     sync.Mutex
	submitTimes  []time.Time
	submittedVal string

	hub *wsHub
}

// NewServer constructs a Server bound to no socket yet; call ObtainCode to
// start it, serve until a terminal state, and shut it down.
func NewServer(caps Capabilities, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.PortRange == ([2]int{}) {
		opts.PortRange = [2]int{8080, 8090}
	}

	return &Server{
		caps:   caps,
		opts:   opts,
		logger: logger,
		m:      newMachine(),
		hub:    newWSHub(),
	}
}

// ObtainCode is the public contract to SyncEngine per spec.md §4.D: it
// binds the loopback server, blocks until a terminal state is reached
// (success, failed, or cancelled) or ctx is done, and returns the
// validated code on success.
func (s *Server) ObtainCode(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if err := s.start(ctx); err != nil {
		return "", err
	}
	defer s.stop()

	if err := s.m.transition(StateListening, "waiting for code"); err != nil {
		return "", fmt.Errorf("authcoord: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.m.done:
	case <-timer.C:
		s.m.forceTerminal(StateFailed, "timed out waiting for code")
	case <-ctx.Done():
		s.m.forceTerminal(StateCancelled, "cancelled")
	}

	state, message := s.m.snapshot()

	switch state {
	case StateSuccess:
		s.submitMu.Lock()
		code := s.submittedVal
		s.submitMu.Unlock()

		return code, nil
	case StateFailed:
		return "", fmt.Errorf("%w: %s", ErrTimedOut, message)
	case StateCancelled:
		return "", fmt.Errorf("%w: %s", ErrCancelled, message)
	default:
		return "", fmt.Errorf("authcoord: unexpected terminal state %q", state)
	}
}

// start binds the first free port in opts.PortRange and begins serving in
// the background. Grounded on the teacher's startCallbackServer: a
// net.ListenConfig bound strictly to the loopback address.
func (s *Server) start(ctx context.Context) error {
	listener, port, err := bindFirstFreePort(ctx, s.opts.PortRange)
	if err != nil {
		return err
	}

	s.listener = listener

	router := chi.NewRouter()
	router.Get("/", s.handleIndex)
	router.Get("/status", s.handleStatus)
	router.Post("/request", s.handleRequest)
	router.Post("/submit", s.handleSubmit)
	router.Get("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: shutdownTimeout,
	}

	s.logger.Info("authcoord: listening", slog.Int("port", port))

	go func() {
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Warn("authcoord: server error", slog.String("error", serveErr.Error()))
			s.m.forceTerminal(StateFailed, fmt.Sprintf("server error: %v", serveErr))
		}
	}()

	return nil
}

// stop gracefully shuts down the HTTP server, mirroring the teacher's
// shutdownCallbackServer.
func (s *Server) stop() {
	if s.httpServer == nil {
		return
	}

	s.hub.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("authcoord: shutdown error", slog.String("error", err.Error()))
	}
}

// bindFirstFreePort tries each port in [low, high] until one binds, per
// spec.md §4.D's "tries each port in the configured range until one
// binds". Binding to anything but 127.0.0.1 is forbidden by construction.
func bindFirstFreePort(ctx context.Context, portRange [2]int) (net.Listener, int, error) {
	lc := net.ListenConfig{}

	for port := portRange[0]; port <= portRange[1]; port++ {
		addr := fmt.Sprintf("127.0.0.1:%d", port)

		listener, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return listener, port, nil
		}
	}

	return nil, 0, ErrNoPortAvailable
}
