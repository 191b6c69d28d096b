package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/monitorfeed/internal/auth"
	"github.com/jpalmerr/monitorfeed/internal/metrics"
	"github.com/jpalmerr/monitorfeed/internal/session"
	"github.com/jpalmerr/monitorfeed/internal/snapshot"
	"github.com/jpalmerr/monitorfeed/internal/updates"
)

const (
	// DefaultPath is the WebSocket endpoint when none is configured.
	DefaultPath = "/ws/monitors"

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight HTTP requests.
	shutdownTimeout = 5 * time.Second

	// healthTimeout bounds the store ping behind /healthz.
	healthTimeout = 2 * time.Second
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a [Server]. Zero values select defaults.
type Options struct {
	// Port is the TCP port to listen on. Zero picks a free port.
	Port int

	// Path is the WebSocket endpoint. Defaults to "/ws/monitors".
	Path string

	// Frames selects the outbound frame shape.
	Frames session.FrameMode

	// WriteTimeout bounds each frame write. Defaults to 5s.
	WriteTimeout time.Duration

	// Auth gates the WebSocket, SSE and status endpoints. Nil admits
	// everyone.
	Auth auth.Authenticator

	// AllowedOrigins restricts WebSocket upgrades by Origin header. Empty
	// accepts any origin.
	AllowedOrigins []string

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server handles HTTP requests for the monitor broadcast.
//
// Endpoints:
//   - GET <Path>: WebSocket stream, one [session.Session] per connection
//   - GET /api/sse: the same stream over Server-Sent Events
//   - GET /api/status: current snapshot as JSON
//   - GET /healthz: store reachability
//   - GET /metrics: Prometheus metrics (when a Gatherer is set)
//
// The server shuts down gracefully when the context passed to
// [Server.Start] is cancelled.
type Server struct {
	snapshots *snapshot.Client
	hub       *updates.Hub
	pinger    Pinger
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Metrics
	upgrader  websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a [Server]. It does not listen until [Server.Start].
func NewServer(snaps *snapshot.Client, hub *updates.Hub, pinger Pinger, opts Options, logger *slog.Logger, m *metrics.Metrics) *Server {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Frames == "" {
		opts.Frames = session.FramesEnvelope
	}
	if opts.Auth == nil {
		opts.Auth = auth.Anonymous{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		snapshots: snaps,
		hub:       hub,
		pinger:    pinger,
		opts:      opts,
		logger:    logger,
		metrics:   m,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the HTTP handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.handleWebSocket)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. When ctx is
// cancelled the server shuts down with a 5-second timeout; every request
// context derives from ctx, so live sessions end as well.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.opts.Port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context,
		// so cancelling ctx also ends long-running session handlers.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// setAllowOrigin sets the CORS header for event streams. Without an origin
// list any origin may read; otherwise only an allowed Origin is echoed.
func (s *Server) setAllowOrigin(w http.ResponseWriter, r *http.Request) {
	if len(s.opts.AllowedOrigins) == 0 {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		return
	}
	w.Header().Add("Vary", "Origin")
	if origin := r.Header.Get("Origin"); origin != "" && s.checkOrigin(r) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// non-browser clients send no Origin
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// authenticate writes a 401 and returns false when the request is rejected.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	subject, err := s.opts.Auth.Authenticate(r)
	if err != nil {
		s.logger.Warn("request rejected", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return subject, true
}

// handleWebSocket upgrades the connection and serves one session on it
// until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	subject, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	tr := newWSTransport(conn, s.opts.WriteTimeout, s.logger)
	s.serveSession(r.Context(), tr, subject, r.RemoteAddr, "websocket")
}

// handleSSE serves one session over Server-Sent Events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}
	subject, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	s.setAllowOrigin(w, r)

	tr := newSSETransport(r.Context(), w, s.opts.WriteTimeout, s.logger)
	s.serveSession(r.Context(), tr, subject, r.RemoteAddr, "sse")
}

func (s *Server) serveSession(ctx context.Context, tr session.Transport, subject, remote, kind string) {
	sess := session.New(session.Config{
		Subject:   subject,
		Transport: tr,
		Snapshots: s.snapshots,
		Hub:       s.hub,
		Frames:    s.opts.Frames,
		Logger:    s.logger,
		Metrics:   s.metrics,
	})

	s.logger.Info("client connected", "session_id", sess.ID(), "transport", kind, "remote", remote)
	if err := sess.Run(ctx); err != nil {
		s.logger.Error("session failed", "session_id", sess.ID(), "error", err)
		return
	}
	s.logger.Info("client disconnected", "session_id", sess.ID())
}

// handleStatus returns the current snapshot of every monitor as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	snaps, err := s.snapshots.List(r.Context())
	if err != nil {
		s.logger.Warn("status snapshot read failed", "error", err)
		s.metrics.StoreError("list")
		writeJSON(w, http.StatusServiceUnavailable, session.Envelope{
			Type:   session.FrameError,
			Error:  "snapshot unavailable",
			SentAt: time.Now(),
		}, s.logger)
		return
	}
	if snaps == nil {
		snaps = []snapshot.MonitorSnapshot{}
	}

	writeJSON(w, http.StatusOK, struct {
		Type     string                     `json:"type"`
		Monitors []snapshot.MonitorSnapshot `json:"monitors"`
		SentAt   time.Time                  `json:"sent_at"`
	}{
		Type:     session.FrameSnapshot,
		Monitors: snaps,
		SentAt:   time.Now(),
	}, s.logger)
}

// handleHealth pings the store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
