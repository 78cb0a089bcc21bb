package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/metrics"
	"github.com/JakeFAU/engagement-telemetry/internal/pagehost"
)

// Sessions is the page registry the handlers drive.
type Sessions interface {
	Mount(subject engagement.Subject, transport string, initial engagement.ScrollGeometry) (*pagehost.Page, error)
	Get(id string) (*pagehost.Page, error)
	Deliver(id string, sig pagehost.Signal) (bool, error)
	Teardown(id, reason string) (pagehost.Summary, error)
}

// Check is one readiness dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Options tunes the server.
type Options struct {
	// AllowedOrigins lists WebSocket origins; "*" allows any. Empty enforces
	// same-origin.
	AllowedOrigins []string
	// MaxMessageSize bounds request bodies and WebSocket frames (default 4 KiB).
	MaxMessageSize int64
	// RequestTimeout bounds REST handlers (default 10s).
	RequestTimeout time.Duration
	// PingInterval is the WebSocket keepalive period (default 30s). A
	// connection missing two pongs in a row is closed.
	PingInterval time.Duration
}

const (
	defaultMaxMessageSize = 4096
	defaultRequestTimeout = 10 * time.Second
	defaultPingInterval   = 30 * time.Second
	readinessTimeout      = 2 * time.Second
)

// Server wires HTTP handlers to the page registry.
type Server struct {
	router   chi.Router
	sessions Sessions
	checks   []Check
	opts     Options
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(sessions Sessions, checks []Check, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	s := &Server{
		sessions: sessions,
		checks:   checks,
		opts:     opts,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metrics.Middleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Get("/ws", s.streamSession)
		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(opts.RequestTimeout))
			r.Post("/", s.mountSession)
			r.Post("/{session_id}/signals", s.deliverSignal)
			r.Delete("/{session_id}", s.teardownSession)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()
	failed := map[string]string{}
	for _, check := range s.checks {
		if check.Ping == nil {
			continue
		}
		if err := check.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", check.Name), zap.Error(err))
			failed[check.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type mountRequest struct {
	SubjectID      string  `json:"subject_id"`
	Title          string  `json:"title"`
	Category       string  `json:"category"`
	ScrollTop      float64 `json:"scroll_top"`
	DocumentHeight float64 `json:"document_height"`
	ViewportHeight float64 `json:"viewport_height"`
}

func (m mountRequest) subject() engagement.Subject {
	return engagement.Subject{ID: m.SubjectID, Title: m.Title, Category: m.Category}
}

func (m mountRequest) geometry() engagement.ScrollGeometry {
	return engagement.ScrollGeometry{
		ScrollTop:      m.ScrollTop,
		DocumentHeight: m.DocumentHeight,
		ViewportHeight: m.ViewportHeight,
	}
}

func (s *Server) mountSession(w http.ResponseWriter, r *http.Request) {
	var req mountRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	page, err := s.sessions.Mount(req.subject(), "rest", req.geometry())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": page.ID()})
}

func (s *Server) deliverSignal(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	var sig pagehost.Signal
	if err := s.decode(w, r, &sig); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	accepted, err := s.sessions.Deliver(sessionID, sig)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"session_id": sessionID, "accepted": accepted})
}

func (s *Server) teardownSession(w http.ResponseWriter, r *http.Request) {
	summary, err := s.sessions.Teardown(chi.URLParam(r, "session_id"), pagehost.ReasonClient)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxMessageSize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pagehost.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, pagehost.ErrInvalidSignal):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("session operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", reqID),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		rw.status = http.StatusSwitchingProtocols
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
