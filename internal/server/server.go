// Package server exposes daemon health and sync status over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"igsync/internal/journal"
	"igsync/pkg/ingest"
	"igsync/pkg/logger"
)

const (
	readTimeout     = 10 * time.Second
	idleTimeout     = 60 * time.Second
	requestTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// StatusSource reports where the orchestrator is
type StatusSource interface {
	State() ingest.State
	Current() string
	LastReport() *ingest.CycleReport
}

// History lists journaled cycles
type History interface {
	RecentCycles(ctx context.Context, limit int) ([]journal.Cycle, error)
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	State      ingest.State        `json:"state"`
	Current    string              `json:"current,omitempty"`
	LastReport *ingest.CycleReport `json:"last_report"`
}

// Server serves /health, /status and, with a journal, /cycles
type Server struct {
	addr    string
	status  StatusSource
	history History
	logger  logger.Logger
	now     func() time.Time
}

// Option configures a Server
type Option func(*Server)

// WithHistory enables GET /cycles
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithLogger sets the request logger
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a status server listening on addr
func New(addr string, status StatusSource, opts ...Option) *Server {
	s := &Server{
		addr:   addr,
		status: status,
		logger: logger.GetLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Get("/health", s.health)
	r.Get("/status", s.statusHandler)
	if s.history != nil {
		r.Get("/cycles", s.cycles)
	}
	return r
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("Starting status server")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down status server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UnixMilli(),
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		State:      s.status.State(),
		Current:    s.status.Current(),
		LastReport: s.status.LastReport(),
	})
}

func (s *Server) cycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	cycles, err := s.history.RecentCycles(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list journaled cycles")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list cycles"})
		return
	}
	if cycles == nil {
		cycles = []journal.Cycle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": cycles})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.DebugWithFields("HTTP request served", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": s.now().Sub(start).Milliseconds(),
			"request_id":  chimiddleware.GetReqID(r.Context()),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
