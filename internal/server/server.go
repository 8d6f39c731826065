// Package server exposes the answering engine over HTTP: a query endpoint,
// component stats, a health probe, and Prometheus metrics. Retrieval
// budgets are fixed at engine construction; the server adds request
// logging, a per-request timeout, and graceful shutdown on top.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragweaver/ragweaver/internal/pipeline"
	"github.com/ragweaver/ragweaver/internal/rag"
)

const (
	// DefaultTimeout bounds one query end to end.
	DefaultTimeout = 60 * time.Second

	// maxBodyBytes caps the query request body.
	maxBodyBytes = 1 << 20

	shutdownGrace = 10 * time.Second
)

// Engine is the answering surface the server fronts.
type Engine interface {
	Ask(ctx context.Context, question string) (*rag.RunRecord, error)
	Stats(ctx context.Context) pipeline.ComponentStats
}

// Server serves the engine over HTTP.
type Server struct {
	engine  Engine
	logger  *slog.Logger
	timeout time.Duration
	metrics *metrics
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New builds a Server around the engine. Metrics live in a private
// registry so multiple servers never collide on registration.
func New(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	r.Route("/api/rag", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then drains in-flight
// requests before returning.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("http_listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		<-errCh
		s.logger.Info("http_stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	}
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Answer      string  `json:"answer"`
	Confidence  float64 `json:"confidence"`
	Intent      string  `json:"intent"`
	Retrieved   int     `json:"retrieved"`
	Reranked    int     `json:"reranked"`
	FromCache   bool    `json:"from_cache"`
	QueryTimeMs float64 `json:"query_time_ms"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	rec, err := s.engine.Ask(r.Context(), req.Question)
	if rec != nil {
		// Failed runs still produce a record; count them too.
		s.metrics.observe(rec)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if r.Context().Err() != nil {
			status = http.StatusGatewayTimeout
		}
		s.logger.Error("query_failed", "error", err)
		writeError(w, status, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:      rec.Answer,
		Confidence:  rec.Confidence,
		Intent:      string(rec.Intent),
		Retrieved:   rec.Retrieved,
		Reranked:    rec.Reranked,
		FromCache:   rec.FromCache,
		QueryTimeMs: rec.ElapsedSec * 1000,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs every request with status and timing. Probe and
// scrape endpoints log at debug so they do not drown real traffic.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed_ms", float64(time.Since(start).Microseconds())/1000,
			"remote", r.RemoteAddr)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
