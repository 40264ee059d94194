// Package server provides the HTTP API over the document store and the
// ingest pipeline.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sheetdex/sheetdex/pkg/ingest"
	"github.com/sheetdex/sheetdex/pkg/runlog"
	"github.com/sheetdex/sheetdex/pkg/store"
)

// DefaultMaxUploadSize bounds multipart uploads when none is configured.
const DefaultMaxUploadSize int64 = 50 << 20

// Store is the part of the document store the API exposes.
type Store interface {
	Ping(ctx context.Context) (store.Info, error)
	Count(ctx context.Context, index string) (int64, error)
	Search(ctx context.Context, index string, q store.Query) ([]store.Hit, error)
	ListIndices(ctx context.Context, pattern string) ([]string, error)
}

// Ingester runs one ingestion.
type Ingester interface {
	Ingest(ctx context.Context, source, target string) (ingest.Result, error)
}

// Server is the HTTP server for sheetdex.
type Server struct {
	store     Store
	ingester  Ingester
	runs      runlog.Backend
	recorder  *runlog.Recorder
	maxUpload int64
	logger    *slog.Logger

	router *chi.Mux
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRunLog records uploads in backend and serves /api/runs from it.
func WithRunLog(backend runlog.Backend) Option {
	return func(s *Server) {
		s.runs = backend
	}
}

// WithMaxUploadSize bounds the request body of uploads.
func WithMaxUploadSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a Server instance.
func NewServer(st Store, ing Ingester, opts ...Option) *Server {
	s := &Server{
		store:     st,
		ingester:  ing,
		runs:      runlog.Nop{},
		maxUpload: DefaultMaxUploadSize,
		logger:    slog.Default(),
		router:    chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = runlog.NewRecorder(s.runs, s.logger)

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/indices", s.handleListIndices)
		r.Get("/indices/{index}/count", s.handleCount)
		r.Get("/indices/{index}/search", s.handleSearch)
		r.Post("/indices/{index}/ingest", s.handleIngest)

		r.Get("/runs", s.handleRuns)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request through slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
