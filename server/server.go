// Package server exposes the answer pipeline, ingestion, and the course
// registry over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/sweetpotato0/sensei/config"
	"github.com/sweetpotato0/sensei/course"
	"github.com/sweetpotato0/sensei/ingest"
	"github.com/sweetpotato0/sensei/pkg/logging"
	"github.com/sweetpotato0/sensei/rag/pipeline"
)

// Server is the HTTP front end.
type Server struct {
	cfg      config.ServerConfig
	pipeline *pipeline.Pipeline
	indexer  *ingest.Indexer
	registry course.Registry
	mcp      http.Handler
	validate *validator.Validate
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithIndexer enables transcript uploads.
func WithIndexer(ix *ingest.Indexer) Option {
	return func(s *Server) { s.indexer = ix }
}

// WithRegistry enables the course endpoints.
func WithRegistry(r course.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// WithMCP mounts an MCP streamable HTTP handler at /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// WithLogger overrides the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a Server around p.
func New(cfg config.ServerConfig, p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: p,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logging.WithComponent("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Post("/generate_answer", s.handleGenerateAnswer)
	r.Post("/evaluate", s.handleEvaluate)
	r.Post("/search", s.handleSearch)

	r.Route("/courses", func(r chi.Router) {
		r.Get("/", s.handleListCourses)
		r.Post("/", s.handleCreateCourse)
		r.Post("/{course}/transcripts/{video}", s.handleUploadTranscript)
	})

	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
