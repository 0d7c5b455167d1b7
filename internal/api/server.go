// Package api exposes the local control API for a running campaign:
// status inspection, pause/resume/cancel, session listing and Prometheus
// metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ndomo/wasend/internal/bulk"
	"github.com/ndomo/wasend/internal/config"
	"github.com/ndomo/wasend/internal/metrics"
	"github.com/ndomo/wasend/internal/pacing"
	"github.com/ndomo/wasend/internal/session"
)

// Server is the HTTP control API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	runner     *bulk.Runner
	policy     *pacing.Policy
	sessions   *session.Store
	metrics    *metrics.Metrics
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new control API server
func NewServer(runner *bulk.Runner, policy *pacing.Policy, sessions *session.Store, m *metrics.Metrics, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		runner:    runner,
		policy:    policy,
		sessions:  sessions,
		metrics:   m,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/sessions", s.handleSessions)
	s.router.Post("/pause", s.handlePause)
	s.router.Post("/resume", s.handleResume)
	s.router.Post("/cancel", s.handleCancel)
	s.router.Handle("/metrics", s.metrics.Handler())
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting control API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down control API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}
