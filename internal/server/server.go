// Package server provides the HTTP status API of the advisor.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/database"
	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/internal/modules/portfolio"
	portfoliohandlers "github.com/aristath/portfolio-advisor/internal/modules/portfolio/handlers"
)

// RunController starts runs and exposes the latest report
type RunController interface {
	Start(ctx context.Context) error
	Latest() *portfolio.RunReport
	Running() bool
}

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	Databases []*database.DB // Checked by /health
	Positions domain.PositionStore
	Ledger    domain.LedgerStore
	Runs      RunController
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	port      int
	databases []*database.DB
	positions domain.PositionStore
	ledger    domain.LedgerStore
	runs      RunController

	// Runs started over HTTP outlive their request
	baseCtx context.Context
	cancel  context.CancelFunc

	log zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		router:    chi.NewRouter(),
		port:      cfg.Port,
		databases: cfg.Databases,
		positions: cfg.Positions,
		ledger:    cfg.Ledger,
		runs:      cfg.Runs,
		baseCtx:   ctx,
		cancel:    cancel,
		log:       cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(30 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		portfolioHandler := portfoliohandlers.NewHandler(s.positions, s.ledger, s.log)
		portfolioHandler.RegisterRoutes(r)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/latest", s.handleLatestRun)
			r.Post("/", s.handleStartRun)
		})
	})
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.cancel()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
