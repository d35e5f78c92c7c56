// Package server provides the HTTP server and routing for the backtester.
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

	"github.com/aristath/backtester/internal/config"
	"github.com/aristath/backtester/internal/events"
	"github.com/aristath/backtester/internal/modules/backtest"
	backtesthandlers "github.com/aristath/backtester/internal/modules/backtest/handlers"
	"github.com/aristath/backtester/internal/modules/marketdata"
	"github.com/aristath/backtester/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log             zerolog.Logger
	Cfg             *config.Config
	BacktestService *backtest.Service
	BacktestRepo    *backtest.Repository
	SyncService     *marketdata.SyncService
	Scheduler       *scheduler.Scheduler
	EventBus        *events.Bus
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg.Cfg,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.Cfg.DataDir,
			cfg.SyncService,
			cfg.Scheduler,
		),
	}

	s.setupMiddleware()
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		// Long write timeout keeps SSE connections alive.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(5 * time.Minute))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes(cfg Config) {
	backtestHandler := backtesthandlers.NewHandler(
		cfg.BacktestService,
		cfg.BacktestRepo,
		cfg.EventBus,
		cfg.Log,
	)

	s.router.Route("/api", func(r chi.Router) {
		backtestHandler.RegisterRoutes(r)

		r.Get("/health", s.systemHandlers.HandleHealth)
		r.Post("/sync", s.systemHandlers.HandleTriggerSync)
	})
}

// Start runs the server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}
