// Package server exposes the operator HTTP API: health, stats, suggestion
// review, and breaker control.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oddsmesh/crossarb/internal/server/handler"
	"github.com/oddsmesh/crossarb/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port int
}

// Handlers aggregates the endpoints the server registers. Nil handlers are
// skipped so partial modes can still serve health.
type Handlers struct {
	Health      *handler.HealthHandler
	Stats       *handler.StatsHandler
	Suggestions *handler.SuggestionHandler
	Breaker     *handler.BreakerHandler
	Markets     *handler.MarketHandler
}

// Server is the operator-facing HTTP API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and wires the logging middleware.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /healthz", handlers.Health.Healthz)
	}
	if handlers.Stats != nil {
		mux.HandleFunc("GET /api/stats", handlers.Stats.Stats)
	}
	if handlers.Suggestions != nil {
		mux.HandleFunc("GET /api/suggestions", handlers.Suggestions.List)
		mux.HandleFunc("POST /api/suggestions/{id}/approve", handlers.Suggestions.Approve)
		mux.HandleFunc("POST /api/suggestions/{id}/reject", handlers.Suggestions.Reject)
	}
	if handlers.Markets != nil {
		mux.HandleFunc("GET /api/markets/token/{token}", handlers.Markets.GetByToken)
		mux.HandleFunc("GET /api/markets/{venue}/{id}", handlers.Markets.Get)
		mux.HandleFunc("DELETE /api/markets/{venue}/{id}", handlers.Markets.Invalidate)
	}
	if handlers.Breaker != nil {
		mux.HandleFunc("POST /api/breaker/reset", handlers.Breaker.Reset)
		mux.HandleFunc("POST /api/pairs/{pair}/acknowledge", handlers.Breaker.AcknowledgePair)
	}

	h := middleware.Logging(logger)(mux)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With(slog.String("component", "server")),
	}
}

// Start blocks serving requests until an error or shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
