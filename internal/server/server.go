// Package server wires the operator HTTP API.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides which URL maps to which
// handler, which middleware guards which route, and how the listener stops.
// It owns no storage: main.go builds the store and services and hands them in,
// so the same services back both the Telegram bot and this API.
//
// The API is optional. main.go only constructs a Server when HTTP_ADDR is set.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/cutout-bot/internal/auth"
	"github.com/sakif/cutout-bot/internal/handler"
	"github.com/sakif/cutout-bot/internal/middleware"
)

// Config holds server configuration.
type Config struct {
	Addr         string // e.g. ":8080"
	SecureCookie bool   // set the Secure flag on the session cookie
}

// Deps are the services the routes call into.
type Deps struct {
	Stats     handler.StatsReporter
	Operators handler.OperatorLogin
	Health    handler.Pinger
	Tokens    *auth.TokenService
}

// Server is the operator HTTP API.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
}

// New builds the router. It does not start listening.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Stats == nil || deps.Operators == nil || deps.Health == nil || deps.Tokens == nil {
		return nil, errors.New("server: all dependencies are required")
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.setupRoutes(deps)
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                 → store ping (public)
// POST   /api/auth/login          → password → JWT (public)
// POST   /api/auth/logout         → clear cookie (public)
// GET    /api/stats/today         → RangeStats for today       [operator]
// GET    /api/stats/range?days=N  → RangeStats for N days      [operator]
// GET    /api/stats/conversion    → funnel ratios              [operator]
// GET    /api/plans               → active plan catalog        [operator]
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, so every later layer can log it
// 2. RealIP, extracts the client IP from proxy headers
// 3. Recoverer, turns a panic into a 500
// 4. Logger, logs each request with timing info
func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	health := handler.NewHealthHandler(deps.Health, s.logger)
	authHandler := handler.NewAuthHandler(deps.Operators, s.config.SecureCookie, s.logger)
	stats := handler.NewStatsHandler(deps.Stats, s.logger)

	s.router.Get("/healthz", health.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireOperator(deps.Tokens))
			r.Get("/stats/today", stats.HandleToday)
			r.Get("/stats/range", stats.HandleRange)
			r.Get("/stats/conversion", stats.HandleConversion)
			r.Get("/plans", stats.HandlePlans)
		})
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Give in-flight requests up to 15 seconds to finish
//
// Signal handling lives in main.go, which cancels ctx; the bot loop watches
// the same ctx, so one Ctrl-C stops both.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("operator API listening", slog.String("addr", s.config.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("operator API shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("operator API stopped gracefully")
		return nil
	}
}
