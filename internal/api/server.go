// Package api exposes the HTTP surface of the service: webhook ingestion
// for Telegram and Discord, and the JSON statistics API with rate-limiting
// middleware.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/pulsebot/internal/commands"
	"github.com/edgard/pulsebot/internal/config"
	"github.com/edgard/pulsebot/internal/database"
	"github.com/edgard/pulsebot/internal/ratelimit"
	"github.com/edgard/pulsebot/internal/stats"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server hosts the HTTP API and the webhook endpoints.
type Server struct {
	logger     *slog.Logger
	cfg        *config.Config
	stats      *stats.Service
	store      database.Store
	processor  *commands.Processor
	apiLimiter *ratelimit.Limiter
	tgClient   *tgbot.Bot // nil when no Telegram token is configured
	httpServer *http.Server
}

// NewServer wires the router and returns a Server ready to run. tgClient
// may be nil; inbound Telegram webhooks are still tracked, but command
// replies are skipped.
func NewServer(
	logger *slog.Logger,
	cfg *config.Config,
	statsService *stats.Service,
	store database.Store,
	processor *commands.Processor,
	apiLimiter *ratelimit.Limiter,
	tgClient *tgbot.Bot,
) *Server {
	s := &Server{
		logger:     logger.With("component", "api"),
		cfg:        cfg,
		stats:      statsService,
		store:      store,
		processor:  processor,
		apiLimiter: apiLimiter,
		tgClient:   tgClient,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimitByIP)
		r.Get("/health", s.handleHealth)
		r.Get("/overview", s.handleOverview)
		r.Get("/docs", s.handleDocs)
		r.Get("/stats/{platform}", s.handlePlatformStats)
		r.Get("/leaderboard/{platform}", s.handleLeaderboard)
		r.Get("/leaderboard/{platform}/{period}", s.handleLeaderboard)
		r.Get("/user/{platform}/{userID}", s.handleUserStats)
	})

	r.Post("/telegram/webhook", s.handleTelegramWebhook)
	r.Post("/discord/webhook", s.handleDiscordWebhook)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped.")
	return nil
}
