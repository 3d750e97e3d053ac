// Package bot manages the service lifecycle: it runs the HTTP server and
// the task scheduler together and coordinates their shutdown.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/pulsebot/internal/api"
)

// Bot ties the long-running components together.
type Bot struct {
	logger    *slog.Logger
	server    *api.Server
	scheduler *Scheduler
}

// NewBot creates the orchestrator over an HTTP server and a scheduler.
func NewBot(logger *slog.Logger, server *api.Server, scheduler *Scheduler) *Bot {
	return &Bot{
		logger:    logger.With("component", "orchestrator"),
		server:    server,
		scheduler: scheduler,
	}
}

// Run starts all components and blocks until the context is cancelled or
// a component fails. Shutdown is graceful in both cases.
func (b *Bot) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.server.Run(gCtx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Orchestrator stopped gracefully.")
	return nil
}
