// Package tasks implements the scheduled background jobs: rate-limiter
// cleanup, database maintenance, and channel log retention.
package tasks

import (
	"log/slog"

	"github.com/edgard/pulsebot/internal/config"
	"github.com/edgard/pulsebot/internal/database"
	"github.com/edgard/pulsebot/internal/ratelimit"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Config   *config.Config
	Limiters []*ratelimit.Limiter
}
