package tasks

import (
	"context"
)

// newRateLimitCleanupTask creates the task that evicts stale entries from
// every registered rate limiter. Without it, limiter maps grow with one
// slice per key ever seen.
func newRateLimitCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "ratelimit_cleanup")

	return func(ctx context.Context) error {
		removed := 0
		for _, limiter := range deps.Limiters {
			removed += limiter.Cleanup()
		}

		log.DebugContext(ctx, "Rate limiter cleanup completed", "keys_removed", removed)
		return nil
	}
}
