package tasks

import (
	"context"
	"fmt"
	"time"
)

// newMessageRetentionTask creates the task that prunes channel log rows
// older than the configured retention period.
func newMessageRetentionTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "message_retention")
	retention := time.Duration(deps.Config.Scheduler.RetentionDays) * 24 * time.Hour

	return func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-retention)

		pruned, err := deps.Store.PruneChannelMessages(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Channel log pruning failed", "error", err)
			return fmt.Errorf("channel log pruning failed: %w", err)
		}

		log.InfoContext(ctx, "Channel log pruned", "rows_removed", pruned, "cutoff", cutoff)
		return nil
	}
}
