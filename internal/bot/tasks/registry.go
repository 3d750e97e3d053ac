package tasks

import (
	"context"
)

// ScheduledTaskFunc is the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for
// cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns the map of all registered scheduled tasks.
// The keys match the task names used in the scheduler config section.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	taskMap := map[string]ScheduledTaskFunc{
		"ratelimit_cleanup": newRateLimitCleanupTask(deps),
		"sql_maintenance":   newSQLMaintenanceTask(deps),
		"message_retention": newMessageRetentionTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(taskMap))
	return taskMap
}
