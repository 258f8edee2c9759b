// Package cronjob binds configured cron tasks to the scheduler.
package cronjob

import (
	"context"
	"log/slog"

	"relaybot/internal/domain"
	"relaybot/internal/usecase/scheduling"
)

// ActionRunner executes a task's action. Cron tasks run with an empty
// request context; their templates have no request to draw from.
type ActionRunner interface {
	Execute(ctx context.Context, action domain.Action, rc domain.RequestContext) error
}

// Register schedules every enabled task and returns the number
// registered. A task with an invalid schedule is logged and skipped;
// one bad entry never blocks the rest of the file.
func Register(tasks []domain.CronTask, scheduler *scheduling.Scheduler, runner ActionRunner, logger *slog.Logger) int {
	registered := 0
	for _, task := range tasks {
		if !task.Enabled {
			logger.Debug("cron task disabled", "task", task.Name)
			continue
		}
		if err := scheduling.Validate(task.Schedule); err != nil {
			logger.Warn("cron task has invalid schedule, skipping", "task", task.Name, "schedule", task.Schedule, "error", err)
			continue
		}

		action := task.Action
		err := scheduler.Add(task.Name, task.Schedule, func(ctx context.Context) error {
			return runner.Execute(ctx, action, domain.RequestContext{})
		})
		if err != nil {
			logger.Warn("cron task not scheduled", "task", task.Name, "error", err)
			continue
		}
		registered++
	}
	return registered
}
