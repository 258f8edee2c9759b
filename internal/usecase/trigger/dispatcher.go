package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"relaybot/internal/domain"
)

// Dispatcher routes inbound request paths to their configured triggers
// and runs matched actions asynchronously.
type Dispatcher struct {
	byPath   map[string][]domain.Trigger
	executor *Executor
	logger   *slog.Logger
}

// NewDispatcher indexes the enabled triggers by watch path. Disabled
// triggers are dropped at construction.
func NewDispatcher(triggers []domain.Trigger, executor *Executor, logger *slog.Logger) *Dispatcher {
	byPath := make(map[string][]domain.Trigger)
	for _, t := range triggers {
		if !t.Enabled {
			logger.Debug("trigger disabled", "trigger", t.Name, "path", t.WatchPath)
			continue
		}
		byPath[t.WatchPath] = append(byPath[t.WatchPath], t)
	}
	return &Dispatcher{byPath: byPath, executor: executor, logger: logger}
}

// Match reports whether any enabled trigger watches path.
func (d *Dispatcher) Match(path string) bool {
	return len(d.byPath[path]) > 0
}

// Dispatch runs every trigger watching path against the captured
// request. Each trigger runs in its own goroutine; action failures are
// logged and never propagate to the webhook response, which has already
// been sent.
func (d *Dispatcher) Dispatch(ctx context.Context, path string, rc domain.RequestContext) {
	for _, t := range d.byPath[path] {
		t := t
		dispatchID := ulid.Make().String()
		go func() {
			start := time.Now()
			log := d.logger.With("trigger", t.Name, "dispatch_id", dispatchID)
			log.Info("trigger fired", "path", path, "actions", len(t.Actions))

			for i, action := range t.Actions {
				if err := d.executor.Execute(ctx, action, rc); err != nil {
					log.Error("trigger action failed", "action", i, "type", action.Kind, "error", err)
				}
			}
			log.Info("trigger finished", "elapsed", time.Since(start))
		}()
	}
}
