// Package maintenance runs the periodic housekeeping batch: archiving old
// workflow executions, cleaning up stale history, expiring sessions and
// tokens, and refreshing the performance views.
//
// Each task is isolated: a failing or panicking task is recorded as a failed
// result row and the batch continues with the remaining tasks.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Task statuses in result rows.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TaskFunc performs one maintenance task and returns a human-readable summary
// ("archived 412 rows").
type TaskFunc func(ctx context.Context) (message string, err error)

// TaskResult is one row of a batch run's outcome.
type TaskResult struct {
	Task     string        `json:"task"`
	Status   string        `json:"status"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

type task struct {
	name string
	fn   TaskFunc
}

// Runner executes registered maintenance tasks in order.
type Runner struct {
	tasks   []task
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(metrics *Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register adds a task. Tasks run in registration order.
func (r *Runner) Register(name string, fn TaskFunc) {
	r.tasks = append(r.tasks, task{name: name, fn: fn})
}

// RunAll executes every registered task and returns one result row per task.
// Errors and panics are captured into failed rows; RunAll itself never fails.
func (r *Runner) RunAll(ctx context.Context) []TaskResult {
	results := make([]TaskResult, 0, len(r.tasks))
	batchStart := r.now()

	for _, t := range r.tasks {
		results = append(results, r.runTask(ctx, t))
	}

	var failed int
	for _, res := range results {
		if res.Status == StatusFailed {
			failed++
		}
	}
	r.logger.InfoContext(ctx, "maintenance batch finished",
		slog.Int("tasks", len(results)),
		slog.Int("failed", failed),
		slog.String("duration", r.now().Sub(batchStart).String()),
	)
	if r.metrics != nil {
		r.metrics.BatchDuration.Observe(r.now().Sub(batchStart).Seconds())
	}
	return results
}

func (r *Runner) runTask(ctx context.Context, t task) TaskResult {
	started := r.now()
	var message string
	var err error

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("task panicked: %v", rec)
			}
		}()
		message, err = t.fn(ctx)
	}()

	res := TaskResult{
		Task:     t.name,
		Status:   StatusCompleted,
		Message:  message,
		Duration: r.now().Sub(started),
	}
	if err != nil {
		res.Status = StatusFailed
		res.Message = err.Error()
		r.logger.ErrorContext(ctx, "maintenance task failed",
			slog.String("task", t.name),
			slog.String("error", err.Error()),
		)
		if r.metrics != nil {
			r.metrics.TasksFailed.Inc()
		}
	} else {
		r.logger.InfoContext(ctx, "maintenance task completed",
			slog.String("task", t.name),
			slog.String("message", message),
			slog.String("duration", res.Duration.String()),
		)
		if r.metrics != nil {
			r.metrics.TasksSucceeded.Inc()
		}
	}
	return res
}
