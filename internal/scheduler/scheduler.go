// Package scheduler implements the workflow schedule queue.
// A poll loop enqueues due schedules as priority-ordered queue items; workers
// claim items (highest priority first, oldest first within a priority), fire
// workflow executions, and record per-schedule execution history and rollups.
//
// Only time-based schedule types (cron, interval, once) are self-firing.
// Event, conditional, batch, and calendar schedules are persisted but fired
// through the API trigger endpoint.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/cartrita/cartrita/internal/domain"
)

// ErrNotFound is returned when a schedule or queue item does not exist.
var ErrNotFound = errors.New("not found")

// ScheduleStore is the persistence interface for workflow schedules.
type ScheduleStore interface {
	Create(ctx context.Context, s *domain.WorkflowSchedule) error
	Get(ctx context.Context, id uuid.UUID) (*domain.WorkflowSchedule, error)
	List(ctx context.Context, userID uuid.UUID) ([]domain.WorkflowSchedule, error)
	Update(ctx context.Context, s *domain.WorkflowSchedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	// GetDue returns enabled, self-firing schedules with next_run_at <= now.
	GetDue(ctx context.Context, now time.Time) ([]domain.WorkflowSchedule, error)
	// AdvanceNextRun moves next_run_at forward. A nil nextRunAt clears it,
	// which retires the schedule from GetDue; once schedules end this way.
	AdvanceNextRun(ctx context.Context, id uuid.UUID, nextRunAt *time.Time) error
	// RecordRun stores the last run outcome. It never touches next_run_at.
	RecordRun(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, errMsg string) error
}

// QueueStore is the persistence interface for the schedule queue.
type QueueStore interface {
	Enqueue(ctx context.Context, item *domain.ScheduleQueueItem) error
	// Claim atomically marks up to limit pending items as running, ordered by
	// priority DESC, enqueued_at ASC.
	Claim(ctx context.Context, workerID string, limit int) ([]domain.ScheduleQueueItem, error)
	Complete(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus) error
	PendingCount(ctx context.Context) (int64, error)
}

// HistoryStore persists schedule execution history and statistics rollups.
type HistoryStore interface {
	RecordExecution(ctx context.Context, ex *domain.ScheduleExecution) error
	ListExecutions(ctx context.Context, scheduleID uuid.UUID, limit int) ([]domain.ScheduleExecution, error)
	Statistics(ctx context.Context, scheduleID uuid.UUID) (*domain.ScheduleStatistics, error)
	UpsertStatistics(ctx context.Context, stats *domain.ScheduleStatistics) error
	CleanupExecutions(ctx context.Context, before time.Time) (int64, error)
}

// WorkflowSubmitter fires workflow executions for claimed queue items.
// Implemented by workflow.Engine.
type WorkflowSubmitter interface {
	Submit(ctx context.Context, userID, workflowID uuid.UUID, triggeredBy string, input []byte) (*domain.WorkflowExecution, error)
}

// Config configures the poll loop.
type Config struct {
	PollInterval    time.Duration // Default: 15s.
	MaxConcurrent   int           // Default: 4.
	MissedRunWindow time.Duration // Default: 1h. Older due schedules are skipped.
	WorkerID        string        // Default: random.
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return 15 * time.Second
}

func (c Config) maxConcurrent() int {
	if c.MaxConcurrent > 0 {
		return c.MaxConcurrent
	}
	return 4
}

func (c Config) missedRunWindow() time.Duration {
	if c.MissedRunWindow > 0 {
		return c.MissedRunWindow
	}
	return time.Hour
}

// Poller drives the schedule queue.
type Poller struct {
	schedules ScheduleStore
	queue     QueueStore
	history   HistoryStore
	submitter WorkflowSubmitter
	metrics   *Metrics
	logger    *slog.Logger
	config    Config
	workerID  string
	parser    cron.Parser
}

// NewPoller creates a Poller.
func NewPoller(
	schedules ScheduleStore,
	queue QueueStore,
	history HistoryStore,
	submitter WorkflowSubmitter,
	metrics *Metrics,
	logger *slog.Logger,
	cfg Config,
) *Poller {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "worker-" + newRunID()
	}
	return &Poller{
		schedules: schedules,
		queue:     queue,
		history:   history,
		submitter: submitter,
		metrics:   metrics,
		logger:    logger,
		config:    cfg,
		workerID:  workerID,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Start begins the poll loop. Returns a cancel function.
func (p *Poller) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		p.logger.InfoContext(ctx, "schedule poller started",
			slog.String("worker_id", p.workerID),
			slog.String("poll_interval", p.config.pollInterval().String()),
		)

		p.recoverMissed(ctx)

		ticker := time.NewTicker(p.config.pollInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("schedule poller stopped")
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()

	return cancel
}

// tick runs one poll cycle: enqueue due schedules, then drain the queue.
func (p *Poller) tick(ctx context.Context) {
	start := time.Now()

	if err := p.enqueueDue(ctx, start.UTC()); err != nil {
		p.logger.ErrorContext(ctx, "enqueue pass failed", slog.String("error", err.Error()))
	}
	p.drain(ctx)

	if p.metrics != nil {
		p.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

// enqueueDue finds due schedules and turns each into a queue item.
func (p *Poller) enqueueDue(ctx context.Context, now time.Time) error {
	due, err := p.schedules.GetDue(ctx, now)
	if err != nil {
		return fmt.Errorf("polling due schedules: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	p.logger.InfoContext(ctx, "schedules due", slog.Int("count", len(due)))

	for i := range due {
		sched := &due[i]
		item := &domain.ScheduleQueueItem{
			ID:         uuid.New(),
			ScheduleID: sched.ID,
			WorkflowID: sched.WorkflowID,
			UserID:     sched.UserID,
			Priority:   sched.Priority,
			Status:     domain.ExecutionPending,
			EnqueuedAt: now,
		}
		if err := p.queue.Enqueue(ctx, item); err != nil {
			p.logger.ErrorContext(ctx, "enqueue failed",
				slog.String("schedule_id", sched.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		// Advance next_run_at immediately so the schedule is not re-enqueued
		// on the next tick while its item is still pending. NextRun returns
		// nil for once schedules, which retires them here.
		next := p.NextRun(sched, now)
		if err := p.schedules.AdvanceNextRun(ctx, sched.ID, next); err != nil {
			p.logger.ErrorContext(ctx, "advancing next run failed",
				slog.String("schedule_id", sched.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		if p.metrics != nil {
			p.metrics.Enqueued.Inc()
		}
	}
	return nil
}

// drain claims and fires queued items up to the concurrency limit.
func (p *Poller) drain(ctx context.Context) {
	items, err := p.queue.Claim(ctx, p.workerID, p.config.maxConcurrent())
	if err != nil {
		p.logger.ErrorContext(ctx, "claim failed", slog.String("error", err.Error()))
		return
	}

	for i := range items {
		p.fire(ctx, &items[i])
	}
}

// fire submits the workflow execution for one claimed item and records history.
func (p *Poller) fire(ctx context.Context, item *domain.ScheduleQueueItem) {
	started := time.Now().UTC()
	runID := newRunID()

	p.logger.InfoContext(ctx, "firing schedule",
		slog.String("schedule_id", item.ScheduleID.String()),
		slog.String("queue_item_id", item.ID.String()),
		slog.String("run_id", runID),
	)

	ex, err := p.submitter.Submit(ctx, item.UserID, item.WorkflowID, "schedule", nil)
	completed := time.Now().UTC()

	sx := &domain.ScheduleExecution{
		ID:          uuid.New(),
		ScheduleID:  item.ScheduleID,
		Status:      domain.ExecutionCompleted,
		StartedAt:   started,
		CompletedAt: &completed,
		DurationMS:  completed.Sub(started).Milliseconds(),
	}

	if err != nil {
		sx.Status = domain.ExecutionFailed
		sx.Error = err.Error()
		p.logger.ErrorContext(ctx, "schedule fire failed",
			slog.String("schedule_id", item.ScheduleID.String()),
			slog.String("error", err.Error()),
		)
		if p.metrics != nil {
			p.metrics.FiresFailed.Inc()
		}
		_ = p.queue.Complete(ctx, item.ID, domain.ExecutionFailed)
		_ = p.schedules.RecordRun(ctx, item.ScheduleID, domain.ExecutionFailed, err.Error())
	} else {
		sx.ExecutionID = ex.ID
		if p.metrics != nil {
			p.metrics.FiresSucceeded.Inc()
		}
		_ = p.queue.Complete(ctx, item.ID, domain.ExecutionCompleted)
		_ = p.schedules.RecordRun(ctx, item.ScheduleID, domain.ExecutionCompleted, "")
	}

	if recErr := p.history.RecordExecution(ctx, sx); recErr != nil {
		p.logger.ErrorContext(ctx, "recording schedule execution failed",
			slog.String("schedule_id", item.ScheduleID.String()),
			slog.String("error", recErr.Error()),
		)
	}
	p.rollupStatistics(ctx, item.ScheduleID, sx)
}

// rollupStatistics folds one execution into the per-schedule rollup.
func (p *Poller) rollupStatistics(ctx context.Context, scheduleID uuid.UUID, sx *domain.ScheduleExecution) {
	stats, err := p.history.Statistics(ctx, scheduleID)
	if err != nil || stats == nil {
		stats = &domain.ScheduleStatistics{ScheduleID: scheduleID}
	}

	prevTotal := float64(stats.TotalRuns)
	stats.TotalRuns++
	if sx.Status == domain.ExecutionCompleted {
		stats.SuccessRuns++
	} else {
		stats.FailedRuns++
	}
	stats.AvgDurationMS = (stats.AvgDurationMS*prevTotal + float64(sx.DurationMS)) / float64(stats.TotalRuns)
	stats.LastRunAt = &sx.StartedAt
	stats.UpdatedAt = time.Now().UTC()

	if err := p.history.UpsertStatistics(ctx, stats); err != nil {
		p.logger.ErrorContext(ctx, "statistics rollup failed",
			slog.String("schedule_id", scheduleID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// recoverMissed handles due schedules left behind by a crash: those inside
// the missed-run window fire on the first tick, older ones skip ahead to the
// next valid slot.
func (p *Poller) recoverMissed(ctx context.Context) {
	now := time.Now().UTC()
	cutoff := now.Add(-p.config.missedRunWindow())

	due, err := p.schedules.GetDue(ctx, now)
	if err != nil {
		p.logger.ErrorContext(ctx, "missed-run recovery failed", slog.String("error", err.Error()))
		return
	}

	var skipped int
	for i := range due {
		sched := &due[i]
		if sched.NextRunAt != nil && sched.NextRunAt.Before(cutoff) {
			next := p.NextRun(sched, now)
			_ = p.schedules.AdvanceNextRun(ctx, sched.ID, next)
			_ = p.schedules.RecordRun(ctx, sched.ID, domain.ExecutionCancelled, "skipped: outside missed run window")
			if p.metrics != nil {
				p.metrics.Missed.Inc()
			}
			skipped++
		}
	}
	if skipped > 0 {
		p.logger.InfoContext(ctx, "skipped missed schedules", slog.Int("count", skipped))
	}
}

// NextRun computes the next firing time after now for a self-firing schedule.
// Returns nil for once schedules (they never fire again) and for externally
// fired types.
func (p *Poller) NextRun(s *domain.WorkflowSchedule, now time.Time) *time.Time {
	switch s.ScheduleType {
	case domain.ScheduleCron:
		sched, err := p.parser.Parse(s.CronExpression)
		if err != nil {
			p.logger.Error("invalid cron expression",
				slog.String("schedule_id", s.ID.String()),
				slog.String("expr", s.CronExpression),
			)
			next := now.Add(24 * time.Hour)
			return &next
		}
		next := sched.Next(now)
		return &next
	case domain.ScheduleInterval:
		if s.Interval <= 0 {
			return nil
		}
		next := now.Add(s.Interval)
		return &next
	default:
		return nil
	}
}

// ValidateCronExpression parses a 5-field cron expression.
// Exported for use by the HTTP API when creating/updating schedules.
func ValidateCronExpression(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

func newRunID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
