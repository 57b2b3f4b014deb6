package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

type fakeSubmitter struct {
	fired []uuid.UUID
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, _, workflowID uuid.UUID, _ string, _ []byte) (*domain.WorkflowExecution, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.fired = append(f.fired, workflowID)
	return &domain.WorkflowExecution{ID: uuid.New(), WorkflowID: workflowID}, nil
}

func testPoller(sub WorkflowSubmitter) (*Poller, *InMemoryScheduleStore, *InMemoryQueueStore, *InMemoryHistoryStore) {
	schedules := NewInMemoryScheduleStore()
	queue := NewInMemoryQueueStore()
	history := NewInMemoryHistoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPoller(schedules, queue, history, sub, nil, logger, Config{WorkerID: "test-worker"})
	return p, schedules, queue, history
}

func seedSchedule(t *testing.T, store *InMemoryScheduleStore, priority int, nextRunAt time.Time) *domain.WorkflowSchedule {
	t.Helper()
	s := &domain.WorkflowSchedule{
		ID:           uuid.New(),
		WorkflowID:   uuid.New(),
		UserID:       uuid.New(),
		Name:         "hourly-sync",
		ScheduleType: domain.ScheduleInterval,
		Interval:     time.Hour,
		Priority:     priority,
		Enabled:      true,
		NextRunAt:    &nextRunAt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.Create(context.Background(), s); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	return s
}

func TestClaimOrdering(t *testing.T) {
	ctx := context.Background()
	queue := NewInMemoryQueueStore()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// Same priority, different enqueue times, plus one high-priority straggler.
	low1 := &domain.ScheduleQueueItem{ID: uuid.New(), Priority: 1, Status: domain.ExecutionPending, EnqueuedAt: base}
	low2 := &domain.ScheduleQueueItem{ID: uuid.New(), Priority: 1, Status: domain.ExecutionPending, EnqueuedAt: base.Add(time.Minute)}
	high := &domain.ScheduleQueueItem{ID: uuid.New(), Priority: 9, Status: domain.ExecutionPending, EnqueuedAt: base.Add(2 * time.Minute)}
	for _, item := range []*domain.ScheduleQueueItem{low2, high, low1} {
		if err := queue.Enqueue(ctx, item); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	claimed, err := queue.Claim(ctx, "w1", 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d items, want 2", len(claimed))
	}
	if claimed[0].ID != high.ID {
		t.Error("highest priority not claimed first")
	}
	if claimed[1].ID != low1.ID {
		t.Error("within a priority, oldest enqueued_at must win")
	}
	if claimed[0].ClaimedBy != "w1" || claimed[0].ClaimedAt == nil {
		t.Error("claim must record worker and time")
	}

	// Remaining item on a second claim.
	rest, _ := queue.Claim(ctx, "w2", 10)
	if len(rest) != 1 || rest[0].ID != low2.ID {
		t.Errorf("second claim = %d items", len(rest))
	}
}

func TestTickFiresDueSchedules(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{}
	p, schedules, queue, history := testPoller(sub)

	now := time.Now().UTC()
	due := seedSchedule(t, schedules, 5, now.Add(-time.Minute))
	seedSchedule(t, schedules, 5, now.Add(time.Hour)) // not due

	p.tick(ctx)

	if len(sub.fired) != 1 || sub.fired[0] != due.WorkflowID {
		t.Fatalf("fired = %v, want exactly the due workflow", sub.fired)
	}

	// next_run_at advanced past now so the next tick does not re-enqueue.
	got, _ := schedules.Get(ctx, due.ID)
	if got.NextRunAt == nil || !got.NextRunAt.After(now) {
		t.Error("next_run_at not advanced after enqueue")
	}
	if got.LastStatus != domain.ExecutionCompleted {
		t.Errorf("last status = %s, want completed", got.LastStatus)
	}

	pending, _ := queue.PendingCount(ctx)
	if pending != 0 {
		t.Errorf("pending after drain = %d, want 0", pending)
	}

	execs, _ := history.ListExecutions(ctx, due.ID, 10)
	if len(execs) != 1 || execs[0].Status != domain.ExecutionCompleted {
		t.Fatalf("history = %+v", execs)
	}
	if execs[0].ExecutionID == uuid.Nil {
		t.Error("workflow execution id not recorded")
	}
}

func TestTickRecordsFailedFire(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{err: context.DeadlineExceeded}
	p, schedules, _, history := testPoller(sub)

	due := seedSchedule(t, schedules, 1, time.Now().UTC().Add(-time.Second))
	p.tick(ctx)

	got, _ := schedules.Get(ctx, due.ID)
	if got.LastStatus != domain.ExecutionFailed || got.LastError == "" {
		t.Errorf("last run = %s/%q, want failed with error", got.LastStatus, got.LastError)
	}

	execs, _ := history.ListExecutions(ctx, due.ID, 10)
	if len(execs) != 1 || execs[0].Status != domain.ExecutionFailed {
		t.Fatalf("history = %+v", execs)
	}
}

func TestOnceScheduleFiresExactlyOnce(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{}
	p, schedules, _, _ := testPoller(sub)

	runAt := time.Now().UTC().Add(-time.Minute)
	once := &domain.WorkflowSchedule{
		ID:           uuid.New(),
		WorkflowID:   uuid.New(),
		UserID:       uuid.New(),
		Name:         "one-shot-report",
		ScheduleType: domain.ScheduleOnce,
		RunAt:        &runAt,
		Enabled:      true,
		NextRunAt:    &runAt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := schedules.Create(ctx, once); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}

	p.tick(ctx)
	p.tick(ctx)

	if len(sub.fired) != 1 {
		t.Fatalf("fired %d times across two ticks, want 1", len(sub.fired))
	}
	got, _ := schedules.Get(ctx, once.ID)
	if got.NextRunAt != nil {
		t.Errorf("next_run_at = %v after firing, want cleared", got.NextRunAt)
	}
	if got.LastStatus != domain.ExecutionCompleted {
		t.Errorf("last status = %s, want completed", got.LastStatus)
	}
}

func TestRecurringScheduleSurvivesFire(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{}
	p, schedules, _, _ := testPoller(sub)

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	recurring := &domain.WorkflowSchedule{
		ID:             uuid.New(),
		WorkflowID:     uuid.New(),
		UserID:         uuid.New(),
		Name:           "hourly-report",
		ScheduleType:   domain.ScheduleCron,
		CronExpression: "0 * * * *",
		Enabled:        true,
		NextRunAt:      &past,
		CreatedAt:      now,
	}
	if err := schedules.Create(ctx, recurring); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}

	p.tick(ctx)

	if len(sub.fired) != 1 {
		t.Fatalf("fired %d times, want 1", len(sub.fired))
	}
	got, _ := schedules.Get(ctx, recurring.ID)
	if got.NextRunAt == nil {
		t.Fatal("next_run_at cleared on a recurring schedule")
	}
	if !got.NextRunAt.After(now) {
		t.Errorf("next_run_at = %v, want after %v", got.NextRunAt, now)
	}

	// Make it due again; it must keep firing.
	due := now.Add(-time.Second)
	if err := schedules.AdvanceNextRun(ctx, recurring.ID, &due); err != nil {
		t.Fatalf("advance: %v", err)
	}
	p.tick(ctx)
	if len(sub.fired) != 2 {
		t.Fatalf("fired %d times after second due window, want 2", len(sub.fired))
	}
}

func TestStatisticsRollup(t *testing.T) {
	ctx := context.Background()
	p, _, _, history := testPoller(&fakeSubmitter{})
	scheduleID := uuid.New()

	durations := []int64{100, 200, 600}
	for i, d := range durations {
		status := domain.ExecutionCompleted
		if i == 2 {
			status = domain.ExecutionFailed
		}
		started := time.Now().UTC()
		p.rollupStatistics(ctx, scheduleID, &domain.ScheduleExecution{
			ScheduleID: scheduleID,
			Status:     status,
			StartedAt:  started,
			DurationMS: d,
		})
	}

	stats, err := history.Statistics(ctx, scheduleID)
	if err != nil || stats == nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalRuns != 3 || stats.SuccessRuns != 2 || stats.FailedRuns != 1 {
		t.Errorf("counts = %d/%d/%d", stats.TotalRuns, stats.SuccessRuns, stats.FailedRuns)
	}
	if stats.AvgDurationMS != 300 {
		t.Errorf("avg duration = %v, want 300", stats.AvgDurationMS)
	}
}

func TestNextRun(t *testing.T) {
	p, _, _, _ := testPoller(&fakeSubmitter{})
	now := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)

	cronSched := &domain.WorkflowSchedule{ID: uuid.New(), ScheduleType: domain.ScheduleCron, CronExpression: "0 * * * *"}
	next := p.NextRun(cronSched, now)
	if next == nil || !next.Equal(time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("cron next = %v", next)
	}

	interval := &domain.WorkflowSchedule{ID: uuid.New(), ScheduleType: domain.ScheduleInterval, Interval: 15 * time.Minute}
	next = p.NextRun(interval, now)
	if next == nil || !next.Equal(now.Add(15*time.Minute)) {
		t.Errorf("interval next = %v", next)
	}

	once := &domain.WorkflowSchedule{ID: uuid.New(), ScheduleType: domain.ScheduleOnce}
	if next = p.NextRun(once, now); next != nil {
		t.Errorf("once schedules must not recur, got %v", next)
	}
}

func TestValidateCronExpression(t *testing.T) {
	if err := ValidateCronExpression("*/5 * * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCronExpression("not a cron"); err == nil {
		t.Error("invalid expression accepted")
	}
}

func TestHealthScore(t *testing.T) {
	if got := HealthScore(nil, nil); got != 100 {
		t.Errorf("no stats: score = %v, want 100", got)
	}
	if got := HealthScore(&domain.ScheduleStatistics{}, nil); got != 100 {
		t.Errorf("zero runs: score = %v, want 100", got)
	}

	// All successful and fast.
	perfect := &domain.ScheduleStatistics{TotalRuns: 10, SuccessRuns: 10, AvgDurationMS: 500}
	if got := HealthScore(perfect, nil); got != 100 {
		t.Errorf("perfect history: score = %v, want 100", got)
	}

	// Half failing, slow, with an active failure streak.
	bad := &domain.ScheduleStatistics{TotalRuns: 10, SuccessRuns: 5, FailedRuns: 5, AvgDurationMS: 12000}
	recent := []domain.ScheduleExecution{
		{Status: domain.ExecutionFailed},
		{Status: domain.ExecutionFailed},
		{Status: domain.ExecutionFailed},
	}
	got := HealthScore(bad, recent)
	if got != 20 {
		t.Errorf("degraded history: score = %v, want 20", got)
	}
	if got < 0 || got > 100 {
		t.Errorf("score %v out of [0,100]", got)
	}
}

func TestRecoverMissedSkipsStale(t *testing.T) {
	ctx := context.Background()
	p, schedules, queue, _ := testPoller(&fakeSubmitter{})

	now := time.Now().UTC()
	stale := seedSchedule(t, schedules, 1, now.Add(-3*time.Hour))
	fresh := seedSchedule(t, schedules, 1, now.Add(-10*time.Minute))

	p.recoverMissed(ctx)

	got, _ := schedules.Get(ctx, stale.ID)
	if got.LastStatus != domain.ExecutionCancelled {
		t.Errorf("stale schedule status = %s, want cancelled", got.LastStatus)
	}
	if got.NextRunAt == nil || !got.NextRunAt.After(now) {
		t.Error("stale schedule not advanced past now")
	}

	// The fresh one stays due and fires on the next tick.
	kept, _ := schedules.Get(ctx, fresh.ID)
	if kept.LastStatus == domain.ExecutionCancelled {
		t.Error("schedule inside the window must not be skipped")
	}
	p.tick(ctx)
	pending, _ := queue.PendingCount(ctx)
	if pending != 0 {
		t.Errorf("pending after tick = %d", pending)
	}
}

func TestScoreAllSnapshotsEverySchedule(t *testing.T) {
	ctx := context.Background()
	schedules := NewInMemoryScheduleStore()
	history := NewInMemoryHistoryStore()

	now := time.Now().UTC()
	fresh := seedSchedule(t, schedules, 1, now.Add(time.Hour))
	degraded := seedSchedule(t, schedules, 1, now.Add(time.Hour))

	_ = history.UpsertStatistics(ctx, &domain.ScheduleStatistics{
		ScheduleID: degraded.ID, TotalRuns: 4, SuccessRuns: 2, FailedRuns: 2, AvgDurationMS: 12000,
	})
	for i := 0; i < 3; i++ {
		_ = history.RecordExecution(ctx, &domain.ScheduleExecution{
			ID: uuid.New(), ScheduleID: degraded.ID, Status: domain.ExecutionFailed, StartedAt: now,
		})
	}

	snaps, err := ScoreAll(ctx, schedules, history, now)
	if err != nil {
		t.Fatalf("score all: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}

	byID := map[uuid.UUID]domain.HealthSnapshot{}
	for _, s := range snaps {
		if s.EntityType != domain.HealthEntitySchedule {
			t.Errorf("entity type = %s", s.EntityType)
		}
		byID[s.EntityID] = s
	}
	// Never ran: full score.
	if got := byID[fresh.ID].Score; got != 100 {
		t.Errorf("fresh score = %v, want 100", got)
	}
	// Half failing, slow, three-failure streak: only the success-rate share
	// remains.
	if got := byID[degraded.ID].Score; got != 20 {
		t.Errorf("degraded score = %v, want 20", got)
	}
}
