package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// InMemoryScheduleStore is a map-backed ScheduleStore for tests and local
// development.
type InMemoryScheduleStore struct {
	mu        sync.RWMutex
	schedules map[uuid.UUID]domain.WorkflowSchedule
}

// NewInMemoryScheduleStore creates an empty InMemoryScheduleStore.
func NewInMemoryScheduleStore() *InMemoryScheduleStore {
	return &InMemoryScheduleStore{schedules: make(map[uuid.UUID]domain.WorkflowSchedule)}
}

func (s *InMemoryScheduleStore) Create(_ context.Context, sched *domain.WorkflowSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sched.ID] = *sched
	return nil
}

func (s *InMemoryScheduleStore) Get(_ context.Context, id uuid.UUID) (*domain.WorkflowSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := sched
	return &cp, nil
}

func (s *InMemoryScheduleStore) List(_ context.Context, userID uuid.UUID) ([]domain.WorkflowSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WorkflowSchedule
	for _, sched := range s.schedules {
		if userID == uuid.Nil || sched.UserID == userID {
			out = append(out, sched)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryScheduleStore) Update(_ context.Context, sched *domain.WorkflowSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[sched.ID]; !ok {
		return ErrNotFound
	}
	s.schedules[sched.ID] = *sched
	return nil
}

func (s *InMemoryScheduleStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *InMemoryScheduleStore) GetDue(_ context.Context, now time.Time) ([]domain.WorkflowSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []domain.WorkflowSchedule
	for _, sched := range s.schedules {
		if !sched.Enabled || !sched.ScheduleType.SelfFiring() {
			continue
		}
		if sched.NextRunAt != nil && !sched.NextRunAt.After(now) {
			due = append(due, sched)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRunAt.Before(*due[j].NextRunAt)
	})
	return due, nil
}

func (s *InMemoryScheduleStore) AdvanceNextRun(_ context.Context, id uuid.UUID, nextRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return ErrNotFound
	}
	sched.NextRunAt = nextRunAt
	sched.UpdatedAt = time.Now().UTC()
	s.schedules[id] = sched
	return nil
}

func (s *InMemoryScheduleStore) RecordRun(_ context.Context, id uuid.UUID, status domain.ExecutionStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	sched.LastRunAt = &now
	sched.LastStatus = status
	sched.LastError = errMsg
	sched.UpdatedAt = now
	s.schedules[id] = sched
	return nil
}

// InMemoryQueueStore is a map-backed QueueStore for tests.
type InMemoryQueueStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]domain.ScheduleQueueItem
}

// NewInMemoryQueueStore creates an empty InMemoryQueueStore.
func NewInMemoryQueueStore() *InMemoryQueueStore {
	return &InMemoryQueueStore{items: make(map[uuid.UUID]domain.ScheduleQueueItem)}
}

func (q *InMemoryQueueStore) Enqueue(_ context.Context, item *domain.ScheduleQueueItem) error {
	if err := domain.ValidateExecutionStatus(item.Status); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[item.ID] = *item
	return nil
}

func (q *InMemoryQueueStore) Claim(_ context.Context, workerID string, limit int) ([]domain.ScheduleQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []domain.ScheduleQueueItem
	for _, item := range q.items {
		if item.Status == domain.ExecutionPending {
			pending = append(pending, item)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})
	if limit > 0 && limit < len(pending) {
		pending = pending[:limit]
	}

	now := time.Now().UTC()
	for i := range pending {
		pending[i].Status = domain.ExecutionRunning
		pending[i].ClaimedBy = workerID
		pending[i].ClaimedAt = &now
		q.items[pending[i].ID] = pending[i]
	}
	return pending, nil
}

func (q *InMemoryQueueStore) Complete(_ context.Context, id uuid.UUID, status domain.ExecutionStatus) error {
	if err := domain.ValidateExecutionStatus(status); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	item.Status = status
	item.CompletedAt = &now
	q.items[id] = item
	return nil
}

func (q *InMemoryQueueStore) PendingCount(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, item := range q.items {
		if item.Status == domain.ExecutionPending {
			n++
		}
	}
	return n, nil
}

// InMemoryHistoryStore is a map-backed HistoryStore for tests.
type InMemoryHistoryStore struct {
	mu         sync.Mutex
	executions []domain.ScheduleExecution
	stats      map[uuid.UUID]domain.ScheduleStatistics
}

// NewInMemoryHistoryStore creates an empty InMemoryHistoryStore.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{stats: make(map[uuid.UUID]domain.ScheduleStatistics)}
}

func (h *InMemoryHistoryStore) RecordExecution(_ context.Context, ex *domain.ScheduleExecution) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.executions = append(h.executions, *ex)
	return nil
}

func (h *InMemoryHistoryStore) ListExecutions(_ context.Context, scheduleID uuid.UUID, limit int) ([]domain.ScheduleExecution, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.ScheduleExecution
	for i := len(h.executions) - 1; i >= 0; i-- {
		if h.executions[i].ScheduleID == scheduleID {
			out = append(out, h.executions[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (h *InMemoryHistoryStore) Statistics(_ context.Context, scheduleID uuid.UUID) (*domain.ScheduleStatistics, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats, ok := h.stats[scheduleID]
	if !ok {
		return nil, nil
	}
	cp := stats
	return &cp, nil
}

func (h *InMemoryHistoryStore) UpsertStatistics(_ context.Context, stats *domain.ScheduleStatistics) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats[stats.ScheduleID] = *stats
	return nil
}

func (h *InMemoryHistoryStore) CleanupExecutions(_ context.Context, before time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.executions[:0]
	var removed int64
	for _, ex := range h.executions {
		if ex.StartedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, ex)
	}
	h.executions = kept
	return removed, nil
}

// Compile-time checks.
var (
	_ ScheduleStore = (*InMemoryScheduleStore)(nil)
	_ QueueStore    = (*InMemoryQueueStore)(nil)
	_ HistoryStore  = (*InMemoryHistoryStore)(nil)
)
