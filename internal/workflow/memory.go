package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// InMemoryStore is a map-backed Store for tests and local development.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[uuid.UUID]domain.Workflow
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{workflows: make(map[uuid.UUID]domain.Workflow)}
}

func (s *InMemoryStore) Create(_ context.Context, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = *wf
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, userID, id uuid.UUID) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok || (userID != uuid.Nil && wf.UserID != userID) {
		return nil, ErrNotFound
	}
	cp := wf
	return &cp, nil
}

func (s *InMemoryStore) List(_ context.Context, userID uuid.UUID, offset, limit int) ([]domain.Workflow, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []domain.Workflow
	for _, wf := range s.workflows {
		if userID == uuid.Nil || wf.UserID == userID {
			all = append(all, wf)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := int64(len(all))
	return page(all, offset, limit), total, nil
}

func (s *InMemoryStore) Update(_ context.Context, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; !ok {
		return ErrNotFound
	}
	s.workflows[wf.ID] = *wf
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok || (userID != uuid.Nil && wf.UserID != userID) {
		return ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

// InMemoryExecutionStore is a map-backed ExecutionStore for tests.
type InMemoryExecutionStore struct {
	mu         sync.RWMutex
	executions map[uuid.UUID]domain.WorkflowExecution
	nextOldID  int64
}

// NewInMemoryExecutionStore creates an empty InMemoryExecutionStore.
func NewInMemoryExecutionStore() *InMemoryExecutionStore {
	return &InMemoryExecutionStore{executions: make(map[uuid.UUID]domain.WorkflowExecution)}
}

func (s *InMemoryExecutionStore) Create(_ context.Context, ex *domain.WorkflowExecution) error {
	if err := domain.ValidateExecutionStatus(ex.Status); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOldID++
	ex.OldID = s.nextOldID
	s.executions[ex.ID] = *ex
	return nil
}

func (s *InMemoryExecutionStore) Get(_ context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := ex
	return &cp, nil
}

func (s *InMemoryExecutionStore) Update(_ context.Context, ex *domain.WorkflowExecution) error {
	if err := domain.ValidateExecutionStatus(ex.Status); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[ex.ID]; !ok {
		return ErrNotFound
	}
	s.executions[ex.ID] = *ex
	return nil
}

func (s *InMemoryExecutionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[id]; !ok {
		return ErrNotFound
	}
	delete(s.executions, id)
	return nil
}

func (s *InMemoryExecutionStore) List(_ context.Context, filter ExecutionFilter) ([]domain.WorkflowExecution, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []domain.WorkflowExecution
	for _, ex := range s.executions {
		if filter.UserID != uuid.Nil && ex.UserID != filter.UserID {
			continue
		}
		if filter.WorkflowID != uuid.Nil && ex.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && ex.Status != filter.Status {
			continue
		}
		all = append(all, ex)
	}

	SortExecutions(all, filter.SortBy, filter.SortOrder)
	total := int64(len(all))
	return page(all, filter.Offset, filter.Limit), total, nil
}

// SortExecutions orders executions by the given column and direction.
// Shared between the in-memory store and the dashboard task view.
func SortExecutions(list []domain.WorkflowExecution, sortBy, sortOrder string) {
	asc := sortOrder == "asc"
	less := func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) }
	switch sortBy {
	case "status":
		less = func(i, j int) bool { return list[i].Status < list[j].Status }
	case "duration_ms":
		less = func(i, j int) bool { return list[i].DurationMS < list[j].DurationMS }
	}
	sort.SliceStable(list, func(i, j int) bool {
		if asc {
			return less(i, j)
		}
		return less(j, i)
	})
}

func page[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// Compile-time checks.
var (
	_ Store          = (*InMemoryStore)(nil)
	_ ExecutionStore = (*InMemoryExecutionStore)(nil)
)
