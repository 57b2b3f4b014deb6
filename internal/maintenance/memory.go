package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cartrita/cartrita/internal/domain"
)

// InMemoryArchiver is a slice-backed ExecutionArchiver for tests and local
// development. The postgres implementation does the same move with an
// INSERT ... SELECT / DELETE pair in one transaction.
type InMemoryArchiver struct {
	mu       sync.Mutex
	live     []domain.WorkflowExecution
	archived []domain.WorkflowExecution
}

// NewInMemoryArchiver creates an empty InMemoryArchiver.
func NewInMemoryArchiver() *InMemoryArchiver {
	return &InMemoryArchiver{}
}

// Seed adds executions to the live table.
func (a *InMemoryArchiver) Seed(execs ...domain.WorkflowExecution) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live = append(a.live, execs...)
}

// LiveCount returns the number of rows still in the live table.
func (a *InMemoryArchiver) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

// ArchivedCount returns the number of rows moved to the archive.
func (a *InMemoryArchiver) ArchivedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.archived)
}

// ArchiveExecutions moves terminal executions started before the cutoff into
// the archive. Rows still pending or running are never archived.
func (a *InMemoryArchiver) ArchiveExecutions(_ context.Context, before time.Time) (int64, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.live[:0]
	var moved int64
	for _, ex := range a.live {
		if ex.Status.Terminal() && ex.StartedAt != nil && ex.StartedAt.Before(before) {
			a.archived = append(a.archived, ex)
			moved++
			continue
		}
		kept = append(kept, ex)
	}
	a.live = kept
	return moved, fmt.Sprintf("%d rows", moved), nil
}

// InMemorySnapshotStore is a slice-backed SnapshotStore for tests and local
// development.
type InMemorySnapshotStore struct {
	mu    sync.Mutex
	snaps []domain.HealthSnapshot
}

// NewInMemorySnapshotStore creates an empty InMemorySnapshotStore.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{}
}

func (s *InMemorySnapshotStore) RecordHealthSnapshots(_ context.Context, snaps []domain.HealthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snaps...)
	return nil
}

// Snapshots returns everything recorded so far.
func (s *InMemorySnapshotStore) Snapshots() []domain.HealthSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.HealthSnapshot, len(s.snaps))
	copy(out, s.snaps)
	return out
}

var (
	_ ExecutionArchiver = (*InMemoryArchiver)(nil)
	_ SnapshotStore     = (*InMemorySnapshotStore)(nil)
)
