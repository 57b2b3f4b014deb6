package agents

import (
	"context"
	"time"

	"github.com/cartrita/cartrita/internal/scheduler"
)

// SystemStatus is the dashboard's system overview.
type SystemStatus struct {
	Healthy       bool          `json:"healthy"`
	Uptime        time.Duration `json:"uptime_seconds"`
	AgentsTotal   int           `json:"agents_total"`
	AgentsActive  int           `json:"agents_active"`
	AgentsOffline int           `json:"agents_offline"`
	QueueDepth    int64         `json:"queue_depth"`
	Version       string        `json:"version"`
}

// StatusReporter assembles the system status from the registry and queue.
type StatusReporter struct {
	registry *Registry
	queue    scheduler.QueueStore
	version  string
	started  time.Time
}

// NewStatusReporter creates a StatusReporter. queue may be nil.
func NewStatusReporter(registry *Registry, queue scheduler.QueueStore, version string) *StatusReporter {
	return &StatusReporter{
		registry: registry,
		queue:    queue,
		version:  version,
		started:  time.Now().UTC(),
	}
}

// Status returns the current overview. The system reports healthy when at
// least one agent is not offline.
func (s *StatusReporter) Status(ctx context.Context) (*SystemStatus, error) {
	agents := s.registry.RoleCall(ctx)

	st := &SystemStatus{
		Uptime:      time.Since(s.started),
		AgentsTotal: len(agents),
		Version:     s.version,
	}
	for _, a := range agents {
		switch a.Status {
		case StatusOffline:
			st.AgentsOffline++
		case StatusActive:
			st.AgentsActive++
		}
	}
	st.Healthy = st.AgentsTotal > 0 && st.AgentsOffline < st.AgentsTotal

	if s.queue != nil {
		depth, err := s.queue.PendingCount(ctx)
		if err != nil {
			return nil, err
		}
		st.QueueDepth = depth
	}
	return st, nil
}
