// Package agents backs the agent-management dashboard: the agent registry
// (role call, capabilities, per-agent config), the tools catalog, the task
// view over workflow executions, and aggregated metrics.
package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when an agent or tool does not exist.
var ErrNotFound = errors.New("not found")

// Agent statuses.
const (
	StatusActive  = "active"
	StatusIdle    = "idle"
	StatusOffline = "offline"
)

// offlineAfter is how long an agent may go without a heartbeat before the
// role call reports it offline.
const offlineAfter = 2 * time.Minute

// Agent is one registered assistant agent.
type Agent struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Role         string         `json:"role"`
	Status       string         `json:"status"`
	Capabilities []string       `json:"capabilities"`
	Config       map[string]any `json:"config"`
	LastSeen     time.Time      `json:"last_seen"`
}

// Registry tracks agents and their configuration. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	now    func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*Agent),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register adds or replaces an agent. Status defaults to idle.
func (r *Registry) Register(a Agent) {
	if a.Status == "" {
		a.Status = StatusIdle
	}
	if a.Config == nil {
		a.Config = make(map[string]any)
	}
	a.LastSeen = r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID] = &a
}

// Heartbeat marks the agent alive with the given status.
func (r *Registry) Heartbeat(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: agent %q", ErrNotFound, id)
	}
	a.Status = status
	a.LastSeen = r.now()
	return nil
}

// RoleCall returns every agent sorted by name. Agents whose last heartbeat is
// older than the offline window report StatusOffline regardless of their
// stored status.
func (r *Registry) RoleCall(_ context.Context) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().Add(-offlineAfter)
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		cp := *a
		if cp.LastSeen.Before(cutoff) {
			cp.Status = StatusOffline
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Capabilities returns the union of all agents' capabilities mapped to the
// agent ids providing each.
func (r *Registry) Capabilities(_ context.Context) map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string][]string)
	for _, a := range r.agents {
		for _, c := range a.Capabilities {
			caps[c] = append(caps[c], a.ID)
		}
	}
	for c := range caps {
		sort.Strings(caps[c])
	}
	return caps
}

// Config returns a copy of the agent's configuration.
func (r *Registry) Config(_ context.Context, id string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: agent %q", ErrNotFound, id)
	}
	cp := make(map[string]any, len(a.Config))
	for k, v := range a.Config {
		cp[k] = v
	}
	return cp, nil
}

// SetConfig replaces the agent's configuration.
func (r *Registry) SetConfig(_ context.Context, id string, config map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("%w: agent %q", ErrNotFound, id)
	}
	cp := make(map[string]any, len(config))
	for k, v := range config {
		cp[k] = v
	}
	a.Config = cp
	return nil
}
