package agents

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds per-agent Prometheus metrics.
type Metrics struct {
	TasksProcessed *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers agent metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "agents",
			Name:      "tasks_processed_total",
			Help:      "Tasks processed per agent and outcome.",
		}, []string{"agent_id", "status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartrita",
			Subsystem: "agents",
			Name:      "task_duration_seconds",
			Help:      "Task processing duration per agent.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"agent_id"}),
	}

	reg.MustRegister(m.TasksProcessed, m.TaskDuration)
	return m
}

// AgentSummary is the aggregated view of one agent's activity.
type AgentSummary struct {
	AgentID        string  `json:"agent_id"`
	TasksCompleted float64 `json:"tasks_completed"`
	TasksFailed    float64 `json:"tasks_failed"`
	AvgDurationSec float64 `json:"avg_duration_seconds"`
}

// Exporter renders the metrics registry for the dashboard.
type Exporter struct {
	reg *prometheus.Registry
}

// NewExporter creates an Exporter over the registry.
func NewExporter(reg *prometheus.Registry) *Exporter {
	return &Exporter{reg: reg}
}

// Summary aggregates the gathered metric families into per-agent rows.
// agentID filters to one agent; empty returns all.
func (e *Exporter) Summary(agentID string) ([]AgentSummary, error) {
	families, err := e.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	byAgent := make(map[string]*AgentSummary)
	get := func(id string) *AgentSummary {
		s, ok := byAgent[id]
		if !ok {
			s = &AgentSummary{AgentID: id}
			byAgent[id] = s
		}
		return s
	}

	for _, mf := range families {
		switch mf.GetName() {
		case "cartrita_agents_tasks_processed_total":
			for _, m := range mf.GetMetric() {
				id, status := labelValues(m, "agent_id", "status")
				if agentID != "" && id != agentID {
					continue
				}
				switch status {
				case "completed":
					get(id).TasksCompleted += m.GetCounter().GetValue()
				case "failed":
					get(id).TasksFailed += m.GetCounter().GetValue()
				}
			}
		case "cartrita_agents_task_duration_seconds":
			for _, m := range mf.GetMetric() {
				id, _ := labelValues(m, "agent_id", "")
				if agentID != "" && id != agentID {
					continue
				}
				h := m.GetHistogram()
				if h.GetSampleCount() > 0 {
					get(id).AvgDurationSec = h.GetSampleSum() / float64(h.GetSampleCount())
				}
			}
		}
	}

	out := make([]AgentSummary, 0, len(byAgent))
	for _, s := range byAgent {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// Export renders every gathered metric family as JSON for the dashboard's
// metrics export endpoint.
func (e *Exporter) Export() ([]byte, error) {
	families, err := e.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	type sample struct {
		Labels map[string]string `json:"labels,omitempty"`
		Value  float64           `json:"value"`
	}
	type family struct {
		Name    string   `json:"name"`
		Help    string   `json:"help,omitempty"`
		Type    string   `json:"type"`
		Samples []sample `json:"samples"`
	}

	out := make([]family, 0, len(families))
	for _, mf := range families {
		f := family{
			Name: mf.GetName(),
			Help: mf.GetHelp(),
			Type: mf.GetType().String(),
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			f.Samples = append(f.Samples, sample{Labels: labels, Value: sampleValue(m)})
		}
		out = append(out, f)
	}
	return json.MarshalIndent(out, "", "  ")
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return m.GetHistogram().GetSampleSum()
	case m.GetSummary() != nil:
		return m.GetSummary().GetSampleSum()
	default:
		return m.GetUntyped().GetValue()
	}
}

func labelValues(m *dto.Metric, a, b string) (string, string) {
	var va, vb string
	for _, lp := range m.GetLabel() {
		switch lp.GetName() {
		case a:
			va = lp.GetValue()
		case b:
			vb = lp.GetValue()
		}
	}
	return va, vb
}
