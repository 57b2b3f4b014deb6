package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the schedule poller.
type Metrics struct {
	Enqueued       prometheus.Counter
	FiresSucceeded prometheus.Counter
	FiresFailed    prometheus.Counter
	Missed         prometheus.Counter
	TickDuration   prometheus.Histogram
}

// NewMetrics creates and registers scheduler metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "scheduler",
			Name:      "enqueued_total",
			Help:      "Total due schedules placed on the queue.",
		}),
		FiresSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "scheduler",
			Name:      "fires_succeeded_total",
			Help:      "Total schedule firings that submitted a workflow execution.",
		}),
		FiresFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "scheduler",
			Name:      "fires_failed_total",
			Help:      "Total schedule firings whose workflow submission failed.",
		}),
		Missed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "scheduler",
			Name:      "missed_total",
			Help:      "Total schedules skipped because they were outside the missed run window.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cartrita",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of each poller tick (enqueue + drain cycle).",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}

	reg.MustRegister(
		m.Enqueued,
		m.FiresSucceeded,
		m.FiresFailed,
		m.Missed,
		m.TickDuration,
	)

	return m
}
