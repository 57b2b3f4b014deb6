package maintenance

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the maintenance batch.
type Metrics struct {
	TasksSucceeded prometheus.Counter
	TasksFailed    prometheus.Counter
	BatchDuration  prometheus.Histogram
}

// NewMetrics creates and registers maintenance metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		TasksSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "maintenance",
			Name:      "tasks_succeeded_total",
			Help:      "Total maintenance tasks that completed.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "maintenance",
			Name:      "tasks_failed_total",
			Help:      "Total maintenance tasks that failed or panicked.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cartrita",
			Subsystem: "maintenance",
			Name:      "batch_duration_seconds",
			Help:      "Duration of each full maintenance batch.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}

	reg.MustRegister(m.TasksSucceeded, m.TasksFailed, m.BatchDuration)
	return m
}
