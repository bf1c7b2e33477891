// Package metrics provides Prometheus metrics for the playlet engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "playlets"

var (
	// TasksFinished counts tasks reaching a terminal status.
	TasksFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of tasks that reached a terminal status",
		},
		[]string{"status"},
	)

	// ActionsTotal counts action outcomes by type.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of executed actions by outcome",
		},
		[]string{"type", "status"},
	)

	// ActionDuration tracks how long executors take.
	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of action executions in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 3600},
		},
		[]string{"type"},
	)

	// TasksExecuting is the number of tasks holding an execution slot.
	TasksExecuting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_executing",
			Help:      "Number of tasks currently executing",
		},
	)

	// QueueDepth is the number of tasks waiting for a slot.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of tasks queued for execution",
		},
	)
)

var registerOnce sync.Once

// Register adds all collectors to reg. Subsequent calls are no-ops.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			TasksFinished,
			ActionsTotal,
			ActionDuration,
			TasksExecuting,
			QueueDepth,
		)
	})
}
