// Package metrics provides Prometheus instrumentation for threadforge components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for threadforge components.
type Registry struct {
	// Worker Pool Metrics
	TasksSubmitted        *prometheus.CounterVec
	TasksCompleted        *prometheus.CounterVec
	TasksFailed           *prometheus.CounterVec
	TasksCancelled        *prometheus.CounterVec
	TasksRejected         *prometheus.CounterVec
	TaskExecutionDuration *prometheus.HistogramVec
	PoolSize              *prometheus.GaugeVec
	PoolActive            *prometheus.GaugeVec
	PoolPending           *prometheus.GaugeVec

	// Pipeline Metrics
	PipelineRuns  *prometheus.CounterVec
	PipelineSteps *prometheus.CounterVec

	// Scheduler Metrics
	TasksScheduled *prometheus.CounterVec
	TasksFired     *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by threadforge components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		TasksSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadforge",
				Subsystem: "pool",
				Name:      "tasks_submitted_total",
				Help:      "Total number of tasks admitted to the pool",
			},
			[]string{"pool_name", "priority"},
		),

		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadforge",
				Subsystem: "pool",
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks completed successfully",
			},
			[]string{"pool_name"},
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadforge",
				Subsystem: "pool",
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks that finished with an error",
			},
			[]string{"pool_name"},
		),

		TasksCancelled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadforge",
				Subsystem: "pool",
				Name:      "tasks_cancelled_total",
				Help:      "Total number of tasks that finished cancelled",
			},
			[]string{"pool_name"},
		),

		TasksRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadforge",
				Subsystem: "pool",
				Name:      "tasks_rejected_total",
				Help:      "Total number of submissions rejected by admission control",
			},
			[]string{"pool_name", "reason"},
		),

		TaskExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "threadforge",
				Subsystem: "pool",
				Name:      "task_duration_seconds",
				Help:      "Time spent executing tasks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool_name"},
		),

		PoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "threadforge",
				Subsystem: "pool",
				Name:      "size",
				Help:      "Current number of worker threads",
			},
			[]string{"pool_name"},
		),

		PoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "threadforge",
				Subsystem: "pool",
				Name:      "active_tasks",
				Help:      "Number of tasks currently executing",
			},
			[]string{"pool_name"},
		),

		PoolPending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "threadforge",
				Subsystem: "pool",
				Name:      "pending_tasks",
				Help:      "Number of tasks waiting in the priority queue",
			},
			[]string{"pool_name"},
		),

		PipelineRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadforge",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of pipeline executions",
			},
			[]string{"pipeline_name", "status"},
		),

		PipelineSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadforge",
				Subsystem: "pipeline",
				Name:      "steps_total",
				Help:      "Total number of pipeline steps executed",
			},
			[]string{"pipeline_name", "step_type"},
		),

		TasksScheduled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadforge",
				Subsystem: "scheduler",
				Name:      "tasks_scheduled_total",
				Help:      "Total number of deferred tasks scheduled",
			},
			[]string{"scheduler_name"},
		),

		TasksFired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "threadforge",
				Subsystem: "scheduler",
				Name:      "tasks_fired_total",
				Help:      "Total number of deferred tasks submitted to the pool",
			},
			[]string{"scheduler_name"},
		),
	}
}
