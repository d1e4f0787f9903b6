package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	if reg.TasksSubmitted == nil || reg.TasksCompleted == nil || reg.TasksFailed == nil {
		t.Fatal("pool counters not initialized")
	}
	if reg.PoolSize == nil || reg.PoolActive == nil || reg.PoolPending == nil {
		t.Fatal("pool gauges not initialized")
	}
	if reg.PipelineRuns == nil || reg.TasksScheduled == nil {
		t.Fatal("pipeline/scheduler metrics not initialized")
	}

	// Metrics must accept label values without panicking.
	reg.TasksSubmitted.WithLabelValues("test", "high").Inc()
	reg.TasksRejected.WithLabelValues("test", "queue_limit").Inc()
	reg.PoolSize.WithLabelValues("test").Set(4)
	reg.TaskExecutionDuration.WithLabelValues("test").Observe(0.25)
	reg.PipelineRuns.WithLabelValues("greet", "ok").Inc()
}

func TestDefaultRegistryInitialized(t *testing.T) {
	if DefaultRegistry == nil {
		t.Fatal("default registry not initialized")
	}
	DefaultRegistry.TasksFired.WithLabelValues("test").Inc()
}
