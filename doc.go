/*
Package threadforge provides an embeddable priority task engine with
cooperative cancellation, pause/resume, backpressure, and JSON pipeline
templates.

Task Execution (pkg):
  - pool: Priority worker pool with blocking submission
  - task: Descriptors, built-in workloads, and result serialization
  - registry: Named pipeline templates with payload binding
  - scheduler: Deferred and cron-based submission
  - engine: String-oriented embedding boundary tying it all together

Supporting (pkg):
  - history: SQLite audit log of completed submissions
  - metrics: Prometheus counters, gauges, and histograms

Example usage:

	import "github.com/threadforge/threadforge/pkg/engine"

	eng := engine.New(engine.Config{Workers: 4})
	defer eng.Shutdown()

	result, err := eng.Submit(ctx, "job-1", 2,
		`{"type":"HEAVY_LOOP","iterations":500000}`, "")
*/
package threadforge
