package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/threadforge/threadforge/pkg/history"
	"github.com/threadforge/threadforge/pkg/metrics"
	"github.com/threadforge/threadforge/pkg/pool"
	"github.com/threadforge/threadforge/pkg/registry"
	"github.com/threadforge/threadforge/pkg/task"
)

// ProgressSink receives throttled progress updates for running tasks.
type ProgressSink func(taskID string, v float64)

// Config holds engine configuration. The zero value yields a single-worker
// engine with no progress sink, no pipeline store, and no history.
type Config struct {
	// Workers is the number of pool workers. Values below one are
	// clamped to one.
	Workers int
	// QueueLimit caps queued submissions. Zero means unlimited.
	QueueLimit int
	// ProgressSink, when set, receives progress updates for every
	// running task, rate-limited per task.
	ProgressSink ProgressSink
	// ProgressInterval is the minimum spacing between progress emissions
	// per task. Defaults to pool.DefaultProgressInterval.
	ProgressInterval time.Duration
	// PipelineStore, when set, backs the pipeline registry.
	PipelineStore registry.Store
	// History, when set, receives a record of every completed
	// submission. The engine does not own it; close it after Shutdown.
	History *history.Store
	Logger  zerolog.Logger
	Metrics *metrics.Registry
	// Name labels the engine's pool in logs and metrics.
	Name string
}

// Engine is an embeddable task execution engine. Safe for concurrent use.
type Engine struct {
	pool     *pool.Pool
	registry *registry.Registry
	history  *history.Store
	sink     ProgressSink
	interval time.Duration
	log      zerolog.Logger
}

// New returns a running engine. Call Shutdown when done.
func New(cfg Config) *Engine {
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = pool.DefaultProgressInterval
	}

	log := cfg.Logger.With().Str("component", "engine").Logger()
	p := pool.NewWithConfig(pool.Config{
		Workers:    cfg.Workers,
		QueueLimit: cfg.QueueLimit,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
		Name:       cfg.Name,
	})
	r := registry.NewWithConfig(registry.Config{
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
		Store:   cfg.PipelineStore,
	})

	return &Engine{
		pool:     p,
		registry: r,
		history:  cfg.History,
		sink:     cfg.ProgressSink,
		interval: interval,
		log:      log,
	}
}

// Pool exposes the underlying pool for advanced wiring such as schedulers.
func (e *Engine) Pool() *pool.Pool { return e.pool }

// Registry exposes the pipeline registry, e.g. for a definition watcher.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Submit parses taskData into a task descriptor, builds the matching
// runnable, and executes it at the given priority. If the descriptor type
// names a registered pipeline, the pipeline is instantiated against
// payload; otherwise the type selects a built-in workload and payload is
// ignored.
//
// Submit blocks until the task finishes and returns its serialized result.
// Priorities map as 0=low, 2=high, anything else normal.
func (e *Engine) Submit(ctx context.Context, id string, priority int, taskData, payload string) (string, error) {
	d, err := task.Parse(taskData)
	if err != nil {
		return "", err
	}

	var run task.Runnable
	if e.registry.Has(d.Type) {
		run, err = e.registry.CreateTask(d.Type, payload)
		if err != nil {
			return "", err
		}
	} else {
		run = task.NewRunnable(d)
	}

	var sink task.ProgressFunc
	if e.sink != nil {
		taskID := id
		sink = pool.ThrottledProgress(func(v float64) {
			e.sink(taskID, v)
		}, e.interval)
	}

	pri := pool.PriorityFromInt(priority)
	start := time.Now()
	result, err := e.pool.Submit(ctx, id, pri, run, sink)
	if err != nil {
		return "", err
	}

	e.record(id, pri, result, time.Since(start))
	return result.Serialize(), nil
}

// Cancel requests cancellation of a queued or running task.
func (e *Engine) Cancel(id string) bool { return e.pool.Cancel(id) }

// Pause stops workers from picking up queued tasks. Running tasks finish.
func (e *Engine) Pause() { e.pool.Pause() }

// Resume reverses Pause.
func (e *Engine) Resume() { e.pool.Resume() }

// IsPaused reports whether the engine is paused.
func (e *Engine) IsPaused() bool { return e.pool.IsPaused() }

// SetConcurrency resizes the worker set. The engine must be idle.
func (e *Engine) SetConcurrency(n int) error { return e.pool.SetConcurrency(n) }

// SetQueueLimit adjusts the queued-submission cap. Zero means unlimited.
func (e *Engine) SetQueueLimit(n int) { e.pool.SetQueueLimit(n) }

// QueueLimit returns the current queued-submission cap.
func (e *Engine) QueueLimit() int { return e.pool.QueueLimit() }

// ThreadCount returns the number of workers.
func (e *Engine) ThreadCount() int { return e.pool.ThreadCount() }

// PendingCount returns the number of queued tasks.
func (e *Engine) PendingCount() int { return e.pool.PendingCount() }

// ActiveCount returns the number of tasks currently executing.
func (e *Engine) ActiveCount() int { return e.pool.ActiveCount() }

// RegisterPipeline registers a pipeline definition, making its name
// routable through Submit.
func (e *Engine) RegisterPipeline(name, definitionJSON string) error {
	return e.registry.Register(name, definitionJSON)
}

// UnregisterPipeline removes a pipeline definition.
func (e *Engine) UnregisterPipeline(name string) {
	e.registry.Unregister(name)
}

// Pipelines lists registered pipeline names.
func (e *Engine) Pipelines() []string { return e.registry.Names() }

// LoadPipelines replaces local pipeline definitions with the configured
// store's contents. A no-op without a store.
func (e *Engine) LoadPipelines(ctx context.Context) error {
	return e.registry.LoadFromStore(ctx)
}

// Shutdown drains queued work and stops all workers. The configured
// history store, if any, remains open.
func (e *Engine) Shutdown() { e.pool.Shutdown() }

// record writes a completed submission to the history log without blocking
// the submitter.
func (e *Engine) record(id string, pri pool.Priority, result task.Result, took time.Duration) {
	if e.history == nil {
		return
	}
	entry := history.Entry{
		ID:       id,
		Status:   string(result.Status),
		Value:    result.Value,
		Message:  result.Message,
		Priority: pri.String(),
		Duration: took,
		At:       time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := e.history.Record(ctx, entry); err != nil {
			e.log.Warn().Err(err).Str("id", entry.ID).Msg("history record failed")
		}
	}()
}
