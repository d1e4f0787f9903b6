package pool

import (
	"container/heap"
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	tferrors "github.com/threadforge/threadforge/pkg/common/errors"
	"github.com/threadforge/threadforge/pkg/metrics"
	"github.com/threadforge/threadforge/pkg/task"
)

// Priority orders tasks in the ready queue. Higher values are dequeued
// first; within one level tasks run in submission order.
type Priority int

const (
	// PriorityLow tasks run only when no Normal or High task is pending.
	PriorityLow Priority = iota

	// PriorityNormal is the default.
	PriorityNormal

	// PriorityHigh tasks strictly precede all others.
	PriorityHigh
)

// PriorityFromInt maps the boundary encoding {0,1,2} to a Priority.
// Unrecognized values map to Normal.
func PriorityFromInt(p int) Priority {
	switch p {
	case 2:
		return PriorityHigh
	case 0:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// String returns the lowercase priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Config holds configuration options for creating a pool.
type Config struct {
	// Workers is the number of worker goroutines. Values below 1 are
	// clamped to 1.
	Workers int

	// QueueLimit is the admission-control threshold on pending tasks.
	// 0 means unbounded.
	QueueLimit int

	// Logger receives pool lifecycle and task events. The zero value
	// disables logging.
	Logger zerolog.Logger

	// Metrics, when non-nil, receives pool gauges and task counters
	// labeled with Name.
	Metrics *metrics.Registry

	// Name labels log events and metrics for this pool.
	Name string
}

// Pool is a fixed set of workers draining one shared priority queue.
type Pool struct {
	// mu protects the queue, the id map, the counters, and the
	// stop/pause flags, keeping queue and map mutation atomic with
	// respect to each other.
	mu      sync.Mutex
	cond    *sync.Cond
	queue   jobQueue
	jobs    map[string]*job
	stop    bool
	paused  bool
	pending int
	active  int
	seq     uint64

	queueLimit int
	workers    int
	wg         *sync.WaitGroup

	log  zerolog.Logger
	mtr  *metrics.Registry
	name string
}

// New creates a pool with the given number of workers and defaults for
// everything else.
func New(workers int) *Pool {
	return NewWithConfig(Config{Workers: workers})
}

// NewWithConfig creates a pool with the specified configuration and starts
// its workers.
func NewWithConfig(cfg Config) *Pool {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	mtr := cfg.Metrics
	if mtr == nil {
		mtr = metrics.DefaultRegistry
	}

	p := &Pool{
		jobs:       make(map[string]*job),
		queueLimit: cfg.QueueLimit,
		wg:         &sync.WaitGroup{},
		log:        cfg.Logger,
		mtr:        mtr,
		name:       name,
	}
	p.cond = sync.NewCond(&p.mu)

	p.mu.Lock()
	p.startWorkers(workers)
	p.mu.Unlock()

	return p
}

// startWorkers spawns n workers against the current queue. Callers hold mu.
func (p *Pool) startWorkers(n int) {
	p.workers = n
	p.wg = &sync.WaitGroup{}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.worker(p.wg, i)
	}
	p.gaugeSize(n)
}

// Submit enqueues a task and blocks until its result is written.
//
// The submission is rejected, with no task created, when the pool is
// stopped, when a non-zero queue limit is already met by the pending count,
// or when the id is already pending or active. If ctx is cancelled while
// waiting, the task is cancelled through the same path as Cancel and the
// resulting Cancelled result is returned.
func (p *Pool) Submit(ctx context.Context, id string, priority Priority, run task.Runnable, progress task.ProgressFunc) (task.Result, error) {
	if run == nil {
		return task.Result{}, tferrors.NewValidationError("pool", "runnable", nil, "cannot be nil")
	}
	if id == "" {
		return task.Result{}, tferrors.NewValidationError("pool", "id", id, "cannot be empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	j := newJob(id, priority, run, progress)

	p.mu.Lock()
	// workers == 0 means the pool was shut down and not yet restarted via
	// SetConcurrency; admitting a task then would strand the submitter.
	if p.stop || p.workers == 0 {
		p.mu.Unlock()
		p.countRejection("stopped")
		return task.Result{}, tferrors.ErrStopped
	}
	if p.queueLimit > 0 && p.pending >= p.queueLimit {
		p.mu.Unlock()
		p.countRejection("queue_limit")
		return task.Result{}, tferrors.ErrQueueLimit
	}
	if _, exists := p.jobs[id]; exists {
		p.mu.Unlock()
		p.countRejection("duplicate_id")
		return task.Result{}, tferrors.ErrDuplicateID
	}

	j.seq = p.seq
	p.seq++
	heap.Push(&p.queue, j)
	p.jobs[id] = j
	p.pending++
	pending := p.pending
	p.cond.Signal()
	p.mu.Unlock()

	p.log.Debug().Str("pool", p.name).Str("task", id).
		Str("priority", priority.String()).Msg("task enqueued")
	p.mtr.TasksSubmitted.WithLabelValues(p.name, priority.String()).Inc()
	p.mtr.PoolPending.WithLabelValues(p.name).Set(float64(pending))

	select {
	case <-j.done:
	case <-ctx.Done():
		p.Cancel(id)
		<-j.done
	}
	return j.finalResult(), nil
}

// Cancel requests cancellation of the task with the given id.
//
// If the task has not finished yet, a Cancelled result is synthesized
// immediately, which guarantees a still-queued task never executes its work
// body. A task already executing is only advised: its body must poll the
// cancellation predicate. Returns false when no task with that id is
// tracked.
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	j, ok := p.jobs[id]
	p.mu.Unlock()
	if !ok {
		return false
	}

	j.cancelled.Store(true)
	if j.finish(task.Cancelled("")) {
		p.log.Debug().Str("pool", p.name).Str("task", id).Msg("task cancelled")
		p.mtr.TasksCancelled.WithLabelValues(p.name).Inc()
	}
	p.cond.Broadcast()
	return true
}

// Pause stops workers from dequeuing new work. Tasks already executing run
// to completion. Submission and cancellation are unaffected.
func (p *Pool) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
	p.log.Debug().Str("pool", p.name).Msg("pool paused")
}

// Resume re-enables dequeuing and wakes all workers.
func (p *Pool) Resume() {
	p.mu.Lock()
	p.paused = false
	p.cond.Broadcast()
	p.mu.Unlock()
	p.log.Debug().Str("pool", p.name).Msg("pool resumed")
}

// IsPaused reports whether dequeuing is currently paused.
func (p *Pool) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// SetConcurrency resizes the worker set to n (minimum 1).
//
// The pool must be quiescent: zero pending and zero active tasks. Otherwise
// ErrNotQuiescent is returned and nothing changes. On success all current
// workers are signalled and joined, then n new workers are started against
// the empty queue.
func (p *Pool) SetConcurrency(n int) error {
	if n < 1 {
		n = 1
	}

	p.mu.Lock()
	if p.pending > 0 || p.active > 0 {
		p.mu.Unlock()
		return tferrors.ErrNotQuiescent
	}
	p.stop = true
	p.paused = false
	wg := p.wg
	p.cond.Broadcast()
	p.mu.Unlock()

	wg.Wait()

	p.mu.Lock()
	p.stop = false
	p.startWorkers(n)
	p.mu.Unlock()

	p.log.Info().Str("pool", p.name).Int("workers", n).Msg("pool resized")
	return nil
}

// SetQueueLimit configures the admission-control threshold. 0 means
// unbounded.
func (p *Pool) SetQueueLimit(n int) {
	if n < 0 {
		n = 0
	}
	p.mu.Lock()
	p.queueLimit = n
	p.mu.Unlock()
}

// QueueLimit returns the configured admission-control threshold.
func (p *Pool) QueueLimit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queueLimit
}

// ThreadCount returns the current number of workers.
func (p *Pool) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// PendingCount returns the number of tasks waiting in the queue.
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// ActiveCount returns the number of tasks currently executing.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Shutdown signals stop, wakes all workers, joins them, and clears all pool
// state. Workers drain the queue before exiting so every blocked submitter
// receives a result. After Shutdown the pool holds no workers; a later
// SetConcurrency starts a fresh set. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.stop = true
	p.paused = false
	wg := p.wg
	p.cond.Broadcast()
	p.mu.Unlock()

	wg.Wait()

	p.mu.Lock()
	p.queue = nil
	p.jobs = make(map[string]*job)
	p.pending = 0
	p.active = 0
	p.stop = false
	p.paused = false
	p.workers = 0
	p.wg = &sync.WaitGroup{}
	p.mu.Unlock()

	p.gaugeSize(0)
	p.log.Info().Str("pool", p.name).Msg("pool shut down")
}

func (p *Pool) countRejection(reason string) {
	p.log.Warn().Str("pool", p.name).Str("reason", reason).Msg("submission rejected")
	p.mtr.TasksRejected.WithLabelValues(p.name, reason).Inc()
}

func (p *Pool) gaugeSize(n int) {
	p.mtr.PoolSize.WithLabelValues(p.name).Set(float64(n))
}

// workerName labels worker log events.
func workerName(i int) string {
	return "worker-" + strconv.Itoa(i)
}
