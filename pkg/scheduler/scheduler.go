package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	tferrors "github.com/threadforge/threadforge/pkg/common/errors"
	"github.com/threadforge/threadforge/pkg/common/validation"
	"github.com/threadforge/threadforge/pkg/metrics"
	"github.com/threadforge/threadforge/pkg/pool"
	"github.com/threadforge/threadforge/pkg/task"
)

const moduleName = "scheduler"

// defaultTickInterval bounds scheduling latency: a due entry fires within
// one tick of its run time.
const defaultTickInterval = 50 * time.Millisecond

const defaultMaxEntries = 10000

// Entry describes one scheduled submission.
type Entry struct {
	ID       string
	Priority pool.Priority
	RunAt    time.Time
	Cron     string // empty for one-shot entries
	Created  time.Time
}

// Config holds scheduler configuration. Pool is required.
type Config struct {
	Pool *pool.Pool
	// Location is the timezone cron expressions evaluate in. Defaults to
	// time.Local.
	Location *time.Location
	// TickInterval is how often due entries are checked. Defaults to 50ms.
	TickInterval time.Duration
	// MaxEntries caps the number of pending entries. Defaults to 10000.
	MaxEntries int
	// OnResult, when set, observes the outcome of every fired submission.
	OnResult func(id string, result task.Result, err error)
	Logger   zerolog.Logger
	Metrics  *metrics.Registry
	// Name labels this scheduler in metrics. Defaults to "default".
	Name string
}

type entry struct {
	id       string
	priority pool.Priority
	run      task.Runnable
	runAt    time.Time
	cronExpr string
	schedule cron.Schedule
	created  time.Time
}

// Scheduler defers pool submissions. Safe for concurrent use.
type Scheduler struct {
	pool         *pool.Pool
	location     *time.Location
	tickInterval time.Duration
	maxEntries   int
	cronParser   cron.Parser
	onResult     func(id string, result task.Result, err error)
	log          zerolog.Logger
	mtr          *metrics.Registry
	name         string

	mu      sync.RWMutex
	entries map[string]*entry
	done    chan struct{}
	running bool
}

// New returns a stopped scheduler over the given pool. Call Start to begin
// firing entries.
func New(p *pool.Pool) *Scheduler {
	return NewWithConfig(Config{Pool: p})
}

// NewWithConfig returns a stopped scheduler with custom configuration.
func NewWithConfig(cfg Config) *Scheduler {
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	mtr := cfg.Metrics
	if mtr == nil {
		mtr = metrics.DefaultRegistry
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}

	return &Scheduler{
		pool:         cfg.Pool,
		location:     location,
		tickInterval: tickInterval,
		maxEntries:   maxEntries,
		cronParser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		onResult:     cfg.OnResult,
		log:          cfg.Logger.With().Str("component", "scheduler").Str("scheduler", name).Logger(),
		mtr:          mtr,
		name:         name,
		entries:      make(map[string]*entry),
	}
}

// Schedule registers a one-shot submission at runAt. Entries already due
// fire on the next tick.
func (s *Scheduler) Schedule(id string, priority pool.Priority, run task.Runnable, runAt time.Time) error {
	if runAt.IsZero() {
		return tferrors.NewValidationError(moduleName, "runAt", runAt, "cannot be zero")
	}
	return s.add(&entry{id: id, priority: priority, run: run, runAt: runAt})
}

// ScheduleAfter registers a one-shot submission after delay.
func (s *Scheduler) ScheduleAfter(id string, priority pool.Priority, run task.Runnable, delay time.Duration) error {
	if delay < 0 {
		return tferrors.NewValidationError(moduleName, "delay", delay, "cannot be negative")
	}
	return s.add(&entry{id: id, priority: priority, run: run, runAt: time.Now().Add(delay)})
}

// ScheduleCron registers a recurring submission on a standard five-field
// cron expression.
func (s *Scheduler) ScheduleCron(id string, priority pool.Priority, cronExpr string, run task.Runnable) error {
	if err := validation.ValidateNotEmpty(moduleName, "cron", cronExpr); err != nil {
		return err
	}
	schedule, err := s.cronParser.Parse(cronExpr)
	if err != nil {
		return tferrors.NewValidationError(moduleName, "cron", cronExpr, err.Error())
	}
	return s.add(&entry{
		id:       id,
		priority: priority,
		run:      run,
		runAt:    schedule.Next(time.Now().In(s.location)),
		cronExpr: cronExpr,
		schedule: schedule,
	})
}

func (s *Scheduler) add(e *entry) error {
	if err := validation.ValidateNotEmpty(moduleName, "id", e.id); err != nil {
		return err
	}
	if e.run == nil {
		return tferrors.NewValidationError(moduleName, "runnable", nil, "cannot be nil")
	}
	e.created = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[e.id]; exists {
		return tferrors.ErrDuplicateID
	}
	if len(s.entries) >= s.maxEntries {
		return tferrors.NewValidationError(moduleName, "entries", len(s.entries), "entry limit reached")
	}
	s.entries[e.id] = e
	s.mtr.TasksScheduled.WithLabelValues(s.name).Inc()
	return nil
}

// Cancel removes a pending entry. It does not affect submissions already
// fired into the pool.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; exists {
		delete(s.entries, id)
		return true
	}
	return false
}

// CancelAll drops every pending entry.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// List returns pending entries ordered by run time.
func (s *Scheduler) List() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Entry{
			ID:       e.id,
			Priority: e.priority,
			RunAt:    e.runAt,
			Cron:     e.cronExpr,
			Created:  e.created,
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].RunAt.Before(out[j].RunAt)
	})
	return out
}

// Start begins the tick loop. Starting a running scheduler is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return tferrors.NewValidationError(moduleName, "state", "running", "already started")
	}
	s.running = true
	s.done = make(chan struct{})
	go s.run(s.done)
	s.log.Debug().Msg("scheduler started")
	return nil
}

// Stop halts the tick loop. Pending entries survive and fire after a
// restart; in-flight pool submissions are unaffected. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
	s.log.Debug().Msg("scheduler stopped")
}

func (s *Scheduler) run(done chan struct{}) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.fireDue(time.Now())
		}
	}
}

// fireDue collects due entries under the lock, then submits them outside it.
// Each submission runs in its own goroutine because pool.Submit blocks until
// the task finishes.
func (s *Scheduler) fireDue(now time.Time) {
	s.mu.Lock()
	var due []*entry
	for id, e := range s.entries {
		if e.runAt.After(now) {
			continue
		}
		due = append(due, e)
		if e.schedule != nil {
			e.runAt = e.schedule.Next(now.In(s.location))
		} else {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		e := e
		s.mtr.TasksFired.WithLabelValues(s.name).Inc()
		go func() {
			result, err := s.pool.Submit(context.Background(), s.submissionID(e), e.priority, e.run, nil)
			if err != nil {
				s.log.Warn().Err(err).Str("id", e.id).Msg("scheduled submission rejected")
			}
			if s.onResult != nil {
				s.onResult(e.id, result, err)
			}
		}()
	}
}

// submissionID distinguishes repeated cron firings in the pool's in-flight
// id space.
func (s *Scheduler) submissionID(e *entry) string {
	if e.schedule == nil {
		return e.id
	}
	return e.id + "@" + time.Now().Format("20060102T150405.000")
}
