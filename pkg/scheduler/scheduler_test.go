package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tferrors "github.com/threadforge/threadforge/pkg/common/errors"
	"github.com/threadforge/threadforge/internal/testutil"
	"github.com/threadforge/threadforge/pkg/pool"
	"github.com/threadforge/threadforge/pkg/task"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *pool.Pool) {
	t.Helper()
	p := pool.New(2)
	t.Cleanup(p.Shutdown)
	cfg.Pool = p
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	s := NewWithConfig(cfg)
	t.Cleanup(s.Stop)
	return s, p
}

func counting(n *atomic.Int32) task.Runnable {
	return func(progress task.ProgressFunc, cancelled task.CancelledFunc) task.Result {
		n.Add(1)
		return task.OK("ok")
	}
}

func TestScheduleValidation(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})

	run := counting(&atomic.Int32{})
	tests := []struct {
		name string
		err  error
	}{
		{"empty id", s.Schedule("", pool.PriorityNormal, run, time.Now())},
		{"nil runnable", s.Schedule("x", pool.PriorityNormal, nil, time.Now())},
		{"zero time", s.Schedule("x", pool.PriorityNormal, run, time.Time{})},
		{"negative delay", s.ScheduleAfter("x", pool.PriorityNormal, run, -time.Second)},
		{"empty cron", s.ScheduleCron("x", pool.PriorityNormal, "", run)},
		{"bad cron", s.ScheduleCron("x", pool.PriorityNormal, "not a cron", run)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tferrors.IsValidation(tt.err) {
				t.Fatalf("expected validation error, got %v", tt.err)
			}
		})
	}
}

func TestScheduleDuplicateID(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	run := counting(&atomic.Int32{})

	testutil.AssertNoError(t, s.Schedule("dup", pool.PriorityNormal, run, time.Now().Add(time.Hour)))
	err := s.Schedule("dup", pool.PriorityNormal, run, time.Now().Add(time.Hour))
	if !errors.Is(err, tferrors.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestEntryLimit(t *testing.T) {
	s, _ := newTestScheduler(t, Config{MaxEntries: 1})
	run := counting(&atomic.Int32{})

	testutil.AssertNoError(t, s.Schedule("a", pool.PriorityNormal, run, time.Now().Add(time.Hour)))
	if err := s.Schedule("b", pool.PriorityNormal, run, time.Now().Add(time.Hour)); !tferrors.IsValidation(err) {
		t.Fatalf("expected validation error at the entry limit, got %v", err)
	}
}

func TestOneShotFiresOnceAndIsRemoved(t *testing.T) {
	defer testutil.WithTimeout(t)()

	var fired atomic.Int32
	var mu sync.Mutex
	var results []task.Result
	s, _ := newTestScheduler(t, Config{
		OnResult: func(id string, result task.Result, err error) {
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		},
	})
	testutil.AssertNoError(t, s.Start())

	testutil.AssertNoError(t, s.ScheduleAfter("once", pool.PriorityHigh, counting(&fired), 20*time.Millisecond))
	testutil.AssertEqual(t, len(s.List()), 1)

	testutil.Eventually(t, testutil.TestTimeout, func() bool {
		return fired.Load() == 1
	})
	testutil.Eventually(t, testutil.TestTimeout, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	})

	mu.Lock()
	testutil.AssertEqual(t, results[0].Status, task.StatusOK)
	mu.Unlock()
	testutil.AssertEqual(t, len(s.List()), 0)

	// It stays fired exactly once.
	time.Sleep(50 * time.Millisecond)
	testutil.AssertEqual(t, fired.Load(), int32(1))
}

func TestCancelPendingEntry(t *testing.T) {
	defer testutil.WithTimeout(t)()

	var fired atomic.Int32
	s, _ := newTestScheduler(t, Config{})
	testutil.AssertNoError(t, s.Start())

	testutil.AssertNoError(t, s.ScheduleAfter("soon", pool.PriorityNormal, counting(&fired), 100*time.Millisecond))
	testutil.AssertEqual(t, s.Cancel("soon"), true)
	testutil.AssertEqual(t, s.Cancel("soon"), false)

	time.Sleep(200 * time.Millisecond)
	testutil.AssertEqual(t, fired.Load(), int32(0))
}

func TestListOrderedByRunTime(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	run := counting(&atomic.Int32{})

	testutil.AssertNoError(t, s.Schedule("later", pool.PriorityNormal, run, time.Now().Add(2*time.Hour)))
	testutil.AssertNoError(t, s.Schedule("sooner", pool.PriorityNormal, run, time.Now().Add(time.Hour)))

	entries := s.List()
	testutil.AssertEqual(t, len(entries), 2)
	testutil.AssertEqual(t, entries[0].ID, "sooner")
	testutil.AssertEqual(t, entries[1].ID, "later")
}

func TestCronEntryPersistsAcrossFirings(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	run := counting(&atomic.Int32{})

	testutil.AssertNoError(t, s.ScheduleCron("tick", pool.PriorityNormal, "* * * * *", run))

	entries := s.List()
	testutil.AssertEqual(t, len(entries), 1)
	testutil.AssertEqual(t, entries[0].Cron, "* * * * *")
	if entries[0].RunAt.IsZero() {
		t.Fatal("cron entry has no next run time")
	}

	// Force a firing by marking the entry due now.
	s.mu.Lock()
	s.entries["tick"].runAt = time.Now().Add(-time.Second)
	s.mu.Unlock()
	s.fireDue(time.Now())

	// The entry remains, rescheduled into the future.
	entries = s.List()
	testutil.AssertEqual(t, len(entries), 1)
	if !entries[0].RunAt.After(time.Now()) {
		t.Fatalf("cron entry not rescheduled: %v", entries[0].RunAt)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})

	testutil.AssertNoError(t, s.Start())
	if err := s.Start(); err == nil {
		t.Fatal("expected second Start to fail")
	}

	s.Stop()
	s.Stop() // idempotent

	// A stopped scheduler holds entries for the next run.
	var fired atomic.Int32
	testutil.AssertNoError(t, s.ScheduleAfter("held", pool.PriorityNormal, counting(&fired), 0))
	time.Sleep(50 * time.Millisecond)
	testutil.AssertEqual(t, fired.Load(), int32(0))

	testutil.AssertNoError(t, s.Start())
	testutil.Eventually(t, testutil.TestTimeout, func() bool {
		return fired.Load() == 1
	})
}

func TestRejectedSubmissionReportedToCallback(t *testing.T) {
	defer testutil.WithTimeout(t)()

	errs := make(chan error, 1)
	s, p := newTestScheduler(t, Config{
		OnResult: func(id string, result task.Result, err error) {
			errs <- err
		},
	})
	p.Shutdown()
	testutil.AssertNoError(t, s.Start())

	testutil.AssertNoError(t, s.ScheduleAfter("doomed", pool.PriorityNormal, counting(&atomic.Int32{}), 0))
	err := <-errs
	if !errors.Is(err, tferrors.ErrStopped) {
		t.Fatalf("expected ErrStopped from a shut-down pool, got %v", err)
	}
}
