package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tferrors "github.com/threadforge/threadforge/pkg/common/errors"
	"github.com/threadforge/threadforge/internal/testutil"
	"github.com/threadforge/threadforge/pkg/history"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	e := New(cfg)
	t.Cleanup(e.Shutdown)
	return e
}

func decodeResult(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	testutil.AssertNoError(t, json.Unmarshal([]byte(out), &decoded))
	return decoded
}

func TestSubmitBuiltin(t *testing.T) {
	defer testutil.WithTimeout(t)()
	e := newTestEngine(t, Config{})

	out, err := e.Submit(context.Background(), "msg", 1,
		`{"type":"INSTANT_MESSAGE","message":"hello"}`, "")
	testutil.AssertNoError(t, err)

	decoded := decodeResult(t, out)
	testutil.AssertEqual(t, decoded["status"], "ok")
	testutil.AssertEqual(t, decoded["value"], "hello")
}

func TestSubmitLegacyDescriptor(t *testing.T) {
	defer testutil.WithTimeout(t)()
	e := newTestEngine(t, Config{})

	out, err := e.Submit(context.Background(), "legacy", 1,
		"INSTANT_MESSAGE|message=from the old days", "")
	testutil.AssertNoError(t, err)

	decoded := decodeResult(t, out)
	testutil.AssertEqual(t, decoded["status"], "ok")
	testutil.AssertEqual(t, decoded["value"], "from the old days")
}

func TestSubmitMalformedDescriptor(t *testing.T) {
	e := newTestEngine(t, Config{})

	tests := []struct {
		name     string
		taskData string
	}{
		{"empty", ""},
		{"missing iterations", `{"type":"HEAVY_LOOP"}`},
		{"zero iterations", `{"type":"HEAVY_LOOP","iterations":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Submit(context.Background(), "bad", 1, tt.taskData, ""); !tferrors.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSubmitUnknownTypeStillRuns(t *testing.T) {
	defer testutil.WithTimeout(t)()
	e := newTestEngine(t, Config{})

	out, err := e.Submit(context.Background(), "odd", 1, `{"type":"SOMETHING_ELSE"}`, "")
	testutil.AssertNoError(t, err)

	decoded := decodeResult(t, out)
	testutil.AssertEqual(t, decoded["status"], "ok")
	testutil.AssertEqual(t, decoded["value"], "Unknown task type")
}

func TestSubmitRoutesToPipeline(t *testing.T) {
	defer testutil.WithTimeout(t)()
	e := newTestEngine(t, Config{})

	def := `{"steps":[
		{"type":"INSTANT_MESSAGE","message":{"fromPayload":"user.name","default":"stranger"}}
	]}`
	testutil.AssertNoError(t, e.RegisterPipeline("greet", def))
	testutil.AssertEqual(t, e.Pipelines()[0], "greet")

	out, err := e.Submit(context.Background(), "greet-1", 1,
		`{"type":"greet"}`, `{"user":{"name":"Ada"}}`)
	testutil.AssertNoError(t, err)

	decoded := decodeResult(t, out)
	testutil.AssertEqual(t, decoded["status"], "ok")
	value, ok := decoded["value"].(map[string]interface{})
	if !ok {
		t.Fatalf("pipeline value not an object: %v", decoded["value"])
	}
	testutil.AssertEqual(t, value["task"], "greet")
	steps := value["steps"].([]interface{})
	step := steps[0].(map[string]interface{})
	testutil.AssertEqual(t, step["result"], "Ada")

	// Pipeline instantiation failures surface as submission errors.
	strict := `{"steps":[{"type":"INSTANT_MESSAGE","message":{"fromPayload":"user.name"}}]}`
	testutil.AssertNoError(t, e.RegisterPipeline("strict", strict))
	if _, err := e.Submit(context.Background(), "greet-2", 1, `{"type":"strict"}`, `{}`); !tferrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Unregistering restores built-in routing for the name.
	e.UnregisterPipeline("greet")
	out, err = e.Submit(context.Background(), "greet-3", 1, `{"type":"greet"}`, "")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, decodeResult(t, out)["value"], "Unknown task type")
}

func TestProgressSinkReceivesTaskID(t *testing.T) {
	defer testutil.WithTimeout(t)()

	var mu sync.Mutex
	var ids []string
	var last float64
	e := newTestEngine(t, Config{
		ProgressSink: func(taskID string, v float64) {
			mu.Lock()
			ids = append(ids, taskID)
			last = v
			mu.Unlock()
		},
		ProgressInterval: time.Millisecond,
	})

	_, err := e.Submit(context.Background(), "tracked", 1,
		`{"type":"HEAVY_LOOP","iterations":200000}`, "")
	testutil.AssertNoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	if len(ids) == 0 {
		t.Fatal("sink received nothing")
	}
	for _, id := range ids {
		testutil.AssertEqual(t, id, "tracked")
	}
	testutil.AssertEqual(t, last, 1.0)
}

func TestCancelThroughEngine(t *testing.T) {
	defer testutil.WithTimeout(t)()
	started := make(chan struct{})
	var once sync.Once
	e := newTestEngine(t, Config{
		Workers: 1,
		ProgressSink: func(taskID string, v float64) {
			once.Do(func() { close(started) })
		},
		ProgressInterval: time.Millisecond,
	})

	out := make(chan string, 1)
	go func() {
		s, _ := e.Submit(context.Background(), "long", 1,
			`{"type":"TIMED_LOOP","durationMs":60000}`, "")
		out <- s
	}()

	<-started
	testutil.AssertEqual(t, e.Cancel("long"), true)

	decoded := decodeResult(t, <-out)
	testutil.AssertEqual(t, decoded["status"], "cancelled")
	testutil.AssertEqual(t, decoded["message"], "Task cancelled")
}

func TestPauseResumeAndCounts(t *testing.T) {
	defer testutil.WithTimeout(t)()
	e := newTestEngine(t, Config{Workers: 3})

	testutil.AssertEqual(t, e.ThreadCount(), 3)
	testutil.AssertEqual(t, e.PendingCount(), 0)
	testutil.AssertEqual(t, e.ActiveCount(), 0)

	e.Pause()
	testutil.AssertEqual(t, e.IsPaused(), true)
	e.Resume()
	testutil.AssertEqual(t, e.IsPaused(), false)

	e.SetQueueLimit(7)
	testutil.AssertEqual(t, e.QueueLimit(), 7)

	testutil.AssertNoError(t, e.SetConcurrency(2))
	testutil.AssertEqual(t, e.ThreadCount(), 2)
}

func TestHistoryRecordsCompletions(t *testing.T) {
	defer testutil.WithTimeout(t)()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	testutil.AssertNoError(t, err)
	defer store.Close()

	e := newTestEngine(t, Config{History: store})

	_, err = e.Submit(context.Background(), "logged", 2,
		`{"type":"INSTANT_MESSAGE","message":"hi"}`, "")
	testutil.AssertNoError(t, err)

	// Recording is asynchronous.
	testutil.Eventually(t, testutil.TestTimeout, func() bool {
		entries, err := store.Recent(context.Background(), 1)
		return err == nil && len(entries) == 1
	})

	entries, err := store.Recent(context.Background(), 1)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, entries[0].ID, "logged")
	testutil.AssertEqual(t, entries[0].Status, "ok")
	testutil.AssertEqual(t, entries[0].Value, "hi")
	testutil.AssertEqual(t, entries[0].Priority, "high")
}

func TestNestedJSONStepValue(t *testing.T) {
	defer testutil.WithTimeout(t)()
	e := newTestEngine(t, Config{})

	testutil.AssertNoError(t, e.RegisterPipeline("nested", `{"steps":[
		{"type":"INSTANT_MESSAGE","message":"{\"answer\":42}"}
	]}`))

	out, err := e.Submit(context.Background(), "nested-1", 1, `{"type":"nested"}`, "")
	testutil.AssertNoError(t, err)

	// Step values that are themselves JSON stay strings inside the step
	// record; only the top-level value is re-parsed.
	decoded := decodeResult(t, out)
	value := decoded["value"].(map[string]interface{})
	steps := value["steps"].([]interface{})
	step := steps[0].(map[string]interface{})
	testutil.AssertEqual(t, step["result"], `{"answer":42}`)
}

func TestPriorityMapping(t *testing.T) {
	defer testutil.WithTimeout(t)()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	testutil.AssertNoError(t, err)
	defer store.Close()
	e := newTestEngine(t, Config{History: store})

	for _, tt := range []struct {
		id       string
		priority int
		want     string
	}{
		{"p-low", 0, "low"},
		{"p-normal", 1, "normal"},
		{"p-high", 2, "high"},
		{"p-other", 9, "normal"},
	} {
		_, err := e.Submit(context.Background(), tt.id, tt.priority,
			`{"type":"INSTANT_MESSAGE"}`, "")
		testutil.AssertNoError(t, err)
	}

	testutil.Eventually(t, testutil.TestTimeout, func() bool {
		entries, err := store.Recent(context.Background(), 10)
		return err == nil && len(entries) == 4
	})

	entries, err := store.Recent(context.Background(), 10)
	testutil.AssertNoError(t, err)
	byID := make(map[string]string, len(entries))
	for _, e := range entries {
		byID[e.ID] = e.Priority
	}
	testutil.AssertEqual(t, byID["p-low"], "low")
	testutil.AssertEqual(t, byID["p-normal"], "normal")
	testutil.AssertEqual(t, byID["p-high"], "high")
	testutil.AssertEqual(t, byID["p-other"], "normal")
}
