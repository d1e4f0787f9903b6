package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/threadforge/threadforge/internal/testutil"
)

func writeDefinition(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testutil.AssertNoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestWatcherLoadsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "greet.json", greetDefinition)
	writeDefinition(t, dir, "notes.txt", "ignored")
	writeDefinition(t, dir, "broken.json", "not json")

	r := New()
	w := NewWatcher(r, dir, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	testutil.Eventually(t, testutil.TestTimeout, func() bool {
		return r.Has("greet")
	})
	testutil.AssertEqual(t, r.Has("notes"), false)
	testutil.AssertEqual(t, r.Has("broken"), false)

	cancel()
	testutil.AssertNoError(t, <-done)
}

func TestWatcherRegistersAndRemoves(t *testing.T) {
	dir := t.TempDir()
	r := New()
	w := NewWatcher(r, dir, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	path := writeDefinition(t, dir, "greet.json", greetDefinition)
	testutil.Eventually(t, testutil.TestTimeout, func() bool {
		return r.Has("greet")
	})

	testutil.AssertNoError(t, os.Remove(path))
	testutil.Eventually(t, testutil.TestTimeout, func() bool {
		return !r.Has("greet")
	})

	cancel()
	testutil.AssertNoError(t, <-done)
}

func TestWatcherMissingDirectory(t *testing.T) {
	r := New()
	w := NewWatcher(r, filepath.Join(t.TempDir(), "absent"), zerolog.Nop())
	if err := w.Watch(context.Background()); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}
