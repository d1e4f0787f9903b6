package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watchDebounce delays a reload after a write event so partially written
// files are not parsed mid-save.
const watchDebounce = 250 * time.Millisecond

// Watcher mirrors a directory of *.json pipeline definition files into a
// registry. The file base name (without extension) becomes the pipeline
// name: pipelines/greet.json registers the pipeline "greet".
type Watcher struct {
	registry *Registry
	dir      string
	log      zerolog.Logger

	timerMu sync.Mutex
	timers  map[string]*time.Timer
}

// NewWatcher returns a watcher over dir for the given registry. Call Watch
// to start it.
func NewWatcher(registry *Registry, dir string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		registry: registry,
		dir:      dir,
		log:      logger.With().Str("component", "pipeline-watcher").Logger(),
		timers:   make(map[string]*time.Timer),
	}
}

// Watch loads the current directory contents, then blocks applying file
// events until ctx is cancelled. Invalid definition files are logged and
// skipped without disturbing existing registrations.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.loadExisting(); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch error")
		}
	}
}

func (w *Watcher) loadExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}
		w.registerFile(filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isDefinitionFile(event.Name) {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.scheduleRegister(event.Name)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		name := pipelineName(event.Name)
		w.registry.Unregister(name)
		w.log.Info().Str("pipeline", name).Msg("pipeline file removed")
	}
}

// scheduleRegister debounces rapid write sequences per file.
func (w *Watcher) scheduleRegister(path string) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(watchDebounce, func() {
		w.registerFile(path)
	})
}

func (w *Watcher) registerFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn().Err(err).Str("file", path).Msg("definition read failed")
		return
	}
	name := pipelineName(path)
	if err := w.registry.Register(name, string(data)); err != nil {
		w.log.Warn().Err(err).Str("pipeline", name).Msg("definition rejected")
		return
	}
	w.log.Info().Str("pipeline", name).Str("file", path).Msg("pipeline loaded")
}

func isDefinitionFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func pipelineName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
