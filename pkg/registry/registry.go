package registry

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	tferrors "github.com/threadforge/threadforge/pkg/common/errors"
	"github.com/threadforge/threadforge/pkg/metrics"
	"github.com/threadforge/threadforge/pkg/task"
)

const moduleName = "registry"

// paramValue is one field of a step template: either a literal carried
// verbatim into the step descriptor, or a payload placeholder resolved at
// instantiation time.
type paramValue struct {
	literal    interface{}
	path       string
	def        interface{}
	hasDefault bool
	bound      bool
}

// newParamValue classifies a raw definition field. An object shaped
// {fromPayload: "<dotted.path>", default?: v} becomes a placeholder;
// everything else stays literal.
func newParamValue(raw interface{}) paramValue {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return paramValue{literal: raw}
	}
	path, ok := obj["fromPayload"].(string)
	if !ok {
		return paramValue{literal: raw}
	}
	pv := paramValue{path: path, bound: true}
	if def, ok := obj["default"]; ok {
		pv.def = def
		pv.hasDefault = true
	}
	return pv
}

// resolve produces the concrete field value for a payload. Placeholder paths
// descend nested objects segment by segment.
func (pv paramValue) resolve(payload map[string]interface{}) (interface{}, error) {
	if !pv.bound {
		return pv.literal, nil
	}

	var current interface{} = payload
	for _, segment := range strings.Split(pv.path, ".") {
		if segment == "" {
			continue
		}
		obj, ok := current.(map[string]interface{})
		if !ok {
			if pv.hasDefault {
				return pv.def, nil
			}
			return nil, tferrors.NewValidationError(moduleName, "payload", pv.path, "missing required field")
		}
		child, ok := obj[segment]
		if !ok {
			if pv.hasDefault {
				return pv.def, nil
			}
			return nil, tferrors.NewValidationError(moduleName, "payload", pv.path, "missing required field")
		}
		current = child
	}
	return current, nil
}

// stepTemplate is one validated step of a pipeline definition.
type stepTemplate struct {
	typ    string
	fields map[string]paramValue
}

type definition struct {
	raw   string
	steps []stepTemplate
}

// Config carries optional registry collaborators.
type Config struct {
	Logger  zerolog.Logger
	Metrics *metrics.Registry
	Store   Store
}

// Registry holds named pipeline definitions. Safe for concurrent use; its
// lock is independent of any pool lock.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]definition
	log   zerolog.Logger
	mtr   *metrics.Registry
	store Store
}

// New returns an empty registry with default collaborators.
func New() *Registry {
	return NewWithConfig(Config{})
}

// NewWithConfig returns an empty registry wired to the given logger,
// metrics, and optional definition store.
func NewWithConfig(cfg Config) *Registry {
	mtr := cfg.Metrics
	if mtr == nil {
		mtr = metrics.DefaultRegistry
	}
	return &Registry{
		defs:  make(map[string]definition),
		log:   cfg.Logger.With().Str("component", "registry").Logger(),
		mtr:   mtr,
		store: cfg.Store,
	}
}

// Register validates and stores a pipeline definition under name, replacing
// any previous definition atomically. When a store is configured the
// definition is written through to it.
func (r *Registry) Register(name, definitionJSON string) error {
	def, err := parseDefinition(name, definitionJSON)
	if err != nil {
		return err
	}

	if r.store != nil {
		if err := r.store.Save(context.Background(), name, definitionJSON); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.defs[name] = def
	r.mu.Unlock()

	r.log.Debug().Str("pipeline", name).Int("steps", len(def.steps)).Msg("pipeline registered")
	return nil
}

// Unregister removes a definition. Removing an absent name is a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	_, existed := r.defs[name]
	delete(r.defs, name)
	r.mu.Unlock()

	if existed && r.store != nil {
		if err := r.store.Delete(context.Background(), name); err != nil {
			r.log.Warn().Err(err).Str("pipeline", name).Msg("store delete failed")
		}
	}
}

// Has reports whether a definition exists under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

// Names returns the registered pipeline names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Definition returns the raw JSON a pipeline was registered with.
func (r *Registry) Definition(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def.raw, ok
}

// LoadFromStore replaces local definitions with the store contents. Entries
// that fail validation are skipped and logged.
func (r *Registry) LoadFromStore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	all, err := r.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for name, definitionJSON := range all {
		def, err := parseDefinition(name, definitionJSON)
		if err != nil {
			r.log.Warn().Err(err).Str("pipeline", name).Msg("skipping invalid stored definition")
			continue
		}
		r.mu.Lock()
		r.defs[name] = def
		r.mu.Unlock()
	}
	return nil
}

// CreateTask instantiates the named pipeline against a JSON payload and
// returns a composite runnable executing its steps in order. Resolution
// failures surface here, before any step runs.
func (r *Registry) CreateTask(name, payloadJSON string) (task.Runnable, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, tferrors.ErrUnknownPipeline
	}

	payload, err := parsePayload(payloadJSON)
	if err != nil {
		return nil, err
	}

	steps := make([]task.Runnable, 0, len(def.steps))
	types := make([]string, 0, len(def.steps))
	for _, tmpl := range def.steps {
		raw := map[string]interface{}{"type": tmpl.typ}
		for key, pv := range tmpl.fields {
			value, err := pv.resolve(payload)
			if err != nil {
				return nil, err
			}
			raw[key] = value
		}
		d, err := task.FromRaw(raw)
		if err != nil {
			return nil, err
		}
		steps = append(steps, task.NewRunnable(d))
		types = append(types, d.Type)
	}

	return r.composite(name, steps, types), nil
}

// stepRecord is the per-step entry of a composite result.
type stepRecord struct {
	Index  int    `json:"index"`
	Type   string `json:"type"`
	Result string `json:"result"`
}

type compositeSummary struct {
	Task  string       `json:"task"`
	Steps []stepRecord `json:"steps"`
}

// composite chains step runnables under a shared progress budget. Each step
// owns an equal slice of the overall range; the blended value never moves
// backwards and never exceeds 1.
func (r *Registry) composite(name string, steps []task.Runnable, types []string) task.Runnable {
	return func(progress task.ProgressFunc, cancelled task.CancelledFunc) task.Result {
		if len(steps) == 0 {
			progress(1.0)
			r.mtr.PipelineRuns.WithLabelValues(name, string(task.StatusOK)).Inc()
			return task.OK("Custom task has no steps")
		}

		weight := 1.0 / float64(len(steps))
		accumulated := 0.0
		emitted := 0.0
		records := make([]stepRecord, 0, len(steps))

		for i, step := range steps {
			if cancelled() {
				r.mtr.PipelineRuns.WithLabelValues(name, string(task.StatusCancelled)).Inc()
				return task.Cancelled("")
			}

			stepProgress := func(v float64) {
				if v < 0 {
					v = 0
				}
				if v > 1 {
					v = 1
				}
				overall := accumulated + v*weight
				if overall > 1 {
					overall = 1
				}
				if overall < emitted {
					return
				}
				emitted = overall
				progress(overall)
			}

			res := step(stepProgress, cancelled)
			r.mtr.PipelineSteps.WithLabelValues(name, types[i]).Inc()
			if !res.IsOK() {
				r.mtr.PipelineRuns.WithLabelValues(name, string(res.Status)).Inc()
				return res
			}

			accumulated += weight
			if accumulated > 1 {
				accumulated = 1
			}
			records = append(records, stepRecord{Index: i, Type: types[i], Result: res.Value})
		}

		if emitted < 1 {
			progress(1.0)
		}

		summary, err := json.Marshal(compositeSummary{Task: name, Steps: records})
		if err != nil {
			r.mtr.PipelineRuns.WithLabelValues(name, string(task.StatusError)).Inc()
			return task.Err(err.Error(), "")
		}
		r.mtr.PipelineRuns.WithLabelValues(name, string(task.StatusOK)).Inc()
		return task.OK(string(summary))
	}
}

// parseDefinition validates definition JSON into step templates.
func parseDefinition(name, definitionJSON string) (definition, error) {
	if strings.TrimSpace(name) == "" {
		return definition{}, tferrors.NewValidationError(moduleName, "name", name, "cannot be empty")
	}

	var root map[string]interface{}
	if err := json.Unmarshal([]byte(definitionJSON), &root); err != nil {
		return definition{}, tferrors.NewValidationError(moduleName, "definition", name, "must be a JSON object")
	}

	rawSteps, ok := root["steps"].([]interface{})
	if !ok || len(rawSteps) == 0 {
		return definition{}, tferrors.NewValidationError(moduleName, "definition", name, "requires a non-empty steps array")
	}

	def := definition{raw: definitionJSON, steps: make([]stepTemplate, 0, len(rawSteps))}
	for i, rawStep := range rawSteps {
		obj, ok := rawStep.(map[string]interface{})
		if !ok {
			return definition{}, tferrors.NewValidationError(moduleName, "definition", name, "each step must be a JSON object")
		}
		typ, ok := obj["type"].(string)
		if !ok || typ == "" {
			return definition{}, tferrors.NewValidationError(moduleName, "definition", name, "each step must include a string type").
				WithHint("step " + strconv.Itoa(i))
		}

		tmpl := stepTemplate{typ: typ, fields: make(map[string]paramValue, len(obj)-1)}
		for key, value := range obj {
			if key == "type" {
				continue
			}
			tmpl.fields[key] = newParamValue(value)
		}
		def.steps = append(def.steps, tmpl)
	}
	return def, nil
}

// parsePayload treats empty input as an empty object, matching the
// submission path where callers often have no payload at all.
func parsePayload(payloadJSON string) (map[string]interface{}, error) {
	if strings.TrimSpace(payloadJSON) == "" {
		return map[string]interface{}{}, nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return nil, tferrors.NewValidationError(moduleName, "payload", payloadJSON, "invalid JSON")
	}
	return payload, nil
}
