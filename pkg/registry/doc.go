// Package registry manages named pipeline definitions: JSON templates that
// chain built-in task steps into a single runnable unit.
//
// A definition declares an ordered steps array. Each step names a built-in
// task type and may bind any other field to the submission payload through a
// {fromPayload: "dotted.path"} placeholder, with an optional default for
// absent paths. CreateTask resolves the placeholders against a concrete
// payload and produces a composite runnable that executes the steps in
// order, blending per-step progress into one monotonic overall value.
//
// Definitions can optionally be mirrored to a Store (see RedisStore) and
// kept in sync with a directory of JSON files via Watcher.
package registry
