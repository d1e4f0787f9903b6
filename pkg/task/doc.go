// Package task defines the unit of schedulable work used throughout
// threadforge: the tagged Result outcome, the Runnable work body, and the
// Descriptor form from which built-in workloads are constructed.
//
// A Runnable receives a progress-emit callback and a cancellation-poll
// predicate. Cancellation is cooperative: the body decides where it is safe
// to stop, and a body that never polls the predicate simply runs to
// completion. Each built-in documents whether it is cancellation-aware.
//
// Descriptors are parsed from a JSON object with a "type" field. The legacy
// pipe-delimited form ("TYPE|key=value|key=value") is accepted as a fallback
// when the input is not valid JSON. Parameter validation happens at parse
// time so that malformed input fails synchronously to the caller instead of
// inside a worker.
package task
