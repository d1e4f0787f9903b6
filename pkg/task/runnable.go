package task

// ProgressFunc receives progress values in [0, 1].
type ProgressFunc func(v float64)

// CancelledFunc reports whether cancellation has been requested for the
// running task. Work bodies poll it at safe points.
type CancelledFunc func() bool

// Runnable is the work body of a task. It is handed a progress emitter and a
// cancellation predicate by the executing worker and returns the task's
// terminal Result.
type Runnable func(progress ProgressFunc, cancelled CancelledFunc) Result

// NopProgress discards progress values. Workers substitute it when a task has
// no progress sink so runnables never need a nil check.
func NopProgress(float64) {}

// NeverCancelled is the cancellation predicate for contexts where
// cancellation cannot occur.
func NeverCancelled() bool { return false }
