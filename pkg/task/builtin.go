package task

import (
	"fmt"
	"math"
	"time"

	"github.com/threadforge/threadforge/pkg/common/validation"
)

// Built-in workload type tags.
const (
	// TypeHeavyLoop is a bounded numeric accumulation loop.
	TypeHeavyLoop = "HEAVY_LOOP"

	// TypeTimedLoop runs until a wall-clock deadline.
	TypeTimedLoop = "TIMED_LOOP"

	// TypeMixedLoop is a bounded loop with a numeric offset.
	TypeMixedLoop = "MIXED_LOOP"

	// TypeInstantMessage returns a fixed message immediately.
	TypeInstantMessage = "INSTANT_MESSAGE"
)

// unknownTypeResult is the documented fallback for unrecognized type tags,
// not a failure.
const unknownTypeResult = "Unknown task type"

// timedLoopProgressInterval bounds how often the time-boxed loop emits
// progress and polls cancellation.
const timedLoopProgressInterval = 100 * time.Millisecond

// Constructor builds a Runnable from a validated Descriptor.
type Constructor func(Descriptor) Runnable

type builtin struct {
	construct Constructor
	validate  func(Descriptor) error
}

// builtins is the closed registry of built-in workload types. Open-ended
// composites live in the pipeline registry instead.
var builtins = map[string]builtin{
	TypeHeavyLoop: {
		construct: newHeavyLoop,
		validate: func(d Descriptor) error {
			n, err := d.requireInt("iterations")
			if err != nil {
				return err
			}
			return validation.ValidatePositive(moduleName, "iterations", n)
		},
	},
	TypeTimedLoop: {
		construct: newTimedLoop,
		validate: func(d Descriptor) error {
			n, err := d.requireInt("durationMs")
			if err != nil {
				return err
			}
			return validation.ValidatePositive(moduleName, "durationMs", n)
		},
	},
	TypeMixedLoop: {
		construct: newMixedLoop,
		validate: func(d Descriptor) error {
			n, err := d.requireInt("iterations")
			if err != nil {
				return err
			}
			return validation.ValidatePositive(moduleName, "iterations", n)
		},
	},
	TypeInstantMessage: {
		construct: newInstantMessage,
	},
}

// IsBuiltin reports whether the type tag names a built-in workload.
func IsBuiltin(typ string) bool {
	_, ok := builtins[typ]
	return ok
}

// NewRunnable maps a descriptor to its built-in work body. Unknown types
// yield a runnable returning the fixed "Unknown task type" result.
func NewRunnable(d Descriptor) Runnable {
	if b, ok := builtins[d.Type]; ok {
		return b.construct(d)
	}
	return func(progress ProgressFunc, _ CancelledFunc) Result {
		progress(1.0)
		return OK(unknownTypeResult)
	}
}

// newHeavyLoop sums square roots over a bounded loop, emitting progress at
// roughly every 1% of iterations. Cancellation-aware.
func newHeavyLoop(d Descriptor) Runnable {
	iterations := d.Int("iterations", 0)
	return func(progress ProgressFunc, cancelled CancelledFunc) Result {
		stride := iterations / 100
		if stride < 1 {
			stride = 1
		}

		total := 0.0
		for i := int64(0); i < iterations; i++ {
			if i%stride == 0 {
				if cancelled() {
					return Cancelled("")
				}
				progress(float64(i) / float64(iterations))
			}
			total += math.Sqrt(float64(i))
		}

		progress(1.0)
		return OK(fmt.Sprintf("%.2f", total))
	}
}

// newTimedLoop iterates until a wall-clock deadline, emitting progress and
// polling cancellation at least every 100ms. Cancellation-aware.
func newTimedLoop(d Descriptor) Runnable {
	durationMs := d.Int("durationMs", 0)
	return func(progress ProgressFunc, cancelled CancelledFunc) Result {
		duration := time.Duration(durationMs) * time.Millisecond
		start := time.Now()
		deadline := start.Add(duration)

		sum := 0.0
		iterations := int64(0)
		lastEmit := start

		for {
			now := time.Now()
			if !now.Before(deadline) {
				break
			}
			if now.Sub(lastEmit) >= timedLoopProgressInterval {
				if cancelled() {
					return Cancelled("")
				}
				progress(math.Min(1.0, float64(now.Sub(start))/float64(duration)))
				lastEmit = now
			}
			sum += math.Sqrt(float64((iterations % 10000) + 1))
			iterations++
		}

		elapsed := time.Since(start)
		progress(1.0)
		return OK(fmt.Sprintf("🕐 Task finished in ~%.1fs | Iterations: %d | Sum: %.2f",
			elapsed.Seconds(), iterations, sum))
	}
}

// newMixedLoop is the bounded loop variant with a numeric offset.
// Cancellation-aware.
func newMixedLoop(d Descriptor) Runnable {
	iterations := d.Int("iterations", 0)
	offset := d.Int("offset", 0)
	return func(progress ProgressFunc, cancelled CancelledFunc) Result {
		stride := iterations / 100
		if stride < 1 {
			stride = 1
		}

		total := 0.0
		for i := int64(0); i < iterations; i++ {
			if i%stride == 0 {
				if cancelled() {
					return Cancelled("")
				}
				progress(float64(i) / float64(iterations))
			}
			total += math.Sqrt(float64(i + offset))
		}

		progress(1.0)
		return OK(fmt.Sprintf("Task completed (%.0f)", total))
	}
}

// newInstantMessage echoes a fixed message. Not cancellation-aware: the body
// finishes before any cancellation could be observed.
func newInstantMessage(d Descriptor) Runnable {
	message := d.String("message", "Task completed")
	return func(progress ProgressFunc, _ CancelledFunc) Result {
		progress(1.0)
		return OK(message)
	}
}
