package pool

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/threadforge/threadforge/pkg/task"
)

// DefaultProgressInterval is the default minimum spacing between progress
// emissions handed to an outbound sink.
const DefaultProgressInterval = 100 * time.Millisecond

// ThrottledProgress wraps a progress sink with a rate limit of one emission
// per minInterval, protecting slow consumers from chatty work bodies.
//
// Values are clamped to [0, 1]. The terminal 1.0 emission always passes
// through so consumers reliably observe completion. A nil sink yields a
// no-op; a non-positive interval returns the sink unchanged.
func ThrottledProgress(sink task.ProgressFunc, minInterval time.Duration) task.ProgressFunc {
	if sink == nil {
		return task.NopProgress
	}
	if minInterval <= 0 {
		return sink
	}

	limiter := rate.NewLimiter(rate.Every(minInterval), 1)
	return func(v float64) {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		if v >= 1 || limiter.Allow() {
			sink(v)
		}
	}
}
