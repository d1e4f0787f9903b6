package pool

import (
	"container/heap"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/threadforge/threadforge/pkg/task"
)

// worker is the per-goroutine scheduling loop: wait for work, pop the
// highest-priority job, execute it, finalize its result.
func (p *Pool) worker(wg *sync.WaitGroup, id int) {
	defer wg.Done()
	p.log.Debug().Str("pool", p.name).Str("worker", workerName(id)).Msg("worker started")
	defer p.log.Debug().Str("pool", p.name).Str("worker", workerName(id)).Msg("worker stopped")

	for {
		p.mu.Lock()
		for !p.stop && (p.paused || len(p.queue) == 0) {
			p.cond.Wait()
		}
		if p.stop && len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}

		j := heap.Pop(&p.queue).(*job)
		p.pending--

		if j.cancelled.Load() {
			// Cancelled while queued: the canceller already synthesized
			// the result, so the work body never runs.
			delete(p.jobs, j.id)
			p.mu.Unlock()
			j.finish(task.Cancelled(""))
			continue
		}

		p.active++
		p.mu.Unlock()
		p.observeDequeue()

		start := time.Now()
		result := p.execute(j)
		elapsed := time.Since(start)

		p.mu.Lock()
		delete(p.jobs, j.id)
		p.active--
		p.mu.Unlock()

		// finish respects a late cancellation that raced with execution:
		// if the cancel flag is set, the computed result is overridden
		// with Cancelled, and if the canceller finished the job first
		// this call is a no-op.
		first := j.finish(result)
		p.observeFinish(j, elapsed, first)
	}
}

// execute runs the job's work body, converting a panic into an Error result
// so a failing task can never take down a worker.
func (p *Pool) execute(j *job) (result task.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("pool", p.name).Str("task", j.id).
				Interface("panic", r).Msg("task panicked")
			result = task.Err(fmt.Sprintf("task panicked: %v", r), string(debug.Stack()))
		}
	}()
	return j.run(j.progress, j.cancelled.Load)
}

func (p *Pool) observeDequeue() {
	p.mu.Lock()
	pending, active := p.pending, p.active
	p.mu.Unlock()
	p.mtr.PoolPending.WithLabelValues(p.name).Set(float64(pending))
	p.mtr.PoolActive.WithLabelValues(p.name).Set(float64(active))
}

// observeFinish logs and records the end of execution. Status counters are
// only incremented when the worker performed the finish transition; a task
// the canceller already finished was counted there.
func (p *Pool) observeFinish(j *job, elapsed time.Duration, first bool) {
	final := j.finalResult()
	p.log.Debug().Str("pool", p.name).Str("task", j.id).
		Str("status", string(final.Status)).Dur("took", elapsed).Msg("task finished")

	p.mtr.TaskExecutionDuration.WithLabelValues(p.name).Observe(elapsed.Seconds())
	if first {
		switch final.Status {
		case task.StatusOK:
			p.mtr.TasksCompleted.WithLabelValues(p.name).Inc()
		case task.StatusCancelled:
			p.mtr.TasksCancelled.WithLabelValues(p.name).Inc()
		default:
			p.mtr.TasksFailed.WithLabelValues(p.name).Inc()
		}
	}
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()
	p.mtr.PoolActive.WithLabelValues(p.name).Set(float64(active))
}
