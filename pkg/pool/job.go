package pool

import (
	"sync"
	"sync/atomic"

	"github.com/threadforge/threadforge/pkg/task"
)

// job is one unit of submitted work. It is shared between the submitting
// call (blocked on done), the queue, and the executing worker; the finish
// transition happens exactly once, taken by whichever of the worker or the
// canceller gets there first.
type job struct {
	id       string
	priority Priority
	seq      uint64
	run      task.Runnable
	progress task.ProgressFunc

	cancelled atomic.Bool

	// mu guards finished and result. It is distinct from the pool lock so
	// submitters waiting on done never contend with queue operations.
	mu       sync.Mutex
	finished bool
	result   task.Result
	done     chan struct{}
}

func newJob(id string, priority Priority, run task.Runnable, progress task.ProgressFunc) *job {
	if progress == nil {
		progress = task.NopProgress
	}
	return &job{
		id:       id,
		priority: priority,
		run:      run,
		progress: progress,
		done:     make(chan struct{}),
	}
}

// finish writes the terminal result and closes done. The first writer wins;
// later calls are no-ops. A cancellation flag observed here overrides a
// computed OK/Error outcome.
func (j *job) finish(r task.Result) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return false
	}
	if j.cancelled.Load() && r.Status != task.StatusCancelled {
		r = task.Cancelled("")
	}
	j.result = r
	j.finished = true
	close(j.done)
	return true
}

// finalResult reads the terminal result. Only valid after done is closed.
func (j *job) finalResult() task.Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// jobQueue is a container/heap ordering jobs by priority (High first) and,
// within a priority level, by ascending submission sequence.
type jobQueue []*job

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q jobQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *jobQueue) Push(x interface{}) {
	*q = append(*q, x.(*job))
}

func (q *jobQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
