/*
Package pool implements the threadforge scheduler core: a bounded set of
worker goroutines draining one shared priority queue.

Tasks are ordered first by priority (High > Normal > Low) and, within a
level, by ascending submission sequence number (strict FIFO). There is no
aging: a continuous stream of High submissions can starve Low tasks
indefinitely. This is an accepted limitation of the design.

Submit is synchronous from the caller's perspective: it enqueues a task and
blocks until a worker writes the task's result. Unrelated tasks still run in
parallel on other workers, so concurrency comes from concurrent submitters,
not from fire-and-forget submission.

Cancellation has two regimes. A task cancelled while still queued is
guaranteed never to run: the canceller synthesizes the Cancelled result
immediately. A task cancelled while executing is only advised: the pool
flips the task's cancellation flag and the work body must poll its
predicate to stop early. The pool never preempts running work.

The pool-wide lock protects the queue and the id lookup map together so
their mutation stays atomic. Each task carries its own completion lock and
one-shot done channel, so submitters blocked on completion never contend
with queue operations.

Basic usage:

	p := pool.New(4)
	defer p.Shutdown()

	result, err := p.Submit(ctx, "job-1", pool.PriorityHigh, runnable, nil)

Resizing requires quiescence (zero pending, zero active tasks) and fails
with ErrNotQuiescent otherwise; callers are expected to drain the pool
themselves before calling SetConcurrency.
*/
package pool
