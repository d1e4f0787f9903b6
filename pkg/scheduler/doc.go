// Package scheduler defers task submission to a pool until a point in time,
// a delay, or a cron schedule. Due entries are handed to the pool with their
// original priority; one-shot entries are removed once fired, cron entries
// are rescheduled for their next occurrence.
//
// The scheduler never executes work itself and carries no result channel:
// fired submissions run through the pool like any direct submission, and an
// optional OnResult callback observes their outcomes.
package scheduler
