// Package history keeps an audit log of completed task submissions in
// SQLite. It records outcomes only; queued tasks are never persisted and
// the log plays no part in execution.
package history
