package task

import (
	"encoding/json"
)

// Status identifies the terminal outcome of a task. Exactly one status holds
// for any finished task.
type Status string

const (
	// StatusOK indicates the task completed and produced a value.
	StatusOK Status = "ok"

	// StatusError indicates the task failed during execution.
	StatusError Status = "error"

	// StatusCancelled indicates the task was cancelled before or during
	// execution. Cancelled overrides any partially computed OK or Error
	// outcome.
	StatusCancelled Status = "cancelled"
)

const (
	defaultCancelMessage = "Task cancelled"
	defaultErrorMessage  = "threadforge task failed"
)

// Result is the tagged outcome of one task execution.
type Result struct {
	Status  Status
	Value   string
	Message string
	Stack   string
}

// OK returns a successful result carrying a JSON-or-raw-string value.
func OK(value string) Result {
	return Result{Status: StatusOK, Value: value}
}

// Err returns a failed result with a message and an optional stack.
func Err(message, stack string) Result {
	if message == "" {
		message = defaultErrorMessage
	}
	return Result{Status: StatusError, Message: message, Stack: stack}
}

// Cancelled returns a cancelled result. An empty message defaults to
// "Task cancelled".
func Cancelled(message string) Result {
	if message == "" {
		message = defaultCancelMessage
	}
	return Result{Status: StatusCancelled, Message: message}
}

// IsOK reports whether the result is successful.
func (r Result) IsOK() bool { return r.Status == StatusOK }

// MarshalJSON encodes the result in its boundary form:
//
//	{"status":"ok","value":<parsed JSON or literal string>}
//	{"status":"error","message":"...","stack":"..."}
//	{"status":"cancelled","message":"..."}
func (r Result) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusOK:
		return json.Marshal(struct {
			Status Status      `json:"status"`
			Value  interface{} `json:"value"`
		}{StatusOK, parseValueOrLiteral(r.Value)})
	case StatusCancelled:
		msg := r.Message
		if msg == "" {
			msg = defaultCancelMessage
		}
		return json.Marshal(struct {
			Status  Status `json:"status"`
			Message string `json:"message"`
			Stack   string `json:"stack,omitempty"`
		}{StatusCancelled, msg, r.Stack})
	default:
		msg := r.Message
		if msg == "" {
			msg = defaultErrorMessage
		}
		return json.Marshal(struct {
			Status  Status `json:"status"`
			Message string `json:"message"`
			Stack   string `json:"stack,omitempty"`
		}{StatusError, msg, r.Stack})
	}
}

// Serialize returns the boundary JSON encoding of the result.
func (r Result) Serialize() string {
	b, err := json.Marshal(r)
	if err != nil {
		// Only reachable if the value contains invalid UTF-8 that the
		// encoder rejects; degrade to a plain error result.
		b, _ = json.Marshal(Err("failed to serialize task result", ""))
	}
	return string(b)
}

// parseValueOrLiteral re-parses a value string as structured JSON when it is
// valid JSON, otherwise keeps it as a literal string. Empty values become
// null.
func parseValueOrLiteral(value string) interface{} {
	if value == "" {
		return nil
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return value
	}
	return parsed
}
