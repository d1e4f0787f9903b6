package task

import (
	"encoding/json"
	"testing"

	"github.com/threadforge/threadforge/internal/testutil"
)

func TestResultConstructors(t *testing.T) {
	ok := OK(`{"n":1}`)
	testutil.AssertEqual(t, ok.Status, StatusOK)
	testutil.AssertEqual(t, ok.Value, `{"n":1}`)
	testutil.AssertEqual(t, ok.IsOK(), true)

	errResult := Err("boom", "stack trace")
	testutil.AssertEqual(t, errResult.Status, StatusError)
	testutil.AssertEqual(t, errResult.Message, "boom")
	testutil.AssertEqual(t, errResult.Stack, "stack trace")
	testutil.AssertEqual(t, errResult.IsOK(), false)

	defaulted := Err("", "")
	testutil.AssertEqual(t, defaulted.Message, "threadforge task failed")

	cancelled := Cancelled("")
	testutil.AssertEqual(t, cancelled.Status, StatusCancelled)
	testutil.AssertEqual(t, cancelled.Message, "Task cancelled")
}

func TestResultSerialize(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{
			name:   "ok with literal string value",
			result: OK("ping"),
			want:   `{"status":"ok","value":"ping"}`,
		},
		{
			name:   "ok with JSON value reparsed as structure",
			result: OK(`{"task":"greet","steps":[]}`),
			want:   `{"status":"ok","value":{"steps":[],"task":"greet"}}`,
		},
		{
			name:   "ok with numeric string kept as JSON number",
			result: OK("42"),
			want:   `{"status":"ok","value":42}`,
		},
		{
			name:   "ok with empty value",
			result: OK(""),
			want:   `{"status":"ok","value":null}`,
		},
		{
			name:   "error with stack",
			result: Err("task panicked", "goroutine 1"),
			want:   `{"status":"error","message":"task panicked","stack":"goroutine 1"}`,
		},
		{
			name:   "error without stack omits it",
			result: Err("boom", ""),
			want:   `{"status":"error","message":"boom"}`,
		},
		{
			name:   "cancelled with default message",
			result: Cancelled(""),
			want:   `{"status":"cancelled","message":"Task cancelled"}`,
		},
		{
			name:   "cancelled with custom message",
			result: Cancelled("shutting down"),
			want:   `{"status":"cancelled","message":"shutting down"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, tt.result.Serialize(), tt.want)
		})
	}
}

func TestResultSerializeRoundTrip(t *testing.T) {
	serialized := OK(`{"count":3}`).Serialize()

	var decoded struct {
		Status string         `json:"status"`
		Value  map[string]any `json:"value"`
	}
	testutil.AssertNoError(t, json.Unmarshal([]byte(serialized), &decoded))
	testutil.AssertEqual(t, decoded.Status, "ok")
	testutil.AssertEqual(t, decoded.Value["count"], any(float64(3)))
}
