// Package jobs tracks pipeline executions: one EvaluationJob per ingested
// recording, moving one-way from Running into a terminal state.
package jobs

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// State is the lifecycle state of an evaluation job.
type State string

const (
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateTimedOut  State = "TIMED_OUT"
	StateAborted   State = "ABORTED"
)

// Terminal reports whether the state is an end state. Terminal jobs are
// never mutated again.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut || s == StateAborted
}

// Status maps the internal state onto the closed client-facing set.
func (s State) Status() string {
	switch s {
	case StateRunning:
		return "processing"
	case StateSucceeded:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timeout"
	default:
		return "error"
	}
}

// Job is one pipeline execution.
type Job struct {
	ID           string     `json:"id"`
	ExecutionRef string     `json:"executionRef"`
	FileID       string     `json:"fileId"`
	FileName     string     `json:"fileName"`
	State        State      `json:"state"`
	StartedAt    time.Time  `json:"startedAt"`
	StoppedAt    *time.Time `json:"stoppedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// IsComplete reports whether the job reached a terminal state.
func (j *Job) IsComplete() bool { return j.State.Terminal() }

// IsSuccessful reports whether the job ended in success.
func (j *Job) IsSuccessful() bool { return j.State == StateSucceeded }

var jobIDCharRegex = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// NewJobID derives a job identity from the source object key and the
// creation timestamp. The timestamp keeps reprocessed files from colliding:
// a bare filename identity produces a duplicate-job error the second time
// the same recording is uploaded.
func NewJobID(sourceKey string, ts time.Time) string {
	base := sourceKey
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = jobIDCharRegex.ReplaceAllString(base, "-")
	return fmt.Sprintf("%s-%d", base, ts.UnixMilli())
}
