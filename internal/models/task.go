// Package models defines data structures shared by the tablerag client.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind selects the task namespace used for status lookups: /{kind}/tasks/{id}.
type Kind string

const (
	KindData       Kind = "data"
	KindCleanup    Kind = "cleanup"
	KindEmbeddings Kind = "embeddings"
)

// Valid reports whether k is a task kind the server knows about.
func (k Kind) Valid() bool {
	switch k {
	case KindData, KindCleanup, KindEmbeddings:
		return true
	}
	return false
}

// ParseKind converts a user supplied string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown task kind %q (expected data, cleanup or embeddings)", s)
	}
	return k, nil
}

// Status is the lifecycle state of a server-side task.
// Unknown values are kept verbatim and treated as non-terminal.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusQueued    Status = "queued" // server spelling of submitted
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// TaskKey identifies a task. Ids are only unique within a kind.
type TaskKey struct {
	Kind Kind
	ID   string
}

func (k TaskKey) String() string {
	return string(k.Kind) + "/" + k.ID
}

// Task is the client-side view of a server task as of the last status read.
type Task struct {
	Kind      Kind            `json:"kind"`
	ID        string          `json:"task_id"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt float64         `json:"created_at,omitempty"`
	StartedAt float64         `json:"started_at,omitempty"`
	EndedAt   float64         `json:"ended_at,omitempty"`

	// Payload is the full decoded body of the last status read.
	Payload map[string]interface{} `json:"-"`
}

// Key returns the identity of the task.
func (t *Task) Key() TaskKey {
	return TaskKey{Kind: t.Kind, ID: t.ID}
}

// NewSubmittedTask builds the initial snapshot right after a submission was accepted.
func NewSubmittedTask(kind Kind, resp *SubmitResponse) *Task {
	status := resp.Status
	if status == "" || status == StatusQueued {
		status = StatusSubmitted
	}
	return &Task{Kind: kind, ID: resp.TaskID, Status: status}
}

// Elapsed returns how long the task ran, or zero when the server did not report both ends.
func (t *Task) Elapsed() time.Duration {
	if t.StartedAt == 0 || t.EndedAt == 0 || t.EndedAt < t.StartedAt {
		return 0
	}
	return time.Duration((t.EndedAt - t.StartedAt) * float64(time.Second))
}

// HasResult reports whether the server attached a non-null result.
func (t *Task) HasResult() bool {
	return len(t.Result) > 0 && string(t.Result) != "null"
}

// SubmitResponse is returned by every task-creating endpoint.
type SubmitResponse struct {
	TaskID     string   `json:"task_id"`
	Status     Status   `json:"status,omitempty"`
	SavedPath  string   `json:"saved_path,omitempty"`
	SavedPaths []string `json:"saved_paths,omitempty"`
}
