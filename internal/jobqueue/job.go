// Package jobqueue is the durable, retrying job queue: a single JSONL file
// as the source of truth, a small worker pool executing jobs as
// subprocesses, stale-job reclamation, and webhook notifications.
package jobqueue

import (
	"fmt"
	"time"
)

// SchemaVersion is stamped on every persisted job row.
const SchemaVersion = 1

// Status is a job's stored state. StatusRetrying is the one exception: it
// is a notification-only label for the fail-then-requeue transition and is
// never persisted; the stored status goes back to pending.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether a status ends the job's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Job is one row of the queue file.
type Job struct {
	SchemaVersion int        `json:"schema_version"`
	ID            string     `json:"id"`
	Channel       string     `json:"channel"`
	Video         string     `json:"video"`
	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxRetries    int        `json:"max_retries"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	Result        string     `json:"result,omitempty"`
}

// forceable are the statuses the administrative override may set.
func forceable(s Status) bool {
	return s == StatusPending || s == StatusFailed
}

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// ErrBlocked reports that a mutation was skipped because an advisory scope
// lock covers the queue file. It carries enough to tell the operator who
// to talk to.
type ErrBlocked struct {
	LockID    string
	CreatedBy string
	Scopes    []string
}

func (e *ErrBlocked) Error() string {
	return fmt.Sprintf("queue file is covered by advisory lock %s (created by %s, scopes %v); resolve or wait for expiry",
		e.LockID, e.CreatedBy, e.Scopes)
}
