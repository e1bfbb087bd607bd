// Package types defines the shared domain types for the collector.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a collection job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobType identifies the kind of work a job performs.
type JobType string

const (
	JobCollectPosts  JobType = "collect_posts"
	JobBackfill      JobType = "backfill"
	JobUpdateMetrics JobType = "update_metrics"
)

// ValidJobType reports whether t is a known job type.
func ValidJobType(t JobType) bool {
	switch t {
	case JobCollectPosts, JobBackfill, JobUpdateMetrics:
		return true
	}
	return false
}

// JobParams holds the parameters a job was created with.
// SinceID is the incremental sync cursor; empty means a full recent-window fetch.
type JobParams struct {
	TargetUsername string `json:"target_username,omitempty"`
	MaxPosts       int    `json:"max_posts,omitempty"`
	SinceID        string `json:"since_id,omitempty"`
	Scheduled      bool   `json:"scheduled,omitempty"`
}

// ErrTerminalState indicates an attempted transition out of a terminal status.
type ErrTerminalState struct {
	ID     uuid.UUID
	Status JobStatus
}

func (e *ErrTerminalState) Error() string {
	return fmt.Sprintf("job %s is already %s", e.ID, e.Status)
}

// ErrInvalidTransition indicates a transition the state machine does not allow.
type ErrInvalidTransition struct {
	ID   uuid.UUID
	From JobStatus
	To   JobStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("job %s cannot transition from %s to %s", e.ID, e.From, e.To)
}

// Job is a durable record of one collection attempt.
type Job struct {
	ID       uuid.UUID `json:"id"`
	JobType  JobType   `json:"job_type"`
	Status   JobStatus `json:"status"`
	Params   JobParams `json:"params"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	PostsCollected int `json:"posts_collected"`
	PostsSkipped   int `json:"posts_skipped"`
	PostsFailed    int `json:"posts_failed"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorDetail  string `json:"error_detail,omitempty"`
	RetryCount   int    `json:"retry_count"`

	SourceUsed      PostSource        `json:"source_used,omitempty"`
	ExternalTaskRef string            `json:"external_task_ref,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// NewJob creates a pending job with a fresh id.
func NewJob(jobType JobType, params JobParams) *Job {
	return &Job{
		ID:        uuid.New(),
		JobType:   jobType,
		Status:    JobPending,
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}
}

// IsTerminal reports whether the job has reached a terminal status.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// MarkStarted transitions the job from pending to running and stamps started_at.
func (j *Job) MarkStarted() error {
	if j.IsTerminal() {
		return &ErrTerminalState{ID: j.ID, Status: j.Status}
	}
	if j.Status != JobPending {
		return &ErrInvalidTransition{ID: j.ID, From: j.Status, To: JobRunning}
	}
	now := time.Now().UTC()
	j.Status = JobRunning
	j.StartedAt = &now
	return nil
}

// MarkCompleted transitions the job from running to completed.
func (j *Job) MarkCompleted() error {
	if j.IsTerminal() {
		return &ErrTerminalState{ID: j.ID, Status: j.Status}
	}
	if j.Status != JobRunning {
		return &ErrInvalidTransition{ID: j.ID, From: j.Status, To: JobCompleted}
	}
	now := time.Now().UTC()
	j.Status = JobCompleted
	j.CompletedAt = &now
	return nil
}

// MarkFailed transitions the job to failed and records the error.
// Allowed from pending (dispatch failure) or running.
func (j *Job) MarkFailed(message, detail string) error {
	if j.IsTerminal() {
		return &ErrTerminalState{ID: j.ID, Status: j.Status}
	}
	now := time.Now().UTC()
	j.Status = JobFailed
	j.CompletedAt = &now
	j.ErrorMessage = message
	j.ErrorDetail = detail
	return nil
}

// MarkCancelled transitions the job to cancelled. Counters and work already
// committed are left untouched.
func (j *Job) MarkCancelled() error {
	if j.IsTerminal() {
		return &ErrTerminalState{ID: j.ID, Status: j.Status}
	}
	now := time.Now().UTC()
	j.Status = JobCancelled
	j.CompletedAt = &now
	return nil
}

// Duration returns the elapsed run time. It is zero (false) until the job has
// started; for a running job it is measured against the current clock.
func (j *Job) Duration() (time.Duration, bool) {
	if j.StartedAt == nil {
		return 0, false
	}
	end := time.Now().UTC()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt), true
}

// SuccessRate returns posts_collected / (posts_collected + posts_failed),
// in percent. Zero when nothing was processed.
func (j *Job) SuccessRate() float64 {
	total := j.PostsCollected + j.PostsFailed
	if total == 0 {
		return 0
	}
	return float64(j.PostsCollected) / float64(total) * 100
}
