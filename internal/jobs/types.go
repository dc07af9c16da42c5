package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeMessage represents one inbound chat message.
	JobTypeMessage JobType = "message"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Voice describes a voice note attached to a message.
type Voice struct {
	FileID          string `json:"file_id"`
	DurationSeconds int    `json:"duration_seconds"`
}

// MessageJob is a single inbound Telegram message waiting to be handled.
// Message jobs run at most once: a failed job is recorded, never replayed,
// so the user never receives a second reply.
type MessageJob struct {
	JobID          string `json:"job_id"`
	ChatID         int64  `json:"chat_id"`
	TelegramUserID int64  `json:"telegram_user_id"`

	// Text holds the message text including any /command.
	Text  string `json:"text,omitempty"`
	Voice *Voice `json:"voice,omitempty"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *MessageJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *MessageJob) GetType() JobType {
	return JobTypeMessage
}

// GetStatus implements the Job interface.
func (j *MessageJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishMessage enqueues an inbound message.
	PublishMessage(ctx context.Context, job *MessageJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
type JobHandler func(ctx context.Context, job Job) error

// JobStore keeps a history of jobs for the status endpoints.
type JobStore interface {
	SaveJob(ctx context.Context, job *MessageJob) error
	GetJob(ctx context.Context, jobID string) (*MessageJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*MessageJob, error)
}

// JobFilter selects jobs in ListJobs. Zero values match everything.
type JobFilter struct {
	TelegramUserID int64
	Status         JobStatus
	Limit          int
	Offset         int
}
