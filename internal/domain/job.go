package domain

import "time"

// JobStatus enumerates processing-job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job tracks one user-initiated document-processing attempt.
type Job struct {
	ID           string
	UserID       string
	Filename     string
	Status       JobStatus
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}
