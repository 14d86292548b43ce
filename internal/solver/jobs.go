package solver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

// TombstoneJobID marks a job that could not be persisted. Lifecycle calls
// against it are no-ops so the pipeline can proceed without a durable record.
const TombstoneJobID = ""

// JobRecorder wraps the job repository with the best-effort semantics the
// pipeline needs: persistence failures are logged, never propagated.
type JobRecorder struct {
	repo   domain.JobRepository
	logger zerolog.Logger
}

// NewJobRecorder builds a recorder over the given repository. A nil repository
// yields a recorder that only produces tombstones.
func NewJobRecorder(repo domain.JobRepository, logger zerolog.Logger) *JobRecorder {
	return &JobRecorder{repo: repo, logger: logger}
}

// Create registers a new pending job and returns its id, or TombstoneJobID
// when the write fails.
func (r *JobRecorder) Create(ctx context.Context, userID, filename string) string {
	if r.repo == nil {
		return TombstoneJobID
	}
	job := &domain.Job{
		ID:       uuid.NewString(),
		UserID:   userID,
		Filename: filename,
		Status:   domain.JobStatusPending,
	}
	if err := r.repo.Create(ctx, job); err != nil {
		r.logger.Error().Err(err).Str("filename", filename).Msg("job record create failed, proceeding without record")
		return TombstoneJobID
	}
	return job.ID
}

// Start marks the job as processing.
func (r *JobRecorder) Start(ctx context.Context, jobID string) {
	if jobID == TombstoneJobID || r.repo == nil {
		return
	}
	if err := r.repo.MarkProcessing(ctx, jobID); err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Msg("job record start failed")
	}
}

// Complete marks the job completed. Calling it again, or on a tombstone, is a
// no-op.
func (r *JobRecorder) Complete(ctx context.Context, jobID string) {
	r.finalize(ctx, jobID, domain.JobStatusCompleted, "")
}

// Fail marks the job failed with the given message. Idempotent like Complete.
func (r *JobRecorder) Fail(ctx context.Context, jobID, message string) {
	r.finalize(ctx, jobID, domain.JobStatusFailed, message)
}

func (r *JobRecorder) finalize(ctx context.Context, jobID string, status domain.JobStatus, message string) {
	if jobID == TombstoneJobID || r.repo == nil {
		return
	}
	updated, err := r.repo.Finalize(ctx, jobID, status, message, time.Now())
	if err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Str("status", string(status)).Msg("job record finalize failed")
		return
	}
	if !updated {
		r.logger.Debug().Str("job_id", jobID).Str("status", string(status)).Msg("job already terminal, finalize skipped")
	}
}
