package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, user_id, filename, status, error_message)
VALUES ($1, $2, $3, $4, NULLIF($5, ''));
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Filename,
		job.Status,
		job.ErrorMessage,
	)
	return err
}

// MarkProcessing moves a pending job into the processing state.
func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string) error {
	query := `UPDATE jobs SET status = 'processing' WHERE id = $1 AND status = 'pending';`
	_, err := r.pool.Exec(ctx, query, jobID)
	return err
}

// Finalize writes a terminal status, skipping rows that are already terminal.
func (r *JobRepositoryPG) Finalize(ctx context.Context, jobID string, status domain.JobStatus, errMsg string, completedAt time.Time) (bool, error) {
	query := `
UPDATE jobs
SET status = $2,
    error_message = NULLIF($3, ''),
    completed_at = $4
WHERE id = $1 AND status NOT IN ('completed', 'failed');
`
	tag, err := r.pool.Exec(ctx, query, jobID, status, errMsg, completedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, user_id, filename, status, COALESCE(error_message, ''), created_at, completed_at
FROM jobs
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, jobID)
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Filename,
		&job.Status,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
