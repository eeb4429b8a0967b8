// Package repo provides Postgres and in-memory implementations of
// rag.JobRepository and rag.ConversationRepository.
package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// PostgresJobRepository persists ingestion jobs in Postgres.
type PostgresJobRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresJobRepository constructs the repository.
func NewPostgresJobRepository(pool *pgxpool.Pool) *PostgresJobRepository {
	return &PostgresJobRepository{pool: pool}
}

// Create inserts a new job row.
func (r *PostgresJobRepository) Create(ctx context.Context, job rag.Job) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ingestion_jobs (id, document_id, status, job_type, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, job.DocumentID, job.Status.String(), job.JobType, job.ErrorMessage, job.CreatedAt, job.UpdatedAt)
	return err
}

// UpdateStatus advances a job's status, called once per pipeline stage
// transition.
func (r *PostgresJobRepository) UpdateStatus(ctx context.Context, id rag.JobID, status rag.JobStatus, errMsg *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE ingestion_jobs
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3
	`, status.String(), errMsg, id)
	return err
}

// Get fetches a job by id.
func (r *PostgresJobRepository) Get(ctx context.Context, id rag.JobID) (rag.Job, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, document_id, status, job_type, error_message, created_at, updated_at
		FROM ingestion_jobs
		WHERE id = $1
	`, id)
	var (
		job        rag.Job
		statusName string
	)
	if err := row.Scan(&job.ID, &job.DocumentID, &statusName, &job.JobType, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return rag.Job{}, false, nil
		}
		return rag.Job{}, false, err
	}
	status, err := rag.ParseJobStatus(statusName)
	if err != nil {
		return rag.Job{}, false, err
	}
	job.Status = status
	return job, true, nil
}

var _ rag.JobRepository = (*PostgresJobRepository)(nil)
