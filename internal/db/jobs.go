package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

const jobColumns = `id, job_type, status, params, created_at, started_at, completed_at,
	posts_collected, posts_skipped, posts_failed, error_message, error_detail,
	retry_count, source_used, external_task_ref, metadata`

// CreateJob inserts a new job row.
func (db *DB) CreateJob(ctx context.Context, job *types.Job) error {
	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal job params: %w", err)
	}
	metadataJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal job metadata: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO jobs (id, job_type, status, params, created_at, posts_collected,
		                   posts_skipped, posts_failed, retry_count, external_task_ref, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`,
		job.ID, job.JobType, job.Status, paramsJSON, job.CreatedAt,
		job.PostsCollected, job.PostsSkipped, job.PostsFailed,
		job.RetryCount, job.ExternalTaskRef, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by id. Returns nil when no row exists.
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJob persists the mutable fields of a job.
func (db *DB) UpdateJob(ctx context.Context, job *types.Job) error {
	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal job params: %w", err)
	}
	metadataJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal job metadata: %w", err)
	}

	result, err := db.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, params = $3, started_at = $4, completed_at = $5,
		        posts_collected = $6, posts_skipped = $7, posts_failed = $8,
		        error_message = NULLIF($9, ''), error_detail = NULLIF($10, ''),
		        retry_count = $11, source_used = NULLIF($12, ''),
		        external_task_ref = NULLIF($13, ''), metadata = $14
		 WHERE id = $1`,
		job.ID, job.Status, paramsJSON, job.StartedAt, job.CompletedAt,
		job.PostsCollected, job.PostsSkipped, job.PostsFailed,
		job.ErrorMessage, job.ErrorDetail, job.RetryCount,
		string(job.SourceUsed), job.ExternalTaskRef, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("job not found: %s", job.ID)
	}
	return nil
}

// ListJobs retrieves jobs ordered by creation time descending.
func (db *DB) ListJobs(ctx context.Context, filters store.JobFilters) ([]types.Job, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// CountRunningJobs counts jobs of the given type currently running.
func (db *DB) CountRunningJobs(ctx context.Context, jobType types.JobType) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE job_type = $1 AND status = $2`,
		jobType, types.JobRunning,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count running jobs: %w", err)
	}
	return count, nil
}

// LatestCompletedJob returns the most recently completed job of the given
// type, or nil when none exists.
func (db *DB) LatestCompletedJob(ctx context.Context, jobType types.JobType) (*types.Job, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE job_type = $1 AND status = $2
		 ORDER BY completed_at DESC LIMIT 1`,
		jobType, types.JobCompleted)

	job, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest completed job: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var (
		j            types.Job
		paramsJSON   []byte
		metadataJSON []byte
		errMsg       *string
		errDetail    *string
		sourceUsed   *string
		taskRef      *string
	)

	err := row.Scan(&j.ID, &j.JobType, &j.Status, &paramsJSON, &j.CreatedAt,
		&j.StartedAt, &j.CompletedAt, &j.PostsCollected, &j.PostsSkipped,
		&j.PostsFailed, &errMsg, &errDetail, &j.RetryCount, &sourceUsed,
		&taskRef, &metadataJSON)
	if err != nil {
		return nil, err
	}

	if paramsJSON != nil {
		_ = json.Unmarshal(paramsJSON, &j.Params)
	}
	if metadataJSON != nil {
		_ = json.Unmarshal(metadataJSON, &j.Metadata)
	}
	if errMsg != nil {
		j.ErrorMessage = *errMsg
	}
	if errDetail != nil {
		j.ErrorDetail = *errDetail
	}
	if sourceUsed != nil {
		j.SourceUsed = types.PostSource(*sourceUsed)
	}
	if taskRef != nil {
		j.ExternalTaskRef = *taskRef
	}

	return &j, nil
}
