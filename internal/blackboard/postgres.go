package blackboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gsaplatform/orchestrator/internal/domain"
)

// IsNotFound returns true if err indicates a record was not found.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if err == pgx.ErrNoRows {
		return true
	}
	return strings.Contains(err.Error(), "not found")
}

// JobStore is the durable leg of the Blackboard: a row-per-job audit
// trail that mirrors the hot Redis status record, used for post-hoc
// inspection after a record's Redis TTL has expired.
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore connects to Postgres using the given DSN.
func NewJobStore(ctx context.Context, dsn string) (*JobStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("blackboard: parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("blackboard: connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("blackboard: ping postgres: %w", err)
	}

	return &JobStore{pool: pool}, nil
}

func (s *JobStore) Close() { s.pool.Close() }

func (s *JobStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// RecordJob inserts the audit row for a newly admitted job.
func (s *JobStore) RecordJob(ctx context.Context, j *domain.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (job_id, kind, state, progress, description, payload_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, j.JobID, string(j.Kind), string(j.State), j.Progress, j.Description, j.PayloadRef, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("blackboard: record job %s: %w", j.JobID, err)
	}
	return nil
}

// UpdateJobState mirrors a status transition already applied to Redis.
// It is advisory — the durable row always trails the Redis record — so
// failures here are logged by the caller, not treated as fatal to the
// worker's progress.
func (s *JobStore) UpdateJobState(ctx context.Context, jobID string, state domain.JobState, progress float64, description, resultRef, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, progress = $3, description = $4, result_ref = $5, error = $6,
			completed_at = CASE WHEN $2 IN ('complete','failed') THEN now() ELSE completed_at END
		WHERE job_id = $1
	`, jobID, string(state), progress, description, resultRef, errMsg)
	if err != nil {
		return fmt.Errorf("blackboard: update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("blackboard: update job %s: not found", jobID)
	}
	return nil
}

// GetJob fetches the durable row for a job, used as a fallback when the
// Redis record has expired.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var j domain.Job
	var kind, state string
	err := s.pool.QueryRow(ctx, `
		SELECT job_id, kind, state, progress, description, payload_ref, result_ref, error, created_at
		FROM jobs WHERE job_id = $1
	`, jobID).Scan(&j.JobID, &kind, &state, &j.Progress, &j.Description, &j.PayloadRef, &j.ResultRef, &j.Error, &j.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("blackboard: job %s: not found", jobID)
		}
		return nil, fmt.Errorf("blackboard: get job %s: %w", jobID, err)
	}
	j.Kind = domain.JobKind(kind)
	j.State = domain.JobState(state)
	return &j, nil
}

// RecordSearchQuery appends an entry to the catalog search-history table,
// then trims the table to its 500 most recent entries across all query
// texts.
func (s *JobStore) RecordSearchQuery(ctx context.Context, query string, resultCount int, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("blackboard: begin search history tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO search_history (query, result_count, searched_at) VALUES ($1, $2, $3)
	`, query, resultCount, at); err != nil {
		return fmt.Errorf("blackboard: insert search history: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM search_history WHERE id NOT IN (
			SELECT id FROM search_history ORDER BY searched_at DESC LIMIT 500
		)
	`); err != nil {
		return fmt.Errorf("blackboard: trim search history: %w", err)
	}

	return tx.Commit(ctx)
}
