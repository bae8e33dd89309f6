package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/datallboy/mediaq/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/segmentio/ksuid"
)

const (
	jobColumns = `id, kind, content_id, episode_id, source_url, target_path, status, priority,
		attempt_count, claimed_by, last_error, created_at, started_at, finished_at, updated_at`

	defaultListLimit = 100
)

func scanJob(row pgx.Row) (*domain.DownloadJob, error) {
	var (
		kind, status         string
		contentID, episodeID *int64
		claimedBy, lastError *string
		job                  domain.DownloadJob
	)
	err := row.Scan(
		&job.ID, &kind, &contentID, &episodeID, &job.SourceURL, &job.TargetPath, &status, &job.Priority,
		&job.AttemptCount, &claimedBy, &lastError, &job.CreatedAt, &job.StartedAt, &job.FinishedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	owner, err := domain.OwnerFromColumns(kind, contentID, episodeID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.Owner = owner
	job.Status = domain.JobStatus(status)
	if claimedBy != nil {
		job.ClaimedBy = *claimedBy
	}
	if lastError != nil {
		job.LastError = *lastError
	}
	return &job, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (s *Store) Enqueue(ctx context.Context, req domain.EnqueueRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	id := ksuid.New().String()
	contentID, episodeID := req.Owner.Columns()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO download_jobs (id, kind, content_id, episode_id, source_url, target_path, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, string(req.Owner.Kind()), contentID, episodeID, req.SourceURL, req.TargetPath, req.Priority,
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, nil
}

// ClaimNext locks the best pending row with SKIP LOCKED so concurrent
// workers in other processes move on to the next row instead of blocking.
func (s *Store) ClaimNext(ctx context.Context, workerID string) (*domain.DownloadJob, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE download_jobs
		SET status = 'in_progress',
			started_at = clock_timestamp(),
			updated_at = clock_timestamp(),
			attempt_count = attempt_count + 1,
			claimed_by = $1
		WHERE seq = (
			SELECT seq FROM download_jobs
			WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC, seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND status = 'pending'
		RETURNING `+jobColumns,
		nullable(workerID),
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

func (s *Store) Complete(ctx context.Context, id string) error {
	return completeJob(ctx, s.pool, id)
}

func (s *Store) Fail(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE download_jobs
		SET status = 'failed', last_error = $2, finished_at = clock_timestamp(), updated_at = clock_timestamp()
		WHERE id = $1 AND status = 'in_progress'`,
		id, reason,
	)
	if err != nil {
		return err
	}
	return checkTransition(ctx, s.pool, tag, id, domain.StatusFailed)
}

func completeJob(ctx context.Context, q querier, id string) error {
	tag, err := q.Exec(ctx, `
		UPDATE download_jobs
		SET status = 'completed', finished_at = clock_timestamp(), updated_at = clock_timestamp()
		WHERE id = $1 AND status = 'in_progress'`,
		id,
	)
	if err != nil {
		return err
	}
	return checkTransition(ctx, q, tag, id, domain.StatusCompleted)
}

func checkTransition(ctx context.Context, q querier, tag pgconn.CommandTag, id string, to domain.JobStatus) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var current string
	err := q.QueryRow(ctx, `SELECT status FROM download_jobs WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s, cannot move to %s", domain.ErrInvalidTransition, id, current, to)
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.DownloadJob, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM download_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.DownloadJob, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + jobColumns + ` FROM download_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY seq DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.DownloadJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (domain.QueueStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM download_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	stats := domain.QueueStats{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[domain.JobStatus(status)] = int(n)
	}
	return stats, rows.Err()
}

func (s *Store) ResetStuck(ctx context.Context, startedBefore time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE download_jobs
		SET status = 'pending', claimed_by = NULL, started_at = NULL, updated_at = clock_timestamp()
		WHERE status = 'in_progress' AND started_at < $1`,
		startedBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Requeue(ctx context.Context, id string) (string, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != domain.StatusFailed {
		return "", fmt.Errorf("%w: job %s is %s, only failed jobs can be requeued", domain.ErrInvalidTransition, id, job.Status)
	}
	return s.Enqueue(ctx, domain.EnqueueRequest{
		Owner:      job.Owner,
		SourceURL:  job.SourceURL,
		TargetPath: job.TargetPath,
		Priority:   job.Priority,
	})
}
