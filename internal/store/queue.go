package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/datallboy/mediaq/internal/domain"
	"github.com/segmentio/ksuid"
)

const defaultListLimit = 100

func (s *PersistentStore) Enqueue(ctx context.Context, req domain.EnqueueRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	id := ksuid.New().String()
	contentID, episodeID := req.Owner.Columns()
	now := nowString()

	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO download_jobs (
				id, kind, content_id, episode_id, source_url, target_path,
				status, priority, attempt_count, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, 0, ?, ?)`,
			id, string(req.Owner.Kind()), nullableInt64(contentID), nullableInt64(episodeID),
			req.SourceURL, req.TargetPath, req.Priority, now, now,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return id, nil
}

// ClaimNext moves the highest-priority, oldest pending job to in_progress in
// a single UPDATE ... RETURNING statement. SQLite serializes writers, so two
// callers can never both match the same row. Returns nil, nil when idle.
func (s *PersistentStore) ClaimNext(ctx context.Context, workerID string) (*domain.DownloadJob, error) {
	var dbo jobDBO
	var found bool

	err := retryOnBusy(ctx, func() error {
		now := nowString()
		row := s.db.QueryRowContext(ctx, `
			UPDATE download_jobs
			SET status = 'in_progress',
				started_at = ?,
				updated_at = ?,
				attempt_count = attempt_count + 1,
				claimed_by = ?
			WHERE seq = (
				SELECT seq FROM download_jobs
				WHERE status = 'pending'
				ORDER BY priority DESC, created_at ASC, seq ASC
				LIMIT 1
			) AND status = 'pending'
			RETURNING `+jobColumns,
			now, now, nullableString(workerID),
		)
		err := dbo.scan(row)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if !found {
		return nil, nil
	}
	return dbo.ToDomain()
}

func (s *PersistentStore) Complete(ctx context.Context, id string) error {
	return completeJob(ctx, s.db, id)
}

func (s *PersistentStore) Fail(ctx context.Context, id, reason string) error {
	return retryOnBusy(ctx, func() error {
		now := nowString()
		res, err := s.db.ExecContext(ctx, `
			UPDATE download_jobs
			SET status = 'failed', last_error = ?, finished_at = ?, updated_at = ?
			WHERE id = ? AND status = 'in_progress'`,
			reason, now, now, id,
		)
		if err != nil {
			return err
		}
		return checkTransition(ctx, s.db, res, id, domain.StatusFailed)
	})
}

func completeJob(ctx context.Context, q querier, id string) error {
	return retryOnBusy(ctx, func() error {
		now := nowString()
		res, err := q.ExecContext(ctx, `
			UPDATE download_jobs
			SET status = 'completed', finished_at = ?, updated_at = ?
			WHERE id = ? AND status = 'in_progress'`,
			now, now, id,
		)
		if err != nil {
			return err
		}
		return checkTransition(ctx, q, res, id, domain.StatusCompleted)
	})
}

// checkTransition turns a zero-row conditional update into ErrNotFound or
// ErrInvalidTransition.
func checkTransition(ctx context.Context, q querier, res sql.Result, id string, to domain.JobStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current string
	err = q.QueryRowContext(ctx, `SELECT status FROM download_jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s, cannot move to %s", domain.ErrInvalidTransition, id, current, to)
}

func (s *PersistentStore) GetJob(ctx context.Context, id string) (*domain.DownloadJob, error) {
	var dbo jobDBO
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM download_jobs WHERE id = ? LIMIT 1`, id)
	if err := dbo.scan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	return dbo.ToDomain()
}

// ListJobs returns the newest jobs first.
func (s *PersistentStore) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.DownloadJob, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + jobColumns + ` FROM download_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.DownloadJob
	for rows.Next() {
		var dbo jobDBO
		if err := dbo.scan(rows); err != nil {
			return nil, err
		}
		job, err := dbo.ToDomain()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *PersistentStore) Stats(ctx context.Context) (domain.QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM download_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	stats := domain.QueueStats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats[domain.JobStatus(status)] = n
	}
	return stats, rows.Err()
}

// ResetStuck returns in_progress jobs claimed before startedBefore to pending.
// Attempt counts are kept. Operators call this explicitly; nothing in the
// claim path reclaims jobs on its own.
func (s *PersistentStore) ResetStuck(ctx context.Context, startedBefore time.Time) (int64, error) {
	var n int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE download_jobs
			SET status = 'pending', claimed_by = NULL, started_at = NULL, updated_at = ?
			WHERE status = 'in_progress' AND started_at < ?`,
			nowString(), formatTime(startedBefore),
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck jobs: %w", err)
	}
	return n, nil
}

// Requeue enqueues a fresh pending copy of a failed job. The failed job is
// left untouched as history.
func (s *PersistentStore) Requeue(ctx context.Context, id string) (string, error) {
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
