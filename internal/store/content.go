package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/datallboy/mediaq/internal/app"
	"github.com/datallboy/mediaq/internal/domain"
)

func (s *PersistentStore) CreateContentItem(ctx context.Context, slug string) (int64, error) {
	var id int64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`INSERT INTO content_items (slug, updated_at) VALUES (?, ?) RETURNING id`,
			slug, nowString(),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create content item: %w", err)
	}
	return id, nil
}

func (s *PersistentStore) GetContentItem(ctx context.Context, id int64) (*domain.ContentItem, error) {
	var dbo contentItemDBO
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, thumbnail_path, thumbnail_url, banner_path, banner_url
		FROM content_items WHERE id = ?`, id,
	).Scan(&dbo.ID, &dbo.Slug, &dbo.ThumbnailPath, &dbo.ThumbnailURL, &dbo.BannerPath, &dbo.BannerURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content item %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content item: %w", err)
	}
	return dbo.ToDomain(), nil
}

// CreateEpisode inserts the episode or returns the existing id for the same
// (content, number) pair.
func (s *PersistentStore) CreateEpisode(ctx context.Context, contentID int64, number int) (int64, error) {
	var id int64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO episodes (content_id, number, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(content_id, number) DO UPDATE SET number = excluded.number
			RETURNING id`,
			contentID, number, nowString(),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create episode: %w", err)
	}
	return id, nil
}

func (s *PersistentStore) GetEpisode(ctx context.Context, id int64) (*domain.Episode, error) {
	var dbo episodeDBO
	err := s.db.QueryRowContext(ctx, `
		SELECT id, content_id, number, local_hls_path, episode_url, download_status, last_download_error
		FROM episodes WHERE id = ?`, id,
	).Scan(&dbo.ID, &dbo.ContentID, &dbo.Number, &dbo.LocalHLSPath, &dbo.EpisodeURL, &dbo.DownloadStatus, &dbo.LastDownloadError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch episode: %w", err)
	}
	return dbo.ToDomain(), nil
}

// SetEpisodeFailure mirrors a failed HLS job onto its episode. It runs
// outside any queue transaction so it is recorded even if Fail itself errors.
func (s *PersistentStore) SetEpisodeFailure(ctx context.Context, episodeID int64, message string) error {
	return retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE episodes
			SET download_status = 'failed', last_download_error = ?, updated_at = ?
			WHERE id = ?`,
			message, nowString(), episodeID,
		)
		if err != nil {
			return err
		}
		return requireRow(res, "episode", episodeID)
	})
}

// Atomically runs fn inside one transaction. Any error from fn rolls back
// every write made through the Tx.
func (s *PersistentStore) Atomically(ctx context.Context, fn func(app.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := fn(&sqliteTx{tx: tx}); err != nil {
			return err
		}
		return tx.Commit()
	})
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) SetContentImage(ctx context.Context, contentID int64, role domain.ImageRole, localPath, publicURL string) error {
	var query string
	switch role {
	case domain.RoleThumb:
		query = `UPDATE content_items SET thumbnail_path = ?, thumbnail_url = ?, updated_at = ? WHERE id = ?`
	case domain.RoleBanner:
		query = `UPDATE content_items SET banner_path = ?, banner_url = ?, updated_at = ? WHERE id = ?`
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}

	res, err := t.tx.ExecContext(ctx, query, localPath, publicURL, nowString(), contentID)
	if err != nil {
		return err
	}
	return requireRow(res, "content item", contentID)
}

func (t *sqliteTx) SetEpisodeHLS(ctx context.Context, episodeID int64, localPath, publicURL string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE episodes
		SET local_hls_path = ?, episode_url = ?, download_status = 'completed',
			last_download_error = NULL, updated_at = ?
		WHERE id = ?`,
		localPath, publicURL, nowString(), episodeID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, "episode", episodeID)
}

func (t *sqliteTx) Complete(ctx context.Context, jobID string) error {
	return completeJob(ctx, t.tx, jobID)
}

func requireRow(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, domain.ErrNotFound)
	}
	return nil
}
