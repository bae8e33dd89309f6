package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/datallboy/mediaq/internal/app"
	"github.com/datallboy/mediaq/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func (s *Store) CreateContentItem(ctx context.Context, slug string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, `INSERT INTO content_items (slug) VALUES ($1) RETURNING id`, slug).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create content item: %w", err)
	}
	return id, nil
}

func (s *Store) GetContentItem(ctx context.Context, id int64) (*domain.ContentItem, error) {
	var item domain.ContentItem
	var thumbPath, thumbURL, bannerPath, bannerURL *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, slug, thumbnail_path, thumbnail_url, banner_path, banner_url
		FROM content_items WHERE id = $1`, id,
	).Scan(&item.ID, &item.Slug, &thumbPath, &thumbURL, &bannerPath, &bannerURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("content item %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content item: %w", err)
	}
	item.ThumbnailPath = deref(thumbPath)
	item.ThumbnailURL = deref(thumbURL)
	item.BannerPath = deref(bannerPath)
	item.BannerURL = deref(bannerURL)
	return &item, nil
}

func (s *Store) CreateEpisode(ctx context.Context, contentID int64, number int) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO episodes (content_id, number) VALUES ($1, $2)
		ON CONFLICT (content_id, number) DO UPDATE SET number = excluded.number
		RETURNING id`,
		contentID, number,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create episode: %w", err)
	}
	return id, nil
}

func (s *Store) GetEpisode(ctx context.Context, id int64) (*domain.Episode, error) {
	var ep domain.Episode
	var localPath, episodeURL, status, lastErr *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, content_id, number, local_hls_path, episode_url, download_status, last_download_error
		FROM episodes WHERE id = $1`, id,
	).Scan(&ep.ID, &ep.ContentID, &ep.Number, &localPath, &episodeURL, &status, &lastErr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("episode %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch episode: %w", err)
	}
	ep.LocalHLSPath = deref(localPath)
	ep.EpisodeURL = deref(episodeURL)
	ep.DownloadStatus = domain.JobStatus(deref(status))
	ep.LastDownloadError = deref(lastErr)
	return &ep, nil
}

func (s *Store) SetEpisodeFailure(ctx context.Context, episodeID int64, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE episodes
		SET download_status = 'failed', last_download_error = $2, updated_at = now()
		WHERE id = $1`,
		episodeID, message,
	)
	if err != nil {
		return err
	}
	return requireRow(tag, "episode", episodeID)
}

func (s *Store) Atomically(ctx context.Context, fn func(app.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SetContentImage(ctx context.Context, contentID int64, role domain.ImageRole, localPath, publicURL string) error {
	var query string
	switch role {
	case domain.RoleThumb:
		query = `UPDATE content_items SET thumbnail_path = $2, thumbnail_url = $3, updated_at = now() WHERE id = $1`
	case domain.RoleBanner:
		query = `UPDATE content_items SET banner_path = $2, banner_url = $3, updated_at = now() WHERE id = $1`
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}
	tag, err := t.tx.Exec(ctx, query, contentID, localPath, publicURL)
	if err != nil {
		return err
	}
	return requireRow(tag, "content item", contentID)
}

func (t *pgTx) SetEpisodeHLS(ctx context.Context, episodeID int64, localPath, publicURL string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE episodes
		SET local_hls_path = $2, episode_url = $3, download_status = 'completed',
			last_download_error = NULL, updated_at = now()
		WHERE id = $1`,
		episodeID, localPath, publicURL,
	)
	if err != nil {
		return err
	}
	return requireRow(tag, "episode", episodeID)
}

func (t *pgTx) Complete(ctx context.Context, jobID string) error {
	return completeJob(ctx, t.tx, jobID)
}

func requireRow(tag pgconn.CommandTag, what string, id int64) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", what, id, domain.ErrNotFound)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
