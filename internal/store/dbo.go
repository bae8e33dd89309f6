package store

import (
	"database/sql"
	"fmt"

	"github.com/datallboy/mediaq/internal/domain"
)

const jobColumns = `id, kind, content_id, episode_id, source_url, target_path, status, priority,
	attempt_count, claimed_by, last_error, created_at, started_at, finished_at, updated_at`

// jobDBO maps to the download_jobs table
type jobDBO struct {
	ID           string
	Kind         string
	ContentID    sql.NullInt64
	EpisodeID    sql.NullInt64
	SourceURL    string
	TargetPath   string
	Status       string
	Priority     int
	AttemptCount int
	ClaimedBy    sql.NullString
	LastError    sql.NullString
	CreatedAt    string
	StartedAt    sql.NullString
	FinishedAt   sql.NullString
	UpdatedAt    string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (j *jobDBO) scan(row rowScanner) error {
	return row.Scan(
		&j.ID, &j.Kind, &j.ContentID, &j.EpisodeID, &j.SourceURL, &j.TargetPath, &j.Status, &j.Priority,
		&j.AttemptCount, &j.ClaimedBy, &j.LastError, &j.CreatedAt, &j.StartedAt, &j.FinishedAt, &j.UpdatedAt,
	)
}

// Mapper: DBO to Domain DownloadJob
func (j *jobDBO) ToDomain() (*domain.DownloadJob, error) {
	var contentID, episodeID *int64
	if j.ContentID.Valid {
		contentID = &j.ContentID.Int64
	}
	if j.EpisodeID.Valid {
		episodeID = &j.EpisodeID.Int64
	}
	owner, err := domain.OwnerFromColumns(j.Kind, contentID, episodeID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}

	job := &domain.DownloadJob{
		ID:           j.ID,
		Owner:        owner,
		SourceURL:    j.SourceURL,
		TargetPath:   j.TargetPath,
		Status:       domain.JobStatus(j.Status),
		Priority:     j.Priority,
		AttemptCount: j.AttemptCount,
		ClaimedBy:    j.ClaimedBy.String,
		LastError:    j.LastError.String,
	}
	if t, err := parseTimeString(j.CreatedAt); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTimeString(j.UpdatedAt); err == nil {
		job.UpdatedAt = t
	}
	if j.StartedAt.Valid {
		if t, err := parseTimeString(j.StartedAt.String); err == nil {
			job.StartedAt = &t
		}
	}
	if j.FinishedAt.Valid {
		if t, err := parseTimeString(j.FinishedAt.String); err == nil {
			job.FinishedAt = &t
		}
	}
	return job, nil
}

// contentItemDBO maps to the content_items table
type contentItemDBO struct {
	ID            int64
	Slug          string
	ThumbnailPath sql.NullString
	ThumbnailURL  sql.NullString
	BannerPath    sql.NullString
	BannerURL     sql.NullString
}

func (c *contentItemDBO) ToDomain() *domain.ContentItem {
	return &domain.ContentItem{
		ID:            c.ID,
		Slug:          c.Slug,
		ThumbnailPath: c.ThumbnailPath.String,
		ThumbnailURL:  c.ThumbnailURL.String,
		BannerPath:    c.BannerPath.String,
		BannerURL:     c.BannerURL.String,
	}
}

// episodeDBO maps to the episodes table
type episodeDBO struct {
	ID                int64
	ContentID         int64
	Number            int
	LocalHLSPath      sql.NullString
	EpisodeURL        sql.NullString
	DownloadStatus    sql.NullString
	LastDownloadError sql.NullString
}

func (e *episodeDBO) ToDomain() *domain.Episode {
	return &domain.Episode{
		ID:                e.ID,
		ContentID:         e.ContentID,
		Number:            e.Number,
		LocalHLSPath:      e.LocalHLSPath.String,
		EpisodeURL:        e.EpisodeURL.String,
		DownloadStatus:    domain.JobStatus(e.DownloadStatus.String),
		LastDownloadError: e.LastDownloadError.String,
	}
}
