package app

import (
	"context"
	"time"

	"github.com/datallboy/mediaq/internal/domain"
	"github.com/datallboy/mediaq/internal/infra/config"
	"github.com/datallboy/mediaq/internal/infra/logger"
)

// Tx is the content and queue surface available inside Store.Atomically.
// Every call made through it commits or rolls back together.
type Tx interface {
	SetContentImage(ctx context.Context, contentID int64, role domain.ImageRole, localPath, publicURL string) error
	SetEpisodeHLS(ctx context.Context, episodeID int64, localPath, publicURL string) error
	Complete(ctx context.Context, jobID string) error
}

// Queue is the job table contract shared by every store driver.
type Queue interface {
	Enqueue(ctx context.Context, req domain.EnqueueRequest) (string, error)
	ClaimNext(ctx context.Context, workerID string) (*domain.DownloadJob, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, reason string) error

	GetJob(ctx context.Context, id string) (*domain.DownloadJob, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.DownloadJob, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
	ResetStuck(ctx context.Context, startedBefore time.Time) (int64, error)
	Requeue(ctx context.Context, id string) (string, error)
}

// Catalog is the minimal content-entity store the pipeline reflects results into.
type Catalog interface {
	CreateContentItem(ctx context.Context, slug string) (int64, error)
	GetContentItem(ctx context.Context, id int64) (*domain.ContentItem, error)
	CreateEpisode(ctx context.Context, contentID int64, number int) (int64, error)
	GetEpisode(ctx context.Context, id int64) (*domain.Episode, error)
	SetEpisodeFailure(ctx context.Context, episodeID int64, message string) error
}

type Store interface {
	Queue
	Catalog
	Atomically(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Context holds the core environment and shared resources for mediaq.
type Context struct {
	Config *config.Config
	Logger *logger.Logger
	Store  Store
}

func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}

func (c *Context) Close() error {
	if c.Store != nil {
		return c.Store.Close()
	}
	return nil
}
