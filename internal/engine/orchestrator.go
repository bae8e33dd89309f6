package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime/debug"
	"strings"
	"time"

	"github.com/datallboy/mediaq/internal/app"
	"github.com/datallboy/mediaq/internal/assetpath"
	"github.com/datallboy/mediaq/internal/domain"
	"github.com/datallboy/mediaq/internal/fetch"
	"github.com/datallboy/mediaq/internal/hls"
	"github.com/datallboy/mediaq/internal/infra/logger"
	"github.com/datallboy/mediaq/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

type Options struct {
	PublicBaseURL string
	Concurrency   int
	HLS           hls.Options
}

// Orchestrator claims jobs from the queue, runs them, and reflects each
// outcome into the job row and its owning content entity.
type Orchestrator struct {
	store    app.Store
	remote   hls.Remote
	root     *storage.Root
	fetcher  *hls.Fetcher
	opts     Options
	workerID string
	log      *logger.Logger
}

func NewOrchestrator(store app.Store, remote hls.Remote, root *storage.Root, opts Options, log *logger.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Orchestrator{
		store:    store,
		remote:   remote,
		root:     root,
		fetcher:  hls.NewFetcher(remote, root, opts.HLS, log),
		opts:     opts,
		workerID: uuid.NewString(),
		log:      log,
	}
}

// New builds an Orchestrator from the shared application context.
func New(appCtx *app.Context) (*Orchestrator, error) {
	cfg := appCtx.Config
	root, err := storage.NewRoot(cfg.Storage.Root)
	if err != nil {
		return nil, err
	}
	client := fetch.New(fetch.Options{
		Timeout:           cfg.Fetch.Timeout,
		Attempts:          cfg.Fetch.Attempts,
		UserAgent:         cfg.Fetch.UserAgent,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Burst:             cfg.Fetch.Burst,
		MaxBodyBytes:      cfg.Fetch.MaxBodyBytes,
	}, appCtx.Logger)

	return NewOrchestrator(appCtx.Store, client, root, Options{
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		Concurrency:   cfg.Worker.Concurrency,
		HLS: hls.Options{
			MaxVariants:    cfg.HLS.MaxVariants,
			SegmentWorkers: cfg.HLS.SegmentWorkers,
		},
	}, appCtx.Logger), nil
}

func (o *Orchestrator) WorkerID() string { return o.workerID }

// ProcessOne claims and runs at most one job. It reports whether a job was
// claimed; the job's own success or failure is recorded in the queue.
func (o *Orchestrator) ProcessOne(ctx context.Context) bool {
	job, err := o.store.ClaimNext(ctx, o.workerID)
	if err != nil {
		o.log.Error("[Claim] %v", err)
		return false
	}
	if job == nil {
		return false
	}

	// A claimed job always runs to a recorded outcome, even during shutdown.
	o.run(context.WithoutCancel(ctx), job)
	return true
}

func (o *Orchestrator) run(ctx context.Context, job *domain.DownloadJob) {
	start := time.Now()
	o.log.Info("[Job] %s claimed: %s %s -> %s (attempt %d)",
		job.ID, job.Kind(), job.SourceURL, job.TargetPath, job.AttemptCount)

	if err := o.execute(ctx, job); err != nil {
		o.fail(ctx, job, err)
		return
	}
	o.log.Info("[Job] %s completed in %s", job.ID, time.Since(start).Round(time.Millisecond))
}

func (o *Orchestrator) execute(ctx context.Context, job *domain.DownloadJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Debug("[Job] %s panic stack:\n%s", job.ID, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch job.Kind() {
	case domain.KindImage:
		return o.processImage(ctx, job)
	case domain.KindHLS:
		return o.processHLS(ctx, job)
	default:
		return fmt.Errorf("unsupported job kind %q", job.Kind())
	}
}

func (o *Orchestrator) processImage(ctx context.Context, job *domain.DownloadJob) error {
	contentID, _ := job.Owner.ContentID()
	role, err := assetpath.RoleFromPath(job.TargetPath)
	if err != nil {
		return err
	}

	data, err := o.remote.Bytes(ctx, job.SourceURL)
	if err != nil {
		return err
	}
	if err := o.root.WriteFile(job.TargetPath, data); err != nil {
		return err
	}
	o.log.Debug("[Image] %s: wrote %s to %s", job.ID, humanize.Bytes(uint64(len(data))), job.TargetPath)

	publicURL := o.publicURL(job.TargetPath)
	return o.store.Atomically(ctx, func(tx app.Tx) error {
		if err := tx.SetContentImage(ctx, contentID, role, job.TargetPath, publicURL); err != nil {
			return err
		}
		return tx.Complete(ctx, job.ID)
	})
}

func (o *Orchestrator) processHLS(ctx context.Context, job *domain.DownloadJob) error {
	episodeID, _ := job.Owner.EpisodeID()

	res, err := o.fetcher.FetchAndRewrite(ctx, job.SourceURL, job.TargetPath)
	if err != nil {
		return err
	}
	if n := res.Skipped(); n > 0 {
		o.log.Warn("[HLS] %s: %d segment(s) could not be fetched and were skipped", job.ID, n)
	}

	publicURL := o.publicURL(path.Join(job.TargetPath, hls.IndexPlaylist))
	return o.store.Atomically(ctx, func(tx app.Tx) error {
		if err := tx.SetEpisodeHLS(ctx, episodeID, job.TargetPath, publicURL); err != nil {
			return err
		}
		return tx.Complete(ctx, job.ID)
	})
}

func (o *Orchestrator) fail(ctx context.Context, job *domain.DownloadJob, cause error) {
	msg := cause.Error()
	o.log.Error("[Job] %s failed: %s", job.ID, msg)

	if episodeID, ok := job.Owner.EpisodeID(); ok {
		if err := o.store.SetEpisodeFailure(ctx, episodeID, msg); err != nil {
			o.log.Warn("[Job] %s: could not mark episode %d failed: %v", job.ID, episodeID, err)
		}
	}

	if err := o.store.Fail(ctx, job.ID, msg); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			o.log.Warn("[Job] %s: %v", job.ID, err)
			return
		}
		o.log.Error("[Job] %s: could not record failure: %v", job.ID, err)
	}
}

func (o *Orchestrator) publicURL(rel string) string {
	if o.opts.PublicBaseURL == "" {
		return "/" + rel
	}
	return o.opts.PublicBaseURL + "/" + rel
}
