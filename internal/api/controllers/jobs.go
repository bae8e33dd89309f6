package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/datallboy/mediaq/internal/app"
	"github.com/datallboy/mediaq/internal/domain"
	"github.com/datallboy/mediaq/internal/engine"
	"github.com/labstack/echo/v5"
)

// Processor is the slice of engine.Orchestrator the API triggers.
type Processor interface {
	RunBatch(ctx context.Context, n int) int
}

const maxProcessBatch = 100

type JobsController struct {
	App       *app.Context
	Processor Processor
}

// List handles GET /api/jobs?status=&kind=&limit=
func (ctrl *JobsController) List(c *echo.Context) error {
	var filter domain.JobFilter
	if s := c.QueryParam("status"); s != "" {
		status, ok := domain.ParseJobStatus(s)
		if !ok {
			return badRequest(c, "unknown status "+strconv.Quote(s))
		}
		filter.Status = status
	}
	if k := c.QueryParam("kind"); k != "" {
		kind := domain.JobKind(k)
		if kind != domain.KindImage && kind != domain.KindHLS {
			return badRequest(c, "unknown kind "+strconv.Quote(k))
		}
		filter.Kind = kind
	}
	if l := c.QueryParam("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}
		filter.Limit = limit
	}

	jobs, err := ctrl.App.Store.ListJobs(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	if jobs == nil {
		jobs = []*domain.DownloadJob{}
	}
	return c.JSON(http.StatusOK, JobListResponse{Jobs: jobs, Count: len(jobs)})
}

func (ctrl *JobsController) Show(c *echo.Context) error {
	job, err := ctrl.App.Store.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

func (ctrl *JobsController) EnqueueImage(c *echo.Context) error {
	var req ImageJobRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	role, ok := domain.ParseImageRole(req.Role)
	if !ok {
		return badRequest(c, "role must be thumb or banner")
	}

	id, err := engine.EnqueueImage(c.Request().Context(), ctrl.App.Store, req.ContentID, req.Title, role, req.SourceURL, req.Priority)
	if err != nil {
		return respondError(c, err)
	}
	ctrl.App.Logger.Info("[API] queued image job %s for content %d", id, req.ContentID)
	return c.JSON(http.StatusCreated, EnqueuedResponse{ID: id})
}

func (ctrl *JobsController) EnqueueHLS(c *echo.Context) error {
	var req HLSJobRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Number <= 0 {
		return badRequest(c, "number must be positive")
	}

	id, err := engine.EnqueueEpisode(c.Request().Context(), ctrl.App.Store, req.EpisodeID, req.Title, req.Number, req.SourceURL, req.Priority)
	if err != nil {
		return respondError(c, err)
	}
	ctrl.App.Logger.Info("[API] queued hls job %s for episode %d", id, req.EpisodeID)
	return c.JSON(http.StatusCreated, EnqueuedResponse{ID: id})
}

// Retry handles POST /api/jobs/:id/retry. The failed job is kept and a new
// pending job is created from it.
func (ctrl *JobsController) Retry(c *echo.Context) error {
	id, err := ctrl.App.Store.Requeue(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, EnqueuedResponse{ID: id})
}

// Process handles POST /api/process?n= and runs a batch synchronously.
func (ctrl *JobsController) Process(c *echo.Context) error {
	n := 1
	if v := c.QueryParam("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > maxProcessBatch {
			return badRequest(c, "n must be between 1 and "+strconv.Itoa(maxProcessBatch))
		}
		n = parsed
	}
	processed := ctrl.Processor.RunBatch(c.Request().Context(), n)
	return c.JSON(http.StatusOK, ProcessResponse{Processed: processed})
}

func (ctrl *JobsController) Stats(c *echo.Context) error {
	stats, err := ctrl.App.Store.Stats(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, StatsResponse{Counts: stats, Total: stats.Total()})
}
