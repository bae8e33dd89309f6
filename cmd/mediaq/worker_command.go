package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/datallboy/mediaq/internal/api"
	"github.com/datallboy/mediaq/internal/app"
	"github.com/datallboy/mediaq/internal/engine"
	"github.com/datallboy/mediaq/internal/scheduler"
	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var withAPI bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs on the configured schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			appCtx, orch, err := ctx.orchestrator(runCtx)
			if err != nil {
				return err
			}

			sched, err := scheduler.New(orch, appCtx.Store, appCtx.Config.Worker, appCtx.Logger)
			if err != nil {
				return err
			}
			appCtx.Logger.Info("[Worker] %s starting", orch.WorkerID())
			sched.Start(runCtx)

			var srv *http.Server
			if withAPI || appCtx.Config.API.Enabled {
				srv = startAPI(appCtx, orch)
			}

			<-runCtx.Done()
			appCtx.Logger.Info("[Worker] shutting down")
			if srv != nil {
				shutdownAPI(appCtx, srv)
			}
			sched.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&withAPI, "api", false, "Also serve the admin API (overrides api.enabled)")
	return cmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API without running the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			appCtx, orch, err := ctx.orchestrator(runCtx)
			if err != nil {
				return err
			}
			srv := startAPI(appCtx, orch)
			<-runCtx.Done()
			shutdownAPI(appCtx, srv)
			return nil
		},
	}
}

func startAPI(appCtx *app.Context, orch *engine.Orchestrator) *http.Server {
	e := echo.New()
	api.RegisterRoutes(e, appCtx, orch)

	srv := &http.Server{
		Addr:              appCtx.Config.API.Listen,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appCtx.Logger.Info("[API] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appCtx.Logger.Error("[API] server stopped: %v", err)
		}
	}()
	return srv
}

func shutdownAPI(appCtx *app.Context, srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appCtx.Logger.Warn("[API] shutdown: %v", err)
	}
}
