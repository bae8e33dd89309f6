package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/datallboy/mediaq/internal/app"
	"github.com/datallboy/mediaq/internal/engine"
	"github.com/datallboy/mediaq/internal/infra/config"
	"github.com/datallboy/mediaq/internal/infra/logger"
	"github.com/datallboy/mediaq/internal/store"
	"github.com/datallboy/mediaq/internal/store/postgres"
)

// migrationReporter is implemented by both store drivers.
type migrationReporter interface {
	MigrationVersion() (uint, bool, error)
}

type commandContext struct {
	configFlag *string

	once   sync.Once
	app    *app.Context
	appErr error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureApp loads config, opens the log and connects the configured store.
// Migrations run as part of opening the store.
func (c *commandContext) ensureApp(ctx context.Context) (*app.Context, error) {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.appErr = err
			return
		}

		log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
		if err != nil {
			c.appErr = fmt.Errorf("failed to open log: %w", err)
			return
		}

		appCtx := app.NewContext(cfg, log)
		appCtx.Store, err = openStore(ctx, cfg)
		if err != nil {
			c.appErr = err
			return
		}
		log.Debug("[Store] opened %s store", cfg.Store.Driver)
		c.app = appCtx
	})
	return c.app, c.appErr
}

func (c *commandContext) orchestrator(ctx context.Context) (*app.Context, *engine.Orchestrator, error) {
	appCtx, err := c.ensureApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	orch, err := engine.New(appCtx)
	if err != nil {
		return nil, nil, err
	}
	return appCtx, orch, nil
}

func (c *commandContext) close() {
	if c.app != nil {
		_ = c.app.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (app.Store, error) {
	if cfg.Store.Driver == config.DriverPostgres {
		s, err := postgres.New(ctx, cfg.Store.PostgresDSN, cfg.Store.MaxConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := store.NewPersistentStore(cfg.Store.SQLitePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}
