package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/datallboy/mediaq/internal/infra/config"
	"github.com/datallboy/mediaq/internal/infra/logger"
	"github.com/robfig/cron/v3"
)

// Runner processes up to n queued jobs and returns how many it claimed.
type Runner interface {
	RunBatch(ctx context.Context, n int) int
}

// Sweeper returns jobs stuck in progress since before cutoff to pending.
type Sweeper interface {
	ResetStuck(ctx context.Context, startedBefore time.Time) (int64, error)
}

// Scheduler runs a batch of queued work on a cron schedule. A tick that
// fires while the previous batch is still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	sweeper Sweeper
	cfg     config.WorkerConfig
	log     *logger.Logger
	ctx     context.Context
}

func New(runner Runner, sweeper Sweeper, cfg config.WorkerConfig, log *logger.Logger) (*Scheduler, error) {
	cl := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		sweeper: sweeper,
		cfg:     cfg,
		log:     log,
		ctx:     context.Background(),
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { s.Tick(s.ctx) }); err != nil {
		return nil, fmt.Errorf("invalid worker schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins firing ticks. Batches see ctx, so cancelling it stops new
// claims while jobs already claimed run to completion.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("[Scheduler] started (%s, batch %d)", s.cfg.Schedule, s.cfg.BatchSize)
}

// Stop prevents further ticks and waits for a running batch to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("[Scheduler] stopped")
}

// Tick runs one scheduled round: the optional stuck-job sweep, then a batch.
func (s *Scheduler) Tick(ctx context.Context) int {
	if s.cfg.SweepAfter > 0 && s.sweeper != nil {
		n, err := s.sweeper.ResetStuck(ctx, time.Now().Add(-s.cfg.SweepAfter))
		if err != nil {
			s.log.Error("[Sweep] %v", err)
		} else if n > 0 {
			s.log.Warn("[Sweep] returned %d stuck job(s) to pending", n)
		}
	}

	n := s.runner.RunBatch(ctx, s.cfg.BatchSize)
	if n > 0 {
		s.log.Info("[Scheduler] processed %d job(s)", n)
	}
	return n
}

type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("[Cron] %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("[Cron] %s: %v %v", msg, err, keysAndValues)
}
