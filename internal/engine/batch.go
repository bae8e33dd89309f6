package engine

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// RunBatch makes up to n ProcessOne calls, at most Concurrency at a time, and
// returns how many of them claimed a job.
func (o *Orchestrator) RunBatch(ctx context.Context, n int) int {
	if n <= 0 {
		return 0
	}

	var processed atomic.Int64
	var idle atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil || idle.Load() {
			break
		}
		g.Go(func() error {
			if o.ProcessOne(ctx) {
				processed.Add(1)
			} else {
				idle.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(processed.Load())
}

// Drain runs batches until one comes back short, which means the queue ran
// out of pending work, or ctx is cancelled.
func (o *Orchestrator) Drain(ctx context.Context, batchSize int) int {
	if batchSize <= 0 {
		batchSize = 1
	}
	total := 0
	for ctx.Err() == nil {
		n := o.RunBatch(ctx, batchSize)
		total += n
		if n < batchSize {
			break
		}
	}
	if total > 0 {
		o.log.Info("[Drain] processed %d job(s)", total)
	}
	return total
}
