package hls

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/datallboy/mediaq/internal/cache"
	"github.com/datallboy/mediaq/internal/decoding"
)

type segmentJob struct {
	seg    *Segment
	url    string
	name   string
	keyURL string
}

type segmentDone struct {
	index  int
	result SegmentResult
	bytes  int
	fatal  error
}

// fetchSegments downloads jobs on a bounded pool of workers and returns the
// results in playlist order. Keys are loaded on first use through keys. Only
// a key or storage failure is returned as an error; it stops dispatching any
// remaining segments.
func (f *Fetcher) fetchSegments(ctx context.Context, destDir string, jobs []segmentJob, keys *cache.KeyCache) ([]SegmentResult, int64, error) {
	results := make([]SegmentResult, len(jobs))
	if len(jobs) == 0 {
		return results, 0, nil
	}

	workerCount := f.opts.SegmentWorkers
	if workerCount > len(jobs) {
		workerCount = len(jobs)
	}

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan int, workerCount*2)
	done := make(chan segmentDone, len(jobs))

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				if poolCtx.Err() != nil {
					continue
				}
				d := f.processSegment(poolCtx, destDir, jobs[i], keys)
				d.index = i
				done <- d
			}
		}()
	}

	go func() {
		defer close(queue)
		for i := range jobs {
			select {
			case <-poolCtx.Done():
				return
			case queue <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	var written int64
	var fatal error
	for d := range done {
		if d.fatal != nil {
			if fatal == nil {
				fatal = d.fatal
				cancel()
			}
			continue
		}
		results[d.index] = d.result
		written += int64(d.bytes)
	}
	if fatal != nil {
		return nil, 0, fatal
	}
	return results, written, nil
}

func (f *Fetcher) processSegment(ctx context.Context, destDir string, job segmentJob, keys *cache.KeyCache) segmentDone {
	var key []byte
	if job.keyURL != "" {
		k, err := keys.Load(ctx, job.keyURL, f.remote.Bytes)
		if err != nil {
			return segmentDone{fatal: fmt.Errorf("key: %w", err)}
		}
		key = k
	}

	data, err := f.remote.Bytes(ctx, job.url)
	if err != nil {
		f.log.Warn("[HLS] Segment %s skipped: %v", job.url, err)
		return segmentDone{result: SegmentResult{LocalName: job.name, Outcome: OutcomeSkipped, Err: err}}
	}

	res := SegmentResult{LocalName: job.name, Outcome: OutcomeStored}
	if key != nil {
		iv := job.seg.Key.IV
		if iv == nil {
			iv = decoding.SequenceIV(job.seg.Sequence)
		}
		plain, derr := decoding.DecryptAES128CBC(data, key, iv)
		if derr != nil {
			f.log.Warn("[HLS] Segment %s stored encrypted: %v", job.url, derr)
			res.Outcome = OutcomeStoredEncrypted
			res.Err = derr
		} else {
			data = plain
		}
	}

	if err := f.root.WriteFile(path.Join(destDir, job.name), data); err != nil {
		return segmentDone{fatal: err}
	}
	return segmentDone{result: res, bytes: len(data)}
}
