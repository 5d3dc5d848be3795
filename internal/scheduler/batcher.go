// Package scheduler drains the ingestion queue into bounded batches for
// the dispatch client.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"streambot/internal/domain"
)

const (
	defaultBatchSize    = 5
	defaultPollTimeout  = 100 * time.Millisecond
	defaultIdleInterval = 250 * time.Millisecond
)

// Source yields pending requests in FIFO order, or ok=false on timeout.
type Source interface {
	DequeueTimeout(timeout time.Duration) (domain.PendingRequest, bool)
}

// Dispatcher consumes one non-empty batch and returns when every request
// in it has completed (with a response or fallback text).
type Dispatcher interface {
	Dispatch(ctx context.Context, batch domain.Batch)
}

// Batcher converts queue throughput into bounded work units. A batch is
// closed as soon as it reaches capacity or a single dequeue attempt times
// out, so a partially filled batch is never held back waiting to fill.
type Batcher struct {
	source       Source
	dispatcher   Dispatcher
	batchSize    int
	pollTimeout  time.Duration
	idleInterval time.Duration
	logger       *slog.Logger
}

// Config holds the batcher's dependencies and tuning parameters.
type Config struct {
	Source       Source
	Dispatcher   Dispatcher
	BatchSize    int
	PollTimeout  time.Duration
	IdleInterval time.Duration
	Logger       *slog.Logger
}

func New(cfg Config) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = defaultIdleInterval
	}
	return &Batcher{
		source:       cfg.Source,
		dispatcher:   cfg.Dispatcher,
		batchSize:    cfg.BatchSize,
		pollTimeout:  cfg.PollTimeout,
		idleInterval: cfg.IdleInterval,
		logger:       cfg.Logger,
	}
}

// Run accumulates and dispatches batches until ctx is cancelled. An empty
// accumulation round sleeps for the idle interval, bounding busy-wait CPU
// while keeping per-message latency within one poll timeout under load.
func (b *Batcher) Run(ctx context.Context) {
	b.logger.Info("batch scheduler started",
		"batch_size", b.batchSize,
		"poll_timeout", b.pollTimeout,
		"idle_interval", b.idleInterval,
	)

	for {
		if ctx.Err() != nil {
			b.logger.Info("batch scheduler stopping")
			return
		}

		batch := b.collect()
		if len(batch) == 0 {
			if !sleep(ctx, b.idleInterval) {
				b.logger.Info("batch scheduler stopping")
				return
			}
			continue
		}

		b.logger.Debug("dispatching batch", "size", len(batch))
		b.dispatcher.Dispatch(ctx, batch)
	}
}

// collect drains the queue until the batch is full or one dequeue times
// out, preserving FIFO order within and across batches.
func (b *Batcher) collect() domain.Batch {
	var batch domain.Batch
	for len(batch) < b.batchSize {
		req, ok := b.source.DequeueTimeout(b.pollTimeout)
		if !ok {
			break
		}
		batch = append(batch, req)
	}
	return batch
}

// sleep waits for d or until ctx is cancelled; it reports whether the full
// interval elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
