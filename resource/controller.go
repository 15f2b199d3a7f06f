// Package resource provides global resource limits for build and query
// parallelism, tracked memory, and persistence I/O throughput.
package resource

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// Workers is the maximum number of concurrent build/query workers.
	// 0 means use all available cores.
	Workers int

	// MemoryLimitBytes is the hard limit for tracked memory.
	// 0 means no hard limit (tracking only).
	MemoryLimitBytes int64

	// IOLimitBytesPerSec caps persistence I/O throughput.
	// 0 means unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages worker slots, memory, and I/O budget. The zero-value
// (nil) Controller imposes no limits; every method is nil-safe.
type Controller struct {
	cfg Config

	workerSem *semaphore.Weighted
	workers   int

	memSem  *semaphore.Weighted
	memUsed atomic.Int64

	ioLimiter *rate.Limiter
}

// NewController creates a controller from the configuration.
func NewController(cfg Config) *Controller {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	c := &Controller{
		cfg:       cfg,
		workers:   workers,
		workerSem: semaphore.NewWeighted(int64(workers)),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// Workers returns the configured worker slot count.
func (c *Controller) Workers() int {
	if c == nil {
		return runtime.GOMAXPROCS(0)
	}
	return c.workers
}

// AcquireWorker blocks until a worker slot is available or ctx is done.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return ctx.Err()
	}
	return c.workerSem.Acquire(ctx, 1)
}

// ReleaseWorker returns a worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workerSem.Release(1)
}

// AcquireMemory reserves tracked memory, blocking if a hard limit is
// configured and usage would exceed it.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns tracked memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.memUsed.Add(-bytes)
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
}

// MemoryUsed returns the currently tracked memory in bytes.
func (c *Controller) MemoryUsed() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// ThrottleIO blocks until the I/O budget allows n more bytes.
func (c *Controller) ThrottleIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil || n <= 0 {
		return nil
	}
	// WaitN rejects bursts larger than the limiter burst; chunk them.
	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
