package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would exceed the memory limit.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes bounds the combined capacity of all arenas reserved
	// through the controller. If 0, reservations are only tracked.
	MemoryLimitBytes int64

	// IOLimitBytesPerSec is the maximum throughput for heap dumps.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Usage is a point-in-time view of a Controller.
type Usage struct {
	MemoryUsed   int64
	MemoryLimit  int64 // 0 if unlimited
	Reservations int64 // Live AcquireMemory calls not yet released
}

// Controller is a memory and IO budget shared by several allocators.
// A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	memSem       *semaphore.Weighted // nil if unlimited
	memUsed      atomic.Int64
	reservations atomic.Int64

	ioLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireMemory reserves bytes of arena capacity. It never blocks: when the
// limit would be exceeded it fails with ErrMemoryLimitExceeded and the caller
// decides whether to retry.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return fmt.Errorf("%w: requested %d bytes with %d of %d in use",
			ErrMemoryLimitExceeded, bytes, c.memUsed.Load(), c.cfg.MemoryLimitBytes)
	}

	c.memUsed.Add(bytes)
	c.reservations.Add(1)
	return nil
}

// ReleaseMemory returns a reservation made by AcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
	c.reservations.Add(-1)
}

// MemoryUsage returns the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// Usage returns the current reservations.
func (c *Controller) Usage() Usage {
	if c == nil {
		return Usage{}
	}
	return Usage{
		MemoryUsed:   c.memUsed.Load(),
		MemoryLimit:  c.cfg.MemoryLimitBytes,
		Reservations: c.reservations.Load(),
	}
}

// AcquireIO waits until the IO limit admits bytes more bytes or ctx is done.
// Requests larger than the limiter burst are admitted in burst-sized steps.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return ctx.Err()
	}
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
