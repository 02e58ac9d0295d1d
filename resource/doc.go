// Package resource implements the Controller that governs process-wide limits
// shared by several allocators.
//
// Two resource types are managed:
//
//   - Memory: arena bytes reserved from the host (non-blocking, fail-fast)
//   - IO: throughput of diagnostic writes such as heap dumps (token bucket)
//
// # Memory Budget
//
// Arena construction reserves its full capacity up front and releases it on
// Close. A weighted semaphore enforces the hard limit; an atomic counter tracks
// usage. AcquireMemory never blocks:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//
//	if err := rc.AcquireMemory(1 << 20); err != nil {
//	    // ErrMemoryLimitExceeded - caller decides retry/backoff
//	}
//	defer rc.ReleaseMemory(1 << 20)
//
// Usage reports the reserved bytes and the number of live reservations, one
// per open arena when the controller is handed to valloc.WithResourceController.
//
// # IO Rate Limiting
//
//	rc := resource.NewController(resource.Config{
//	    IOLimitBytesPerSec: 8 << 20, // 8MB/s
//	})
//
//	w := resource.NewRateLimitedWriter(ctx, file, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller: limits are off, but AcquireIO still
// honours context cancellation so throttled and unthrottled writers stop the
// same way.
package resource
