package valloc

import (
	"sync/atomic"
	"time"
)

// AccessOp names the kind of access reported to RecordAccess.
type AccessOp string

const (
	OpRead        AccessOp = "read"
	OpWrite       AccessOp = "write"
	OpReadBuffer  AccessOp = "read_buffer"
	OpWriteBuffer AccessOp = "write_buffer"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus;
// see the prommetrics package for a ready-made collector.
type MetricsCollector interface {
	// RecordAlloc is called after each allocation.
	// size is the requested byte count, err is nil if successful.
	RecordAlloc(size int, duration time.Duration, err error)

	// RecordFree is called after each free. size is the size of the released
	// chunk, or zero when the free failed.
	RecordFree(size int, duration time.Duration, err error)

	// RecordRealloc is called after each reallocation.
	// moved reports whether the contents were copied to a new chunk.
	RecordRealloc(oldSize, newSize int, moved bool, duration time.Duration, err error)

	// RecordAccess is called after each typed read or write.
	// bytes is the number of bytes transferred.
	RecordAccess(op AccessOp, bytes int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAlloc(int, time.Duration, error)              {}
func (NoopMetricsCollector) RecordFree(int, time.Duration, error)               {}
func (NoopMetricsCollector) RecordRealloc(int, int, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordAccess(AccessOp, int, time.Duration, error)   {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocCount      atomic.Int64
	AllocErrors     atomic.Int64
	AllocBytes      atomic.Int64
	AllocTotalNanos atomic.Int64
	FreeCount       atomic.Int64
	FreeErrors      atomic.Int64
	FreeBytes       atomic.Int64
	ReallocCount    atomic.Int64
	ReallocErrors   atomic.Int64
	ReallocMoves    atomic.Int64
	ReadCount       atomic.Int64
	WriteCount      atomic.Int64
	AccessErrors    atomic.Int64
	AccessBytes     atomic.Int64
}

func (b *BasicMetricsCollector) RecordAlloc(size int, duration time.Duration, err error) {
	b.AllocCount.Add(1)
	b.AllocTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AllocErrors.Add(1)
		return
	}
	b.AllocBytes.Add(int64(size))
}

func (b *BasicMetricsCollector) RecordFree(size int, _ time.Duration, err error) {
	b.FreeCount.Add(1)
	if err != nil {
		b.FreeErrors.Add(1)
		return
	}
	b.FreeBytes.Add(int64(size))
}

func (b *BasicMetricsCollector) RecordRealloc(_, _ int, moved bool, _ time.Duration, err error) {
	b.ReallocCount.Add(1)
	if err != nil {
		b.ReallocErrors.Add(1)
		return
	}
	if moved {
		b.ReallocMoves.Add(1)
	}
}

func (b *BasicMetricsCollector) RecordAccess(op AccessOp, bytes int, _ time.Duration, err error) {
	switch op {
	case OpRead, OpReadBuffer:
		b.ReadCount.Add(1)
	case OpWrite, OpWriteBuffer:
		b.WriteCount.Add(1)
	}
	if err != nil {
		b.AccessErrors.Add(1)
		return
	}
	b.AccessBytes.Add(int64(bytes))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocCount:    b.AllocCount.Load(),
		AllocErrors:   b.AllocErrors.Load(),
		AllocBytes:    b.AllocBytes.Load(),
		AllocAvgNanos: b.getAvgAllocNanos(),
		FreeCount:     b.FreeCount.Load(),
		FreeErrors:    b.FreeErrors.Load(),
		FreeBytes:     b.FreeBytes.Load(),
		ReallocCount:  b.ReallocCount.Load(),
		ReallocErrors: b.ReallocErrors.Load(),
		ReallocMoves:  b.ReallocMoves.Load(),
		ReadCount:     b.ReadCount.Load(),
		WriteCount:    b.WriteCount.Load(),
		AccessErrors:  b.AccessErrors.Load(),
		AccessBytes:   b.AccessBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgAllocNanos() int64 {
	count := b.AllocCount.Load()
	if count == 0 {
		return 0
	}
	return b.AllocTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AllocCount    int64
	AllocErrors   int64
	AllocBytes    int64
	AllocAvgNanos int64
	FreeCount     int64
	FreeErrors    int64
	FreeBytes     int64
	ReallocCount  int64
	ReallocErrors int64
	ReallocMoves  int64
	ReadCount     int64
	WriteCount    int64
	AccessErrors  int64
	AccessBytes   int64
}
