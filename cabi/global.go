package cabi

import (
	"log/slog"
	"sync/atomic"

	"github.com/hupe1980/valloc"
	"github.com/hupe1980/valloc/internal/conv"
)

var global atomic.Pointer[Instance]

// Init installs the process-wide allocator with size bytes. It reports false
// if the allocator already exists or cannot be created.
func Init(size uint64, opts ...valloc.Option) bool {
	if err := valloc.Init(conv.ClampUint64ToInt(size), opts...); err != nil {
		slog.Warn("cabi: init failed", "size", size, "error", err)
		return false
	}
	return true
}

// instance returns the Instance wrapping the process-wide allocator.
func instance() (*Instance, bool) {
	s, err := valloc.Default()
	if err != nil {
		slog.Warn("cabi: call before init", "error", err)
		return nil, false
	}
	if in := global.Load(); in != nil && in.shared == s {
		return in, true
	}
	in := Wrap(s)
	global.Store(in)
	return in, true
}

// Alloc reserves size bytes from the process-wide allocator.
func Alloc(size uint64) RawPointer {
	in, ok := instance()
	if !ok {
		return Null
	}
	return in.Alloc(size)
}

// Free releases the chunk *p points to and sets *p to Null.
func Free(p *RawPointer) bool {
	in, ok := instance()
	return ok && in.Free(p)
}

// Realloc resizes the chunk p points to.
func Realloc(p RawPointer, size uint64) RawPointer {
	in, ok := instance()
	if !ok {
		return Null
	}
	return in.Realloc(p, size)
}

// Load reads the byte p points to.
func Load(p RawPointer) (byte, bool) {
	in, ok := instance()
	if !ok {
		return 0, false
	}
	return in.Load(p)
}

// Store writes v to the byte p points to.
func Store(p RawPointer, v byte) bool {
	in, ok := instance()
	return ok && in.Store(p, v)
}

// ReadBuffer copies n bytes starting at p into a Buffer.
func ReadBuffer(p RawPointer, n uint64) *Buffer {
	in, ok := instance()
	if !ok {
		return nil
	}
	return in.ReadBuffer(p, n)
}

// WriteBuffer copies data to consecutive bytes starting at p.
func WriteBuffer(p RawPointer, data []byte) bool {
	in, ok := instance()
	return ok && in.WriteBuffer(p, data)
}
