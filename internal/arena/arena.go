package arena

import (
	"errors"
	"fmt"

	"github.com/hupe1980/valloc/internal/mem"
	"github.com/hupe1980/valloc/internal/mmap"
)

// MemoryAcquirer is an interface for reserving arena memory against a budget.
type MemoryAcquirer interface {
	AcquireMemory(amount int64) error
	ReleaseMemory(amount int64)
}

var (
	// ErrInvalidCapacity is returned when the requested capacity is not positive
	// or too large to allocate.
	ErrInvalidCapacity = errors.New("arena: capacity must be positive")
	// ErrOutOfBounds is returned when a byte range leaves [0, capacity).
	ErrOutOfBounds = errors.New("arena: range out of bounds")
	// ErrClosed is returned when the arena has been closed.
	ErrClosed = errors.New("arena: closed")
)

// adviseMapping tells the kernel how a fresh mapping will be touched.
// Allocations land anywhere in the arena, so read-ahead does not help.
var adviseMapping = func(m *mmap.Mapping) error {
	return m.Advise(mmap.AccessRandom)
}

type config struct {
	acquirer MemoryAcquirer
	mapped   bool
}

// Option is a configuration option for Arena.
type Option func(*config)

// WithMemoryAcquirer reserves the arena capacity from acquirer for the lifetime
// of the arena. Caller-supplied buffers are never reserved.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(c *config) {
		c.acquirer = acquirer
	}
}

// WithMapped backs the arena by an anonymous memory mapping instead of the Go heap.
func WithMapped(mapped bool) Option {
	return func(c *config) {
		c.mapped = mapped
	}
}

// Arena is a fixed-capacity byte buffer.
type Arena struct {
	buf      []byte
	mapping  *mmap.Mapping // Holds the off-heap mapping (if applicable)
	acquirer MemoryAcquirer
	reserved int64
	borrowed bool
	closed   bool
}

// New creates a zero-filled arena of capacity bytes.
func New(capacity int, opts ...Option) (*Arena, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if capacity > mem.MaxSize {
		return nil, fmt.Errorf("%w: %d exceeds the %d byte limit", ErrInvalidCapacity, capacity, mem.MaxSize)
	}

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Arena{acquirer: cfg.acquirer}

	if a.acquirer != nil {
		if err := a.acquirer.AcquireMemory(int64(capacity)); err != nil {
			return nil, err
		}
		a.reserved = int64(capacity)
	}

	if cfg.mapped {
		mapping, err := mmap.MapAnon(capacity)
		if err != nil {
			a.release()
			return nil, fmt.Errorf("failed to map anonymous memory for arena: %w", err)
		}
		if err := adviseMapping(mapping); err != nil {
			_ = mapping.Close()
			a.release()
			return nil, fmt.Errorf("failed to advise arena mapping: %w", err)
		}
		a.mapping = mapping
		a.buf = mapping.Bytes()
	} else {
		a.buf = mem.AllocAligned(capacity)
	}

	return a, nil
}

// FromBytes adopts buf as arena memory. The contents are left untouched and
// the caller must not use buf while the arena is alive.
func FromBytes(buf []byte) (*Arena, error) {
	if len(buf) == 0 {
		return nil, ErrInvalidCapacity
	}
	return &Arena{buf: buf[:len(buf):len(buf)], borrowed: true}, nil
}

// Cap returns the arena capacity in bytes.
func (a *Arena) Cap() int {
	return len(a.buf)
}

// Mapped reports whether the arena lives in an anonymous mapping.
func (a *Arena) Mapped() bool {
	return a.mapping != nil
}

// Borrowed reports whether the arena memory was supplied by the caller.
func (a *Arena) Borrowed() bool {
	return a.borrowed
}

func (a *Arena) check(off, n int) error {
	if a.closed {
		return ErrClosed
	}
	if off < 0 || n < 0 || off > len(a.buf)-n {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfBounds, off, off+n, len(a.buf))
	}
	return nil
}

// ReadSlice returns the bytes in [off, off+n). Callers must not modify the result.
func (a *Arena) ReadSlice(off, n int) ([]byte, error) {
	if err := a.check(off, n); err != nil {
		return nil, err
	}
	return a.buf[off : off+n : off+n], nil
}

// WriteSlice returns the bytes in [off, off+n) for modification.
func (a *Arena) WriteSlice(off, n int) ([]byte, error) {
	if err := a.check(off, n); err != nil {
		return nil, err
	}
	return a.buf[off : off+n : off+n], nil
}

// Move copies n bytes from src to dst. The ranges may overlap.
func (a *Arena) Move(dst, src, n int) error {
	if err := a.check(src, n); err != nil {
		return err
	}
	if err := a.check(dst, n); err != nil {
		return err
	}
	copy(a.buf[dst:dst+n], a.buf[src:src+n])
	return nil
}

// Bytes returns the whole arena. It is meant for diagnostics such as heap dumps.
func (a *Arena) Bytes() []byte {
	if a.closed {
		return nil
	}
	return a.buf
}

// Close releases the arena memory. It is idempotent. Borrowed memory is
// returned to the caller untouched.
func (a *Arena) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	var err error
	if a.mapping != nil {
		err = a.mapping.Close()
		a.mapping = nil
	}
	a.buf = nil
	a.release()
	return err
}

func (a *Arena) release() {
	if a.acquirer != nil && a.reserved > 0 {
		a.acquirer.ReleaseMemory(a.reserved)
		a.reserved = 0
	}
}

func (a *Arena) String() string {
	backing := "heap"
	switch {
	case a.mapping != nil:
		backing = "mmap"
	case a.borrowed:
		backing = "borrowed"
	}
	return fmt.Sprintf("Arena{capacity: %d, backing: %s, closed: %t}", len(a.buf), backing, a.closed)
}
