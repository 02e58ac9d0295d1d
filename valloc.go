package valloc

import (
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/valloc/internal/arena"
	"github.com/hupe1980/valloc/internal/layout"
	"github.com/hupe1980/valloc/internal/ledger"
)

// Allocator hands out chunks of one fixed-capacity arena.
//
// An Allocator is not safe for concurrent use. Wrap it in a Shared to use it
// from several goroutines.
type Allocator struct {
	arena  *arena.Arena
	ledger *ledger.Ledger
	opts   options
	logger *Logger
	closed bool
}

// ChunkInfo describes one chunk of the arena.
type ChunkInfo struct {
	Base  int  `json:"base"`
	Size  int  `json:"size"`
	InUse bool `json:"in_use"`
}

// End returns the first offset past the chunk.
func (c ChunkInfo) End() int { return c.Base + c.Size }

// Stats summarizes the allocator state.
type Stats struct {
	Capacity     int
	Available    int
	Chunks       int
	LiveChunks   int
	FreeChunks   int
	LargestFree  int // Largest single allocation that can currently succeed
	TotalAllocs  uint64
	TotalFrees   uint64
	InPlaceGrows uint64
}

// Fragmentation returns the share of free bytes that cannot be handed out in
// one piece: 0 when all free space is contiguous, approaching 1 as it splinters.
func (s Stats) Fragmentation() float64 {
	if s.Available == 0 {
		return 0
	}
	return 1 - float64(s.LargestFree)/float64(s.Available)
}

// New creates an allocator over a zero-filled arena of capacity bytes.
func New(capacity int, optFns ...Option) (*Allocator, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	arenaOpts := []arena.Option{arena.WithMapped(opts.mapped)}
	if opts.resources != nil {
		arenaOpts = append(arenaOpts, arena.WithMemoryAcquirer(opts.resources))
	}

	ar, err := arena.New(capacity, arenaOpts...)
	if err != nil {
		opts.logger.Error("arena creation failed", "capacity", capacity, "error", err)
		return nil, translate(err)
	}

	return newAllocator(ar, opts)
}

// FromBytes creates an allocator over a caller-supplied buffer. The buffer is
// used as-is and must not be touched by the caller while the allocator is in
// use. Close does not release it.
func FromBytes(buf []byte, optFns ...Option) (*Allocator, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	ar, err := arena.FromBytes(buf)
	if err != nil {
		return nil, translate(err)
	}

	return newAllocator(ar, opts)
}

func newAllocator(ar *arena.Arena, opts options) (*Allocator, error) {
	l, err := ledger.New(ar.Cap())
	if err != nil {
		_ = ar.Close()
		return nil, translate(err)
	}

	a := &Allocator{
		arena:  ar,
		ledger: l,
		opts:   opts,
		logger: opts.logger.WithCapacity(ar.Cap()),
	}
	a.logger.Debug("allocator created", "backing", a.backing())

	return a, nil
}

func (a *Allocator) backing() string {
	switch {
	case a.arena.Borrowed():
		return "borrowed"
	case a.arena.Mapped():
		return "mmap"
	default:
		return "heap"
	}
}

func (a *Allocator) usable() error {
	if a.closed {
		return ErrClosed
	}
	return nil
}

// verify re-checks the ledger when WithVerify is set.
func (a *Allocator) verify() error {
	if !a.opts.verify {
		return nil
	}
	if err := a.ledger.Validate(); err != nil {
		a.logger.Error("ledger invariant violated", "error", err)
		return err
	}
	return nil
}

// Alloc reserves size bytes and returns a pointer to the first byte of the
// chunk. The first free chunk that is large enough is used.
func Alloc[T any](a *Allocator, size int) (Ptr[T], error) {
	start := time.Now()
	p, err := alloc[T](a, size)
	a.opts.metricsCollector.RecordAlloc(size, time.Since(start), err)
	a.logger.LogAlloc(p.base, size, err)
	return p, err
}

func alloc[T any](a *Allocator, size int) (Ptr[T], error) {
	if err := a.usable(); err != nil {
		return Ptr[T]{}, err
	}
	if err := layout.Check[T](); err != nil {
		return Ptr[T]{}, translate(err)
	}
	if size <= 0 {
		return Ptr[T]{}, &AllocError{Size: size, cause: ErrZeroSize}
	}

	base, err := a.ledger.FindFit(size)
	if err != nil {
		return Ptr[T]{}, &AllocError{Size: size, cause: translate(err)}
	}
	if err := a.verify(); err != nil {
		return Ptr[T]{}, err
	}

	return basePtr[T](base), nil
}

// AllocTyped reserves room for count elements of T.
func AllocTyped[T any](a *Allocator, count int) (Ptr[T], error) {
	elem := layout.Size[T]()
	if count <= 0 || elem == 0 {
		return Alloc[T](a, 0)
	}
	size := math.MaxInt
	if count <= math.MaxInt/elem {
		size = count * elem
	}
	return Alloc[T](a, size)
}

// Free returns the chunk p points to. p must be the pointer Alloc or Realloc
// returned, not one derived from it by arithmetic. On success *p becomes NULL;
// freeing the same handle again reports ErrDoubleFree.
//
// Freed bytes are not cleared.
func Free[T any](a *Allocator, p *Ptr[T]) error {
	start := time.Now()
	off := 0
	if p != nil {
		off = p.off
	}
	size, err := free(a, p)
	a.opts.metricsCollector.RecordFree(size, time.Since(start), err)
	a.logger.LogFree(off, size, err)
	return err
}

func free[T any](a *Allocator, p *Ptr[T]) (int, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	if p == nil {
		return 0, ErrNullPointer
	}
	switch p.state {
	case ptrNull:
		return 0, ErrNullPointer
	case ptrFreed:
		return 0, ErrDoubleFree
	}

	size, err := a.ledger.Release(p.off)
	if err != nil {
		return 0, translate(err)
	}
	*p = Ptr[T]{base: p.base, off: p.off, state: ptrFreed}

	return size, a.verify()
}

// Realloc resizes the chunk p points to and returns a pointer to the resized
// chunk. Shrinking and growing into a free successor happen in place and
// return p unchanged. Otherwise the contents move to a new chunk and the old
// one is freed. On error the original chunk is left untouched.
func Realloc[T any](a *Allocator, p Ptr[T], newSize int) (Ptr[T], error) {
	start := time.Now()
	q, oldSize, moved, err := realloc(a, p, newSize)
	a.opts.metricsCollector.RecordRealloc(oldSize, newSize, moved, time.Since(start), err)
	a.logger.LogRealloc(p.off, q.off, newSize, moved, err)
	return q, err
}

func realloc[T any](a *Allocator, p Ptr[T], newSize int) (Ptr[T], int, bool, error) {
	if err := a.usable(); err != nil {
		return Ptr[T]{}, 0, false, err
	}
	if newSize <= 0 {
		return Ptr[T]{}, 0, false, &AllocError{Size: newSize, cause: ErrZeroSize}
	}
	if newSize > a.ledger.Capacity() {
		return Ptr[T]{}, 0, false, &AllocError{Size: newSize, cause: ErrCapacityExceeded}
	}
	if p.IsNull() {
		return Ptr[T]{}, 0, false, ErrNullPointer
	}

	c, ok := a.ledger.Lookup(p.off)
	if !ok {
		return Ptr[T]{}, 0, false, ErrInvalidPointer
	}
	if newSize == c.Size {
		return p, c.Size, false, nil
	}

	inPlace, err := a.ledger.Resize(c.Base, newSize)
	if err != nil {
		return Ptr[T]{}, c.Size, false, translate(err)
	}
	if inPlace {
		return p, c.Size, false, a.verify()
	}

	base, err := a.ledger.FindFit(newSize)
	if err != nil {
		return Ptr[T]{}, c.Size, false, &AllocError{Size: newSize, cause: translate(err)}
	}
	if err := a.arena.Move(base, c.Base, min(c.Size, newSize)); err != nil {
		_, _ = a.ledger.Release(base)
		return Ptr[T]{}, c.Size, false, translate(err)
	}
	if _, err := a.ledger.Release(c.Base); err != nil {
		return Ptr[T]{}, c.Size, false, translate(err)
	}

	q := basePtr[T](base)
	q.index = p.index
	return q, c.Size, true, a.verify()
}

// view resolves the n bytes at p to the arena. The range must lie inside a
// single in-use chunk.
func view[T any](a *Allocator, op AccessOp, p Ptr[T], n int, forWrite bool) ([]byte, error) {
	if err := a.usable(); err != nil {
		return nil, err
	}
	if err := layout.Check[T](); err != nil {
		return nil, translate(err)
	}
	if p.IsNull() {
		return nil, &AccessError{Op: string(op), Size: n, cause: ErrNullPointer}
	}

	c, ok := a.ledger.Containing(p.off)
	if !ok || !c.InUse || !c.Covers(p.off, n) {
		return nil, &AccessError{Op: string(op), Offset: p.off, Size: n, cause: ErrInvalidAddress}
	}

	var (
		buf []byte
		err error
	)
	if forWrite {
		buf, err = a.arena.WriteSlice(p.off, n)
	} else {
		buf, err = a.arena.ReadSlice(p.off, n)
	}
	if err != nil {
		return nil, &AccessError{Op: string(op), Offset: p.off, Size: n, cause: translate(err)}
	}
	return buf, nil
}

// Read copies the value p points to out of the arena.
func Read[T any](a *Allocator, p Ptr[T]) (T, error) {
	start := time.Now()
	v, err := read(a, OpRead, p)
	n := layout.Size[T]()
	a.opts.metricsCollector.RecordAccess(OpRead, n, time.Since(start), err)
	a.logger.LogAccess(OpRead, p.off, n, err)
	return v, err
}

func read[T any](a *Allocator, op AccessOp, p Ptr[T]) (T, error) {
	src, err := view(a, op, p, layout.Size[T](), false)
	if err != nil {
		var zero T
		return zero, err
	}
	return layout.Decode[T](src), nil
}

// Write copies v into the arena at p.
func Write[T any](a *Allocator, p Ptr[T], v T) error {
	start := time.Now()
	err := write(a, OpWrite, p, v)
	n := layout.Size[T]()
	a.opts.metricsCollector.RecordAccess(OpWrite, n, time.Since(start), err)
	a.logger.LogAccess(OpWrite, p.off, n, err)
	return err
}

func write[T any](a *Allocator, op AccessOp, p Ptr[T], v T) error {
	dst, err := view(a, op, p, layout.Size[T](), true)
	if err != nil {
		return err
	}
	layout.Encode(dst, v)
	return nil
}

// ReadBuffer reads count consecutive elements starting at p. It stops at the
// first element that cannot be read and returns no values in that case.
func ReadBuffer[T any](a *Allocator, p Ptr[T], count int) ([]T, error) {
	out, err := AppendBuffer(a, make([]T, 0, min(max(count, 0), 1024)), p, count)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendBuffer is like ReadBuffer but appends the elements to dst and
// returns the extended slice. On error dst is returned unchanged.
func AppendBuffer[T any](a *Allocator, dst []T, p Ptr[T], count int) ([]T, error) {
	start := time.Now()
	out, err := appendBuffer(a, dst, p, count)
	n := (len(out) - len(dst)) * layout.Size[T]()
	a.opts.metricsCollector.RecordAccess(OpReadBuffer, n, time.Since(start), err)
	a.logger.LogAccess(OpReadBuffer, p.off, n, err)
	return out, err
}

func appendBuffer[T any](a *Allocator, dst []T, p Ptr[T], count int) ([]T, error) {
	if count < 0 {
		return dst, &AccessError{Op: string(OpReadBuffer), Offset: p.off, Size: count, cause: ErrInvalidAddress}
	}

	out := dst
	for i := range count {
		v, err := read(a, OpReadBuffer, p.Add(i))
		if err != nil {
			return dst, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteBuffer writes values to consecutive elements starting at p. It stops
// at the first element that cannot be written; the elements before it have
// already been stored.
func WriteBuffer[T any](a *Allocator, p Ptr[T], values []T) error {
	start := time.Now()
	written, err := writeBuffer(a, p, values)
	n := written * layout.Size[T]()
	a.opts.metricsCollector.RecordAccess(OpWriteBuffer, n, time.Since(start), err)
	a.logger.LogAccess(OpWriteBuffer, p.off, n, err)
	return err
}

func writeBuffer[T any](a *Allocator, p Ptr[T], values []T) (int, error) {
	for i, v := range values {
		if err := write(a, OpWriteBuffer, p.Add(i), v); err != nil {
			return i, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return len(values), nil
}

// SizeOf returns the size of the chunk p was allocated as.
func SizeOf[T any](a *Allocator, p Ptr[T]) (int, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	if p.IsNull() {
		return 0, ErrNullPointer
	}
	c, ok := a.ledger.Lookup(p.off)
	if !ok {
		return 0, ErrInvalidPointer
	}
	return c.Size, nil
}

// Logger returns the logger the allocator reports to.
func (a *Allocator) Logger() *Logger { return a.logger }

// Capacity returns the arena size in bytes.
func (a *Allocator) Capacity() int { return a.ledger.Capacity() }

// Available returns the number of free bytes. They may be split across
// several chunks; see Stats().LargestFree.
func (a *Allocator) Available() int { return a.ledger.Available() }

// Chunks returns the chunk list in arena order.
func (a *Allocator) Chunks() []ChunkInfo {
	chunks := a.ledger.Chunks()
	out := make([]ChunkInfo, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkInfo{Base: c.Base, Size: c.Size, InUse: c.InUse}
	}
	return out
}

// Stats returns a summary of the allocator state.
func (a *Allocator) Stats() Stats {
	s := a.ledger.Stats()
	return Stats{
		Capacity:     a.ledger.Capacity(),
		Available:    s.FreeBytes,
		Chunks:       s.Chunks,
		LiveChunks:   s.LiveChunks,
		FreeChunks:   s.FreeChunks,
		LargestFree:  s.LargestFree,
		TotalAllocs:  s.TotalAllocs,
		TotalFrees:   s.TotalFrees,
		InPlaceGrows: s.InPlaceGrows,
	}
}

// Verify checks the chunk ledger invariants: chunks tile the arena exactly and
// no two free chunks are adjacent.
func (a *Allocator) Verify() error {
	return a.ledger.Validate()
}

// Close releases the arena. Every later operation returns ErrClosed.
// Close is idempotent.
func (a *Allocator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.logger.Debug("allocator closed", "available", a.ledger.Available())
	return a.arena.Close()
}

func (a *Allocator) String() string {
	return fmt.Sprintf("Allocator{capacity: %d, available: %d, chunks: %d, backing: %s, closed: %t}",
		a.ledger.Capacity(), a.ledger.Available(), a.ledger.Len(), a.backing(), a.closed)
}
