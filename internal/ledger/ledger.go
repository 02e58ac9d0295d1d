package ledger

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

var (
	// ErrInvalidSize is returned for requests of zero or negative size.
	ErrInvalidSize = errors.New("ledger: invalid size")
	// ErrOutOfMemory is returned when no free chunk is large enough.
	ErrOutOfMemory = errors.New("ledger: out of memory")
	// ErrInvalidPointer is returned when an offset is not the base of an in-use chunk.
	ErrInvalidPointer = errors.New("ledger: not a chunk base")
	// ErrDoubleFree is returned when a chunk base is released twice.
	ErrDoubleFree = errors.New("ledger: double free")
	// ErrCorrupt is returned by Validate when an invariant does not hold.
	ErrCorrupt = errors.New("ledger: corrupt")
)

// Chunk describes a contiguous range of the arena.
type Chunk struct {
	Base  int
	Size  int
	InUse bool
}

// End returns the first offset past the chunk.
func (c Chunk) End() int { return c.Base + c.Size }

// Covers reports whether [off, off+n) lies inside the chunk.
func (c Chunk) Covers(off, n int) bool {
	return off >= c.Base && n >= 0 && off <= c.End()-n
}

// Stats summarizes the ledger state.
type Stats struct {
	Chunks       int // Total descriptors
	LiveChunks   int // In-use descriptors
	FreeChunks   int // Free descriptors
	InUseBytes   int
	FreeBytes    int
	LargestFree  int // Largest single allocation that can currently succeed
	TotalAllocs  uint64
	TotalFrees   uint64
	InPlaceGrows uint64
}

// Ledger partitions an arena into free and in-use chunks.
type Ledger struct {
	chunks   []Chunk
	capacity int
	free     int

	live     *roaring64.Bitmap
	released *roaring64.Bitmap

	allocs uint64
	frees  uint64
	grows  uint64
}

// New creates a ledger with a single free chunk spanning capacity bytes.
func New(capacity int) (*Ledger, error) {
	if capacity <= 0 {
		return nil, ErrInvalidSize
	}
	return &Ledger{
		chunks:   []Chunk{{Base: 0, Size: capacity}},
		capacity: capacity,
		free:     capacity,
		live:     roaring64.New(),
		released: roaring64.New(),
	}, nil
}

// Capacity returns the number of bytes the ledger partitions.
func (l *Ledger) Capacity() int { return l.capacity }

// Available returns the sum of free chunk sizes. It is advisory: fragmentation
// may prevent a single allocation of that size.
func (l *Ledger) Available() int { return l.free }

// Len returns the number of chunk descriptors.
func (l *Ledger) Len() int { return len(l.chunks) }

// Chunks returns a copy of the descriptors in ledger order.
func (l *Ledger) Chunks() []Chunk { return slices.Clone(l.chunks) }

// search returns the index of the first chunk whose base is >= base.
func (l *Ledger) search(base int) int {
	return sort.Search(len(l.chunks), func(i int) bool { return l.chunks[i].Base >= base })
}

// liveIndex returns the index of the in-use chunk starting at base.
func (l *Ledger) liveIndex(base int) (int, bool) {
	if base < 0 || base >= l.capacity || !l.live.Contains(uint64(base)) {
		return 0, false
	}
	i := l.search(base)
	if i == len(l.chunks) || l.chunks[i].Base != base || !l.chunks[i].InUse {
		// The bitmap and the slice disagree; treat as not found.
		return 0, false
	}
	return i, true
}

// FindFit allocates the first free chunk that can hold size bytes and returns
// its base. An oversized chunk is split into {used: size} followed by the free
// remainder.
func (l *Ledger) FindFit(size int) (int, error) {
	if size <= 0 {
		return 0, ErrInvalidSize
	}
	if size > l.free {
		return 0, ErrOutOfMemory
	}

	for i := range l.chunks {
		c := l.chunks[i]
		if c.InUse || c.Size < size {
			continue
		}

		l.chunks[i] = Chunk{Base: c.Base, Size: size, InUse: true}
		if rest := c.Size - size; rest > 0 {
			l.chunks = slices.Insert(l.chunks, i+1, Chunk{Base: c.Base + size, Size: rest})
		}

		l.free -= size
		l.allocs++
		l.live.Add(uint64(c.Base))
		l.released.RemoveRange(uint64(c.Base), uint64(c.Base+size))
		return c.Base, nil
	}

	return 0, ErrOutOfMemory
}

// Release frees the in-use chunk starting at base and merges it with free
// neighbors. It returns the number of bytes the chunk held.
func (l *Ledger) Release(base int) (int, error) {
	i, ok := l.liveIndex(base)
	if !ok {
		if base >= 0 && l.released.Contains(uint64(base)) {
			return 0, ErrDoubleFree
		}
		return 0, ErrInvalidPointer
	}

	size := l.chunks[i].Size
	l.chunks[i].InUse = false
	l.free += size
	l.frees++
	l.live.Remove(uint64(base))
	l.released.Add(uint64(base))

	if i+1 < len(l.chunks) && !l.chunks[i+1].InUse {
		l.chunks[i].Size += l.chunks[i+1].Size
		l.chunks = slices.Delete(l.chunks, i+1, i+2)
	}
	if i > 0 && !l.chunks[i-1].InUse {
		l.chunks[i-1].Size += l.chunks[i].Size
		l.chunks = slices.Delete(l.chunks, i, i+1)
	}

	return size, nil
}

// Resize changes the size of the in-use chunk at base without moving it.
// Shrinking always succeeds and hands the tail to the following free chunk
// (or to a new one). Growing succeeds only when the next chunk is free and
// large enough; otherwise Resize reports false and leaves the ledger unchanged.
func (l *Ledger) Resize(base, newSize int) (bool, error) {
	if newSize <= 0 {
		return false, ErrInvalidSize
	}
	i, ok := l.liveIndex(base)
	if !ok {
		return false, ErrInvalidPointer
	}

	c := &l.chunks[i]
	switch {
	case newSize == c.Size:
		return true, nil

	case newSize < c.Size:
		tail := c.Size - newSize
		c.Size = newSize
		l.free += tail
		if i+1 < len(l.chunks) && !l.chunks[i+1].InUse {
			l.chunks[i+1].Base -= tail
			l.chunks[i+1].Size += tail
		} else {
			l.chunks = slices.Insert(l.chunks, i+1, Chunk{Base: base + newSize, Size: tail})
		}
		return true, nil

	default:
		delta := newSize - c.Size
		if i+1 >= len(l.chunks) || l.chunks[i+1].InUse || l.chunks[i+1].Size < delta {
			return false, nil
		}
		next := &l.chunks[i+1]
		l.released.RemoveRange(uint64(next.Base), uint64(next.Base+delta))
		c.Size = newSize
		l.free -= delta
		l.grows++
		if next.Size == delta {
			l.chunks = slices.Delete(l.chunks, i+1, i+2)
		} else {
			next.Base += delta
			next.Size -= delta
		}
		return true, nil
	}
}

// Lookup returns the in-use chunk starting at base.
func (l *Ledger) Lookup(base int) (Chunk, bool) {
	i, ok := l.liveIndex(base)
	if !ok {
		return Chunk{}, false
	}
	return l.chunks[i], true
}

// Containing returns the chunk, free or in use, that covers off.
func (l *Ledger) Containing(off int) (Chunk, bool) {
	if off < 0 || off >= l.capacity {
		return Chunk{}, false
	}
	i := sort.Search(len(l.chunks), func(i int) bool { return l.chunks[i].End() > off })
	if i == len(l.chunks) {
		return Chunk{}, false
	}
	return l.chunks[i], true
}

// Stats returns a summary of the current state.
func (l *Ledger) Stats() Stats {
	s := Stats{
		Chunks:       len(l.chunks),
		FreeBytes:    l.free,
		InUseBytes:   l.capacity - l.free,
		TotalAllocs:  l.allocs,
		TotalFrees:   l.frees,
		InPlaceGrows: l.grows,
	}
	for _, c := range l.chunks {
		if c.InUse {
			s.LiveChunks++
			continue
		}
		s.FreeChunks++
		s.LargestFree = max(s.LargestFree, c.Size)
	}
	return s
}

// Validate checks every structural invariant and reports the first violation.
func (l *Ledger) Validate() error {
	next, free, live := 0, 0, 0
	for i, c := range l.chunks {
		if c.Base != next {
			return fmt.Errorf("%w: chunk %d starts at %d, want %d", ErrCorrupt, i, c.Base, next)
		}
		if c.Size <= 0 {
			return fmt.Errorf("%w: chunk %d has size %d", ErrCorrupt, i, c.Size)
		}
		if i > 0 && !c.InUse && !l.chunks[i-1].InUse {
			return fmt.Errorf("%w: adjacent free chunks at %d and %d", ErrCorrupt, l.chunks[i-1].Base, c.Base)
		}
		if c.InUse {
			live++
			if !l.live.Contains(uint64(c.Base)) {
				return fmt.Errorf("%w: in-use chunk %d not indexed", ErrCorrupt, c.Base)
			}
		} else {
			free += c.Size
		}
		next = c.End()
	}
	if next != l.capacity {
		return fmt.Errorf("%w: chunks cover %d of %d bytes", ErrCorrupt, next, l.capacity)
	}
	if free != l.free {
		return fmt.Errorf("%w: free bytes %d, counter says %d", ErrCorrupt, free, l.free)
	}
	if uint64(live) != l.live.GetCardinality() {
		return fmt.Errorf("%w: %d in-use chunks, %d indexed", ErrCorrupt, live, l.live.GetCardinality())
	}
	return nil
}
