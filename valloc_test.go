package valloc_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/valloc"
	"github.com/hupe1980/valloc/resource"
	"github.com/hupe1980/valloc/testutil"
)

func newAllocator(t *testing.T, capacity int, opts ...valloc.Option) *valloc.Allocator {
	t.Helper()
	a, err := valloc.New(capacity, append(opts, valloc.WithVerify())...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestHelloRoundTrip(t *testing.T) {
	a := newAllocator(t, 1024)

	p, err := valloc.Alloc[byte](a, 6)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Index())
	before := a.Available()

	require.NoError(t, valloc.WriteBuffer(a, p, []byte("Hello")))
	got, err := valloc.ReadBuffer(a, p, 5)
	require.NoError(t, err)
	assert.Equal(t, "Hello", string(got))

	require.NoError(t, valloc.Free(a, &p))
	assert.True(t, p.IsNull())
	assert.Equal(t, before+6, a.Available())
	assert.Equal(t, 1024, a.Available())
}

func TestFree_DoubleFree(t *testing.T) {
	a := newAllocator(t, 64)

	t.Run("same handle", func(t *testing.T) {
		p, err := valloc.Alloc[byte](a, 1)
		require.NoError(t, err)
		require.NoError(t, valloc.Free(a, &p))
		assert.ErrorIs(t, valloc.Free(a, &p), valloc.ErrDoubleFree)
	})

	t.Run("stale alias", func(t *testing.T) {
		p, err := valloc.Alloc[byte](a, 8)
		require.NoError(t, err)
		alias := p
		require.NoError(t, valloc.Free(a, &p))
		assert.ErrorIs(t, valloc.Free(a, &alias), valloc.ErrDoubleFree)
	})

	assert.Equal(t, 64, a.Available())
}

func TestFree_Errors(t *testing.T) {
	a := newAllocator(t, 64)

	null := valloc.NullPtr[byte]()
	assert.ErrorIs(t, valloc.Free(a, &null), valloc.ErrNullPointer)
	assert.ErrorIs(t, valloc.Free[byte](a, nil), valloc.ErrNullPointer)

	p, err := valloc.Alloc[byte](a, 8)
	require.NoError(t, err)

	interior := p.Add(1)
	assert.ErrorIs(t, valloc.Free(a, &interior), valloc.ErrInvalidPointer)
	assert.False(t, interior.IsNull(), "failed free must not clear the handle")

	require.NoError(t, valloc.Free(a, &p))
}

func TestAlloc_Errors(t *testing.T) {
	a := newAllocator(t, 16)

	_, err := valloc.Alloc[byte](a, 0)
	assert.ErrorIs(t, err, valloc.ErrZeroSize)

	var allocErr *valloc.AllocError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, 0, allocErr.Size)

	_, err = valloc.Alloc[byte](a, 17)
	assert.ErrorIs(t, err, valloc.ErrOutOfMemory)

	_, err = valloc.AllocTyped[uint64](a, 3)
	assert.ErrorIs(t, err, valloc.ErrOutOfMemory)

	_, err = valloc.AllocTyped[uint64](a, 1<<62)
	assert.ErrorIs(t, err, valloc.ErrOutOfMemory)

	_, err = valloc.AllocTyped[uint64](a, 0)
	assert.ErrorIs(t, err, valloc.ErrZeroSize)

	_, err = valloc.Alloc[*int](a, 8)
	assert.ErrorIs(t, err, valloc.ErrUnsupportedType)

	_, err = valloc.Alloc[string](a, 8)
	assert.ErrorIs(t, err, valloc.ErrUnsupportedType)

	assert.Equal(t, 16, a.Available())
}

func TestAlloc_FirstFitReusesBase(t *testing.T) {
	a := newAllocator(t, 128)

	p, err := valloc.Alloc[byte](a, 24)
	require.NoError(t, err)
	base, err := p.Base()
	require.NoError(t, err)
	require.NoError(t, valloc.Free(a, &p))

	q, err := valloc.Alloc[byte](a, 24)
	require.NoError(t, err)
	again, err := q.Base()
	require.NoError(t, err)
	assert.Equal(t, base, again)
}

func TestCoalescing(t *testing.T) {
	orders := map[string][2]int{
		"A then B": {0, 1},
		"B then A": {1, 0},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			a := newAllocator(t, 16)

			var ptrs [2]valloc.Ptr[byte]
			for i := range ptrs {
				p, err := valloc.Alloc[byte](a, 4)
				require.NoError(t, err)
				ptrs[i] = p
			}

			require.NoError(t, valloc.Free(a, &ptrs[order[0]]))
			require.NoError(t, valloc.Free(a, &ptrs[order[1]]))

			assert.Equal(t, 16, a.Available())
			assert.Equal(t, []valloc.ChunkInfo{{Base: 0, Size: 16, InUse: false}}, a.Chunks())
		})
	}
}

func TestRealloc_CapacityExceeded(t *testing.T) {
	a := newAllocator(t, 10)

	p, err := valloc.Alloc[byte](a, 1)
	require.NoError(t, err)
	require.NoError(t, valloc.Write(a, p, 42))

	q, err := valloc.Realloc(a, p, 1_000_000)
	assert.ErrorIs(t, err, valloc.ErrCapacityExceeded)
	assert.True(t, q.IsNull())

	v, err := valloc.Read(a, p)
	require.NoError(t, err)
	assert.Equal(t, byte(42), v)
}

func TestRealloc_OutOfMemoryKeepsOriginal(t *testing.T) {
	a := newAllocator(t, 10)

	p, err := valloc.Alloc[byte](a, 4)
	require.NoError(t, err)
	_, err = valloc.Alloc[byte](a, 4)
	require.NoError(t, err)
	require.NoError(t, valloc.WriteBuffer(a, p, []byte{1, 2, 3, 4}))

	_, err = valloc.Realloc(a, p, 8)
	assert.ErrorIs(t, err, valloc.ErrOutOfMemory)

	got, err := valloc.ReadBuffer(a, p, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	size, err := valloc.SizeOf(a, p)
	require.NoError(t, err)
	assert.Equal(t, 4, size)
}

func TestRealloc_GrowInPlace(t *testing.T) {
	a := newAllocator(t, 64)

	p, err := valloc.Alloc[byte](a, 1)
	require.NoError(t, err)
	require.NoError(t, valloc.WriteBuffer(a, p, []byte{1}))

	q, err := valloc.Realloc(a, p, 2)
	require.NoError(t, err)
	assert.True(t, q.Equal(p), "growing into a free successor keeps the base")

	old, err := valloc.Read(a, q)
	require.NoError(t, err)
	assert.Equal(t, byte(1), old)

	require.NoError(t, valloc.Write(a, q.Add(1), 2))
	got, err := valloc.ReadBuffer(a, q, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, got)
	assert.Equal(t, uint64(1), a.Stats().InPlaceGrows)
}

func TestRealloc_Move(t *testing.T) {
	a := newAllocator(t, 16)

	p, err := valloc.Alloc[byte](a, 4)
	require.NoError(t, err)
	_, err = valloc.Alloc[byte](a, 4)
	require.NoError(t, err)
	require.NoError(t, valloc.WriteBuffer(a, p, []byte("abcd")))

	q, err := valloc.Realloc(a, p, 8)
	require.NoError(t, err)
	off, err := q.Offset()
	require.NoError(t, err)
	assert.Equal(t, 8, off)

	got, err := valloc.ReadBuffer(a, q, 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))

	assert.Equal(t, []valloc.ChunkInfo{
		{Base: 0, Size: 4, InUse: false},
		{Base: 4, Size: 4, InUse: true},
		{Base: 8, Size: 8, InUse: true},
	}, a.Chunks())

	_, err = valloc.Read(a, p)
	assert.ErrorIs(t, err, valloc.ErrInvalidAddress, "old chunk was freed by the move")
}

func TestRealloc_Shrink(t *testing.T) {
	a := newAllocator(t, 16)

	p, err := valloc.Alloc[byte](a, 8)
	require.NoError(t, err)
	require.NoError(t, valloc.WriteBuffer(a, p, []byte("abcdefgh")))

	q, err := valloc.Realloc(a, p, 4)
	require.NoError(t, err)
	assert.True(t, q.Equal(p))
	assert.Equal(t, 12, a.Available())
	assert.Equal(t, []valloc.ChunkInfo{
		{Base: 0, Size: 4, InUse: true},
		{Base: 4, Size: 12, InUse: false},
	}, a.Chunks())

	got, err := valloc.ReadBuffer(a, q, 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))

	_, err = valloc.Read(a, q.Add(4))
	assert.ErrorIs(t, err, valloc.ErrInvalidAddress)
}

func TestRealloc_Errors(t *testing.T) {
	a := newAllocator(t, 16)

	p, err := valloc.Alloc[byte](a, 4)
	require.NoError(t, err)

	same, err := valloc.Realloc(a, p, 4)
	require.NoError(t, err)
	assert.True(t, same.Equal(p))

	_, err = valloc.Realloc(a, p, 0)
	assert.ErrorIs(t, err, valloc.ErrZeroSize)

	_, err = valloc.Realloc(a, valloc.NullPtr[byte](), 4)
	assert.ErrorIs(t, err, valloc.ErrNullPointer)

	_, err = valloc.Realloc(a, p.Add(2), 8)
	assert.ErrorIs(t, err, valloc.ErrInvalidPointer)
}

type point struct {
	X int32
	Y float64
	Z [3]uint16
}

func TestTypedRoundTrip(t *testing.T) {
	a := newAllocator(t, 4096)

	values := []point{
		{X: 1, Y: 1.5, Z: [3]uint16{1, 2, 3}},
		{X: -7, Y: -0.25, Z: [3]uint16{65535, 0, 9}},
		{},
		{X: 1 << 30, Y: 3e10},
	}

	p, err := valloc.AllocTyped[point](a, len(values))
	require.NoError(t, err)

	size, err := valloc.SizeOf(a, p)
	require.NoError(t, err)
	assert.Equal(t, len(values)*int(unsafe.Sizeof(point{})), size)

	require.NoError(t, valloc.WriteBuffer(a, p, values))
	got, err := valloc.ReadBuffer(a, p, len(values))
	require.NoError(t, err)
	assert.Equal(t, values, got)

	third, err := valloc.Read(a, p.Add(3))
	require.NoError(t, err)
	assert.Equal(t, values[3], third)
	assert.Equal(t, 3, p.Add(3).Index())
	assert.Equal(t, 1, p.Add(3).Sub(2).Index())
}

func TestCast(t *testing.T) {
	a := newAllocator(t, 64)

	p, err := valloc.AllocTyped[uint32](a, 1)
	require.NoError(t, err)
	require.NoError(t, valloc.Write(a, p, 0x01020304))

	b, err := valloc.Cast[byte](p)
	require.NoError(t, err)
	assert.Equal(t, p.Index(), b.Index())

	got, err := valloc.ReadBuffer(a, b, 4)
	require.NoError(t, err)

	want := make([]byte, 4)
	binary.NativeEndian.PutUint32(want, 0x01020304)
	assert.Equal(t, want, got)

	_, err = valloc.Cast[byte](valloc.NullPtr[uint32]())
	assert.ErrorIs(t, err, valloc.ErrNullPointer)
}

func TestAccess_Errors(t *testing.T) {
	a := newAllocator(t, 64)

	p, err := valloc.AllocTyped[int32](a, 1)
	require.NoError(t, err)

	t.Run("null", func(t *testing.T) {
		_, err := valloc.Read(a, valloc.NullPtr[int32]())
		assert.ErrorIs(t, err, valloc.ErrNullPointer)

		var accessErr *valloc.AccessError
		require.ErrorAs(t, err, &accessErr)
		assert.Equal(t, "read", accessErr.Op)
	})

	t.Run("past chunk end", func(t *testing.T) {
		err := valloc.Write(a, p.Add(1), 7)
		assert.ErrorIs(t, err, valloc.ErrInvalidAddress)

		var accessErr *valloc.AccessError
		require.ErrorAs(t, err, &accessErr)
		assert.Equal(t, "write", accessErr.Op)
		assert.Equal(t, 4, accessErr.Offset)
		assert.Equal(t, 4, accessErr.Size)
	})

	t.Run("before arena", func(t *testing.T) {
		_, err := valloc.Read(a, p.Sub(1))
		assert.ErrorIs(t, err, valloc.ErrInvalidAddress)
	})

	t.Run("wider type", func(t *testing.T) {
		wide, err := valloc.Cast[int64](p)
		require.NoError(t, err)
		_, err = valloc.Read(a, wide)
		assert.ErrorIs(t, err, valloc.ErrInvalidAddress)
	})

	t.Run("buffer overrun", func(t *testing.T) {
		err := valloc.WriteBuffer(a, p, []int32{1, 2})
		assert.ErrorIs(t, err, valloc.ErrInvalidAddress)

		v, err := valloc.Read(a, p)
		require.NoError(t, err)
		assert.Equal(t, int32(1), v, "elements before the failing one are written")

		_, err = valloc.ReadBuffer(a, p, 2)
		assert.ErrorIs(t, err, valloc.ErrInvalidAddress)

		_, err = valloc.ReadBuffer(a, p, -1)
		assert.ErrorIs(t, err, valloc.ErrInvalidAddress)
	})

	t.Run("after free", func(t *testing.T) {
		q, err := valloc.AllocTyped[int32](a, 1)
		require.NoError(t, err)
		alias := q
		require.NoError(t, valloc.Free(a, &q))

		_, err = valloc.Read(a, alias)
		assert.ErrorIs(t, err, valloc.ErrInvalidAddress)
		_, err = valloc.Read(a, q)
		assert.ErrorIs(t, err, valloc.ErrNullPointer)
	})
}

func TestFromBytes(t *testing.T) {
	buf := bytes.Repeat([]byte{0xEE}, 32)

	a, err := valloc.FromBytes(buf)
	require.NoError(t, err)

	p, err := valloc.Alloc[byte](a, 4)
	require.NoError(t, err)

	// Borrowed memory is not cleared.
	v, err := valloc.Read(a, p)
	require.NoError(t, err)
	assert.Equal(t, byte(0xEE), v)

	require.NoError(t, valloc.Write(a, p, 0x11))
	assert.Equal(t, byte(0x11), buf[0])

	require.NoError(t, a.Close())
	assert.Len(t, buf, 32)

	_, err = valloc.FromBytes(nil)
	assert.ErrorIs(t, err, valloc.ErrInvalidCapacity)
}

func TestNew_Errors(t *testing.T) {
	_, err := valloc.New(0)
	assert.ErrorIs(t, err, valloc.ErrInvalidCapacity)

	_, err = valloc.New(-1)
	assert.ErrorIs(t, err, valloc.ErrInvalidCapacity)

	rc := resource.NewController(resource.Config{})
	for _, opt := range []valloc.Option{valloc.WithMapped(), valloc.WithResourceController(rc)} {
		_, err = valloc.New(math.MaxInt, opt)
		assert.ErrorIs(t, err, valloc.ErrInvalidCapacity)
	}
	assert.Zero(t, rc.MemoryUsage())
}

func TestMapped(t *testing.T) {
	a := newAllocator(t, 1<<16, valloc.WithMapped())
	assert.Contains(t, a.String(), "backing: mmap")

	p, err := valloc.AllocTyped[uint64](a, 8)
	require.NoError(t, err)
	require.NoError(t, valloc.WriteBuffer(a, p, []uint64{1, 2, 3, 4, 5, 6, 7, 8}))

	got, err := valloc.ReadBuffer(a, p, 8)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestResourceController(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1024})

	a, err := valloc.New(768, valloc.WithResourceController(rc))
	require.NoError(t, err)
	assert.Equal(t, int64(768), rc.MemoryUsage())

	_, err = valloc.New(512, valloc.WithResourceController(rc))
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)

	require.NoError(t, a.Close())
	assert.Equal(t, int64(0), rc.MemoryUsage())

	b, err := valloc.New(512, valloc.WithResourceController(rc))
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

func TestClose(t *testing.T) {
	a, err := valloc.New(64)
	require.NoError(t, err)

	p, err := valloc.Alloc[byte](a, 4)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Contains(t, a.String(), "closed: true")

	_, err = valloc.Alloc[byte](a, 4)
	assert.ErrorIs(t, err, valloc.ErrClosed)
	_, err = valloc.Read(a, p)
	assert.ErrorIs(t, err, valloc.ErrClosed)
	assert.ErrorIs(t, valloc.Free(a, &p), valloc.ErrClosed)
	_, err = valloc.Realloc(a, p, 8)
	assert.ErrorIs(t, err, valloc.ErrClosed)
}

func TestStats(t *testing.T) {
	a := newAllocator(t, 100)

	p, err := valloc.Alloc[byte](a, 10)
	require.NoError(t, err)
	q, err := valloc.Alloc[byte](a, 20)
	require.NoError(t, err)
	_, err = valloc.Alloc[byte](a, 30)
	require.NoError(t, err)
	require.NoError(t, valloc.Free(a, &p))
	_ = q

	s := a.Stats()
	assert.Equal(t, 100, s.Capacity)
	assert.Equal(t, 50, s.Available)
	assert.Equal(t, 4, s.Chunks)
	assert.Equal(t, 2, s.LiveChunks)
	assert.Equal(t, 2, s.FreeChunks)
	assert.Equal(t, 40, s.LargestFree)
	assert.Equal(t, uint64(3), s.TotalAllocs)
	assert.Equal(t, uint64(1), s.TotalFrees)
	assert.InDelta(t, 0.2, s.Fragmentation(), 1e-9)
	assert.NoError(t, a.Verify())
}

type slot struct {
	p    valloc.Ptr[byte]
	size int
}

func fill(t *testing.T, a *valloc.Allocator, s slot, b byte) {
	t.Helper()
	require.NoError(t, valloc.WriteBuffer(a, s.p, bytes.Repeat([]byte{b}, s.size)))
}

// TestRandomWorkload drives the allocator with a random mix of operations and
// checks that live chunks never overlap and that realloc keeps the common
// prefix. WithVerify checks the tiling after every step.
func TestRandomWorkload(t *testing.T) {
	for _, seed := range []int64{3, 99, 2024} {
		rng := testutil.NewRNG(seed)
		a := newAllocator(t, 4096)
		cov := testutil.NewCoverage(4096)
		slots := make(map[int]slot)
		offset := func(p valloc.Ptr[byte]) int {
			off, err := p.Offset()
			require.NoError(t, err)
			return off
		}

		for i, op := range rng.Workload(2000, 160, 24) {
			fillByte := byte(op.Slot + 1)
			s, busy := slots[op.Slot]

			switch op.Kind {
			case testutil.OpAlloc:
				if busy {
					continue
				}
				p, err := valloc.Alloc[byte](a, op.Size)
				if err != nil {
					require.ErrorIs(t, err, valloc.ErrOutOfMemory, "step %d", i)
					continue
				}
				require.NoError(t, cov.Claim(offset(p), op.Size), "step %d", i)
				s = slot{p: p, size: op.Size}
				fill(t, a, s, fillByte)
				slots[op.Slot] = s

			case testutil.OpFree:
				if !busy {
					continue
				}
				require.NoError(t, cov.Release(offset(s.p), s.size))
				require.NoError(t, valloc.Free(a, &s.p), "step %d", i)
				delete(slots, op.Slot)

			case testutil.OpRealloc:
				if !busy {
					continue
				}
				q, err := valloc.Realloc(a, s.p, op.Size)
				if err != nil {
					require.True(t, errors.Is(err, valloc.ErrOutOfMemory), "step %d: %v", i, err)
					continue
				}
				kept := min(s.size, op.Size)
				got, err := valloc.ReadBuffer(a, q, kept)
				require.NoError(t, err, "step %d", i)
				require.Equal(t, bytes.Repeat([]byte{fillByte}, kept), got, "step %d", i)
				require.NoError(t, cov.Release(offset(s.p), s.size))
				require.NoError(t, cov.Claim(offset(q), op.Size), "step %d", i)

				s = slot{p: q, size: op.Size}
				fill(t, a, s, fillByte)
				slots[op.Slot] = s
			}

			used := 0
			for _, s := range slots {
				used += s.size
			}
			require.Equal(t, 4096-used, a.Available(), "step %d", i)
		}

		// Every surviving slot still holds its own pattern, so no two chunks overlap.
		for n, s := range slots {
			got, err := valloc.ReadBuffer(a, s.p, s.size)
			require.NoError(t, err)
			require.Equal(t, bytes.Repeat([]byte{byte(n + 1)}, s.size), got)
		}
	}
}

func BenchmarkAllocFree(b *testing.B) {
	a, err := valloc.New(1 << 20)
	require.NoError(b, err)
	defer a.Close()

	b.ReportAllocs()
	for b.Loop() {
		p, err := valloc.Alloc[byte](a, 64)
		if err != nil {
			b.Fatal(err)
		}
		if err := valloc.Free(a, &p); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkReadWrite(b *testing.B) {
	a, err := valloc.New(1 << 16)
	require.NoError(b, err)
	defer a.Close()

	p, err := valloc.AllocTyped[point](a, 1)
	require.NoError(b, err)
	v := point{X: 1, Y: 2, Z: [3]uint16{3, 4, 5}}

	b.ReportAllocs()
	for b.Loop() {
		if err := valloc.Write(a, p, v); err != nil {
			b.Fatal(err)
		}
		if _, err := valloc.Read(a, p); err != nil {
			b.Fatal(err)
		}
	}
}
