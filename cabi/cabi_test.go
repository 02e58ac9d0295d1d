package cabi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/valloc"
)

func newInstance(t *testing.T, size int) *Instance {
	t.Helper()
	in, err := NewInstance(make([]byte, size), valloc.WithVerify())
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })
	return in
}

func TestInstance_AllocLoadStore(t *testing.T) {
	in := newInstance(t, 64)

	p := in.Alloc(10)
	require.False(t, p.IsNull())
	assert.Equal(t, RawPointer{Address: 0, Length: 10, Index: 0}, p)

	for i := range uint64(10) {
		require.True(t, in.Store(p.At(i), byte('a'+i)))
	}
	v, ok := in.Load(p.At(3))
	require.True(t, ok)
	assert.Equal(t, byte('d'), v)

	_, ok = in.Load(p.At(10))
	assert.False(t, ok, "one past the chunk")
	assert.False(t, in.Store(p.At(10), 1))

	require.True(t, in.Free(&p))
	assert.True(t, p.IsNull())
	assert.False(t, in.Free(&p))
}

func TestInstance_Failures(t *testing.T) {
	in := newInstance(t, 16)

	assert.True(t, in.Alloc(0).IsNull())
	assert.True(t, in.Alloc(17).IsNull())
	assert.True(t, in.Alloc(NullAddress).IsNull())
	assert.False(t, in.Free(nil))

	null := Null
	assert.False(t, in.Free(&null))

	_, ok := in.Load(Null)
	assert.False(t, ok)
	assert.Nil(t, in.ReadBuffer(Null, 1))
	assert.True(t, in.Realloc(Null, 4).IsNull())
}

func TestInstance_DoubleFreeThroughCopy(t *testing.T) {
	in := newInstance(t, 16)

	p := in.Alloc(4)
	alias := p
	require.True(t, in.Free(&p))
	assert.False(t, in.Free(&alias))
	assert.False(t, alias.IsNull(), "failed free leaves the handle alone")
}

func TestInstance_Realloc(t *testing.T) {
	in := newInstance(t, 32)

	p := in.Alloc(4)
	blocker := in.Alloc(4)
	require.True(t, in.WriteBuffer(p, []byte{1, 2, 3, 4}))

	q := in.Realloc(p, 8)
	require.False(t, q.IsNull())
	assert.Equal(t, uint64(8), q.Address)
	assert.Equal(t, uint64(8), q.Length)

	buf := in.ReadBuffer(q, 4)
	require.NotNil(t, buf)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf.Data)
	assert.Equal(t, 4, buf.Len)
	buf.Release()

	assert.True(t, in.Realloc(q, 1<<20).IsNull())
	v, ok := in.Load(q)
	require.True(t, ok, "failed realloc keeps the chunk")
	assert.Equal(t, byte(1), v)

	require.True(t, in.Free(&blocker))
}

func TestBuffer_ReleaseOnce(t *testing.T) {
	in := newInstance(t, 16)

	p := in.Alloc(3)
	require.True(t, in.WriteBuffer(p, []byte("abc")))

	buf := in.ReadBuffer(p, 3)
	require.NotNil(t, buf)
	assert.Equal(t, "abc", string(buf.Data))

	assert.True(t, buf.Release())
	assert.False(t, buf.Release())
	assert.Nil(t, buf.Data)
	assert.Equal(t, 0, buf.Len)

	var nilBuf *Buffer
	assert.False(t, nilBuf.Release())

	assert.Nil(t, in.ReadBuffer(p, 4), "reads stop at the chunk end")
}

func TestRawPointer_Conversion(t *testing.T) {
	p := RawPointer{Address: 16, Length: 8, Index: 3}
	ptr := p.Ptr()

	off, err := ptr.Offset()
	require.NoError(t, err)
	assert.Equal(t, 19, off)
	assert.Equal(t, p, FromPtr(ptr, 8))

	assert.True(t, Null.Ptr().IsNull())
	assert.Equal(t, Null, FromPtr(valloc.NullPtr[byte](), 0))
	assert.Equal(t, Null, Null.At(4))
	assert.True(t, RawPointer{Address: 1 << 63}.Ptr().IsNull())

	// Negative values have no plain-data form.
	assert.Equal(t, Null, FromPtr(valloc.PtrAt[byte](16, 0).Sub(1), 8))
	assert.Equal(t, Null, FromPtr(valloc.PtrAt[byte](16, 0), -1))
}

// TestGlobal exercises the package-level API. The process-wide allocator
// cannot be torn down, so this is the only test that installs it.
func TestGlobal(t *testing.T) {
	_ = Init(1024)
	assert.False(t, Init(1024), "second init fails")

	p := Alloc(6)
	require.False(t, p.IsNull())
	require.True(t, WriteBuffer(p, []byte("Hello")))
	require.True(t, Store(p.At(5), '!'))

	c, ok := Load(p.At(5))
	require.True(t, ok)
	assert.Equal(t, byte('!'), c)

	buf := ReadBuffer(p, 6)
	require.NotNil(t, buf)
	assert.Equal(t, "Hello!", string(buf.Data))
	require.True(t, buf.Release())

	q := Realloc(p, 12)
	require.False(t, q.IsNull())
	require.True(t, Free(&q))
	assert.True(t, q.IsNull())
}
