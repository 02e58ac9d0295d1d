package cabi

import (
	"github.com/hupe1980/valloc"
	"github.com/hupe1980/valloc/internal/conv"
)

// Instance is an allocator reachable through the C-style API.
// It is safe for concurrent use.
type Instance struct {
	shared *valloc.Shared
}

// NewInstance creates an allocator over mem, which the caller keeps owning.
func NewInstance(mem []byte, opts ...valloc.Option) (*Instance, error) {
	a, err := valloc.FromBytes(mem, opts...)
	if err != nil {
		return nil, err
	}
	return Wrap(valloc.NewShared(a)), nil
}

// Wrap exposes s through the C-style API.
func Wrap(s *valloc.Shared) *Instance {
	return &Instance{shared: s}
}

// Close closes the underlying allocator.
func (in *Instance) Close() error {
	return in.shared.Close()
}

// Alloc reserves size bytes. It returns Null on failure.
func (in *Instance) Alloc(size uint64) RawPointer {
	out := Null
	_ = in.shared.Do(func(a *valloc.Allocator) error {
		p, err := valloc.Alloc[byte](a, conv.ClampUint64ToInt(size))
		if err != nil {
			return err
		}
		out = FromPtr(p, int(size))
		return nil
	})
	return out
}

// Free releases the chunk *p points to and sets *p to Null. It reports false
// if nothing was freed.
func (in *Instance) Free(p *RawPointer) bool {
	if p == nil {
		return false
	}
	err := in.shared.Do(func(a *valloc.Allocator) error {
		ptr := p.Ptr()
		if err := valloc.Free(a, &ptr); err != nil {
			return err
		}
		*p = Null
		return nil
	})
	return err == nil
}

// Realloc resizes the chunk p points to. It returns Null on failure, in
// which case p stays valid.
func (in *Instance) Realloc(p RawPointer, size uint64) RawPointer {
	out := Null
	_ = in.shared.Do(func(a *valloc.Allocator) error {
		q, err := valloc.Realloc(a, p.Ptr(), conv.ClampUint64ToInt(size))
		if err != nil {
			return err
		}
		out = FromPtr(q, int(size))
		return nil
	})
	return out
}

// Load reads the byte p points to. ok is false if p is not readable.
func (in *Instance) Load(p RawPointer) (v byte, ok bool) {
	err := in.shared.Do(func(a *valloc.Allocator) error {
		var err error
		v, err = valloc.Read(a, p.Ptr())
		return err
	})
	return v, err == nil
}

// Store writes v to the byte p points to.
func (in *Instance) Store(p RawPointer, v byte) bool {
	err := in.shared.Do(func(a *valloc.Allocator) error {
		return valloc.Write(a, p.Ptr(), v)
	})
	return err == nil
}

// ReadBuffer copies n bytes starting at p into a Buffer. It returns nil on
// failure. The caller must Release the buffer.
func (in *Instance) ReadBuffer(p RawPointer, n uint64) *Buffer {
	var out *Buffer
	_ = in.shared.Do(func(a *valloc.Allocator) error {
		backing := getBacking()
		data, err := valloc.AppendBuffer(a, *backing, p.Ptr(), conv.ClampUint64ToInt(n))
		if err != nil {
			bufferPool.Put(backing)
			return err
		}
		*backing = data
		out = &Buffer{Data: data, Len: len(data), backing: backing}
		return nil
	})
	return out
}

// WriteBuffer copies data to consecutive bytes starting at p. On failure the
// bytes before the first unwritable one have been written.
func (in *Instance) WriteBuffer(p RawPointer, data []byte) bool {
	err := in.shared.Do(func(a *valloc.Allocator) error {
		return valloc.WriteBuffer(a, p.Ptr(), data)
	})
	return err == nil
}
