package valloc

import (
	"fmt"

	"github.com/hupe1980/valloc/internal/layout"
)

type ptrState uint8

const (
	ptrNull ptrState = iota
	ptrLive
	ptrFreed
)

// Ptr is a typed reference into an allocator's arena.
//
// A Ptr names a location: the base of the chunk it was derived from, a byte
// offset and a logical element index. It owns nothing and stays valid only
// while its chunk is allocated. The zero value is the NULL pointer.
//
// Pointer arithmetic moves in units of the element type T. Bounds are not
// checked until the pointer is dereferenced with Read or Write.
type Ptr[T any] struct {
	base  int
	off   int
	index int
	state ptrState
}

// NullPtr returns the NULL pointer for element type T.
func NullPtr[T any]() Ptr[T] { return Ptr[T]{} }

// IsNull reports whether p is NULL. A freed handle is NULL.
func (p Ptr[T]) IsNull() bool { return p.state != ptrLive }

// Offset returns the byte offset of p within the arena.
func (p Ptr[T]) Offset() (int, error) {
	if p.IsNull() {
		return 0, ErrNullPointer
	}
	return p.off, nil
}

// Base returns the base offset of the chunk p was derived from.
func (p Ptr[T]) Base() (int, error) {
	if p.IsNull() {
		return 0, ErrNullPointer
	}
	return p.base, nil
}

// Index returns the logical element index of p relative to its chunk base.
// It is 0 for a freshly allocated pointer and for NULL.
func (p Ptr[T]) Index() int { return p.index }

// IsBase reports whether p points at the base of its chunk.
func (p Ptr[T]) IsBase() bool { return !p.IsNull() && p.off == p.base }

// Add advances p by n elements of T. Adding to NULL yields NULL.
func (p Ptr[T]) Add(n int) Ptr[T] {
	if p.IsNull() {
		return p
	}
	p.off += n * layout.Size[T]()
	p.index += n
	return p
}

// Sub moves p back by n elements of T. Subtracting from NULL yields NULL.
func (p Ptr[T]) Sub(n int) Ptr[T] { return p.Add(-n) }

// Equal reports whether p and q name the same location.
func (p Ptr[T]) Equal(q Ptr[T]) bool {
	if p.IsNull() || q.IsNull() {
		return p.IsNull() == q.IsNull()
	}
	return p.base == q.base && p.off == q.off
}

// String returns a debugging representation of p.
func (p Ptr[T]) String() string {
	var zero T
	if p.IsNull() {
		return fmt.Sprintf("Ptr[%T]{NULL}", zero)
	}
	return fmt.Sprintf("Ptr[%T]{base: %d, offset: %d, index: %d}", zero, p.base, p.off, p.index)
}

// Cast reinterprets p as a pointer to U at the same location. The logical
// index is carried over unchanged, so it no longer counts elements of U.
func Cast[U, T any](p Ptr[T]) (Ptr[U], error) {
	if p.IsNull() {
		return Ptr[U]{}, ErrNullPointer
	}
	return Ptr[U]{base: p.base, off: p.off, index: p.index, state: ptrLive}, nil
}

// PtrAt rebuilds a pointer from a chunk base and an element index, for
// example from a handle that crossed a process or language boundary. A
// negative base yields NULL. The result is not validated until it is used.
func PtrAt[T any](base, index int) Ptr[T] {
	if base < 0 {
		return Ptr[T]{}
	}
	return basePtr[T](base).Add(index)
}

func basePtr[T any](base int) Ptr[T] {
	return Ptr[T]{base: base, off: base, state: ptrLive}
}
