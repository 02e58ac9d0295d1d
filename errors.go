package valloc

import (
	"errors"
	"fmt"

	"github.com/hupe1980/valloc/internal/arena"
	"github.com/hupe1980/valloc/internal/layout"
	"github.com/hupe1980/valloc/internal/ledger"
)

var (
	// ErrZeroSize is returned when an allocation or reallocation asks for zero bytes.
	ErrZeroSize = errors.New("valloc: zero-size request")
	// ErrOutOfMemory is returned when no free chunk can hold the request.
	ErrOutOfMemory = errors.New("valloc: out of memory")
	// ErrInvalidPointer is returned when a pointer is not the base of a live chunk.
	ErrInvalidPointer = errors.New("valloc: invalid pointer")
	// ErrDoubleFree is returned when a chunk is freed twice.
	ErrDoubleFree = errors.New("valloc: double free")
	// ErrNullPointer is returned when a NULL pointer is dereferenced.
	ErrNullPointer = errors.New("valloc: null pointer dereference")
	// ErrInvalidAddress is returned when an access falls outside every live chunk.
	ErrInvalidAddress = errors.New("valloc: invalid address")
	// ErrCapacityExceeded is returned when a reallocation is larger than the arena.
	ErrCapacityExceeded = errors.New("valloc: capacity exceeded")
	// ErrUnsupportedType is returned for element types that hold Go pointers.
	ErrUnsupportedType = errors.New("valloc: unsupported element type")
	// ErrInvalidCapacity is returned when an arena would be empty.
	ErrInvalidCapacity = errors.New("valloc: capacity must be positive")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("valloc: allocator closed")
	// ErrAlreadyInitialized is returned when the global allocator is initialized twice.
	ErrAlreadyInitialized = errors.New("valloc: global allocator already initialized")
	// ErrNotInitialized is returned when the global allocator is used before Init.
	ErrNotInitialized = errors.New("valloc: global allocator not initialized")
	// ErrCorruptDump is returned when a heap dump cannot be parsed.
	ErrCorruptDump = errors.New("valloc: corrupt heap dump")
)

// AllocError describes a failed allocation.
//
// The error kind (ErrOutOfMemory, ErrZeroSize, ...) can be matched with errors.Is.
type AllocError struct {
	Size  int
	cause error
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("alloc of %d bytes: %v", e.Size, e.cause)
}

func (e *AllocError) Unwrap() error { return e.cause }

// AccessError describes a failed read or write.
//
// The error kind (ErrInvalidAddress, ErrNullPointer, ...) can be matched with errors.Is.
type AccessError struct {
	Op     string
	Offset int
	Size   int
	cause  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s of %d bytes at offset %d: %v", e.Op, e.Size, e.Offset, e.cause)
}

func (e *AccessError) Unwrap() error { return e.cause }

// translate maps errors from the internal layers onto the public sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrOutOfMemory):
		return ErrOutOfMemory
	case errors.Is(err, ledger.ErrInvalidSize):
		return ErrZeroSize
	case errors.Is(err, ledger.ErrDoubleFree):
		return ErrDoubleFree
	case errors.Is(err, ledger.ErrInvalidPointer):
		return ErrInvalidPointer
	case errors.Is(err, arena.ErrOutOfBounds):
		return ErrInvalidAddress
	case errors.Is(err, arena.ErrInvalidCapacity):
		return ErrInvalidCapacity
	case errors.Is(err, arena.ErrClosed):
		return ErrClosed
	case errors.Is(err, layout.ErrUnsupportedType):
		return fmt.Errorf("%w: %w", ErrUnsupportedType, err)
	default:
		return err
	}
}
