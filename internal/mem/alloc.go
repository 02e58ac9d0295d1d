package mem

import (
	"math"
	"unsafe"
)

// Alignment is the start alignment of heap-backed arenas: one cache line,
// which also satisfies the alignment of every fixed-size Go type.
const Alignment = 64

// MaxSize is the largest size AllocAligned accepts. It leaves room for the
// alignment padding and stays under the address space the Go runtime can
// allocate from.
const MaxSize = min(math.MaxInt-Alignment, 1<<47)

// AllocAligned allocates a zeroed byte slice of the given size whose first
// byte sits at an address divisible by Alignment. It returns nil for a
// non-positive size or one above MaxSize.
//
// The slice is carved out of a slightly larger allocation; its capacity is
// clipped to size so appends never reach the padding.
func AllocAligned(size int) []byte {
	if size <= 0 || size > MaxSize {
		return nil
	}

	buf := make([]byte, size+Alignment)

	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // unsafe is required for memory alignment
	offset := int((Alignment - (addr & (Alignment - 1))) & (Alignment - 1))

	return buf[offset : offset+size : offset+size]
}

// IsAligned reports whether b starts at an Alignment boundary. Empty slices
// are considered aligned.
func IsAligned(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&b[0]))&(Alignment-1) == 0 //nolint:gosec // unsafe is required for memory alignment
}
