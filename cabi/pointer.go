package cabi

import (
	"math"

	"github.com/hupe1980/valloc"
	"github.com/hupe1980/valloc/internal/conv"
)

// NullAddress is the Address of the NULL RawPointer.
const NullAddress = math.MaxUint64

// Null is the NULL RawPointer.
var Null = RawPointer{Address: NullAddress}

// RawPointer is the plain-data form of a valloc pointer: the base offset and
// size of its chunk plus a byte index into the chunk.
type RawPointer struct {
	Address uint64
	Length  uint64
	Index   uint64
}

// IsNull reports whether p is the NULL pointer.
func (p RawPointer) IsNull() bool { return p.Address == NullAddress }

// At returns p advanced by n bytes. At on NULL yields NULL.
func (p RawPointer) At(n uint64) RawPointer {
	if p.IsNull() {
		return p
	}
	p.Index += n
	return p
}

// Ptr converts p to a valloc byte pointer. Addresses that do not fit the
// platform int convert to NULL.
func (p RawPointer) Ptr() valloc.Ptr[byte] {
	if p.IsNull() {
		return valloc.NullPtr[byte]()
	}
	base, err := conv.Uint64ToInt(p.Address)
	if err != nil {
		return valloc.NullPtr[byte]()
	}
	index, err := conv.Uint64ToInt(p.Index)
	if err != nil {
		return valloc.NullPtr[byte]()
	}
	return valloc.PtrAt[byte](base, index)
}

// FromPtr converts a valloc byte pointer into its plain-data form. length is
// the size of the chunk p belongs to. A negative length or index converts to
// NULL.
func FromPtr(p valloc.Ptr[byte], length int) RawPointer {
	base, err := p.Base()
	if err != nil {
		return Null
	}
	address, err := conv.IntToUint64(base)
	if err != nil {
		return Null
	}
	size, err := conv.IntToUint64(length)
	if err != nil {
		return Null
	}
	// Sub can move the index before the chunk start.
	index, err := conv.IntToUint64(p.Index())
	if err != nil {
		return Null
	}
	return RawPointer{Address: address, Length: size, Index: index}
}
