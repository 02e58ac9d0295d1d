// Package conv provides checked integer conversions.
//
// Sizes and offsets are ints inside the allocator but travel as uint64 in
// heap dumps and across the C boundary. Values read from those sources are
// untrusted and must be range-checked before use.
package conv
