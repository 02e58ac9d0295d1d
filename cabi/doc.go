// Package cabi adapts valloc to a C-style calling convention.
//
// C callers cannot receive Go errors or generic pointers, so every operation
// here works on bytes and plain structs and collapses failures into sentinel
// results:
//
//   - operations returning a RawPointer return Null (Address == NullAddress)
//   - operations returning bool return false
//   - ReadBuffer returns nil
//
// The cause is always logged through the allocator's logger. Nothing in this
// package panics on allocator errors.
//
// Package-level functions operate on the process-wide allocator installed by
// Init. An Instance wraps an explicitly owned allocator over caller memory.
//
// The //export shims that a cgo build would add on top of this package are not
// part of it.
package cabi
