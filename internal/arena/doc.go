// Package arena owns the single contiguous byte buffer an allocator carves up.
//
// The arena knows nothing about chunks or types. It hands out bounds-checked
// byte ranges and moves bytes between ranges; deciding which ranges are live
// is the ledger's job.
//
// # Backing Memory
//
//   - New: zero-filled Go heap slice
//   - New with WithMapped: zero-filled anonymous mapping outside the Go heap
//   - FromBytes: caller-supplied memory, adopted without zeroing
//
// # Safety
//
// All accessors return errors instead of panicking. Capacity never changes
// for the lifetime of an Arena.
package arena
