// Package valloc provides a user-space allocator over a fixed-capacity arena.
//
// An Allocator owns one contiguous byte arena and a ledger that splits it into
// chunks. Allocation is first-fit: the first free chunk that is large enough
// is used and split. Freeing a chunk merges it with free neighbors at once, so
// two free chunks are never adjacent.
//
// # Quick Start
//
//	a, err := valloc.New(1 << 20)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//
//	p, _ := valloc.AllocTyped[uint64](a, 16)   // room for 16 uint64
//	_ = valloc.Write(a, p.Add(3), 42)          // element 3
//	v, _ := valloc.Read(a, p.Add(3))
//	_ = valloc.Free(a, &p)                     // p is NULL afterwards
//
// # Pointers
//
// Ptr[T] names a location in the arena; it does not hold Go memory. Values are
// copied in and out of the arena, so T must be free of Go pointers: numbers,
// bools, arrays and structs of those. Every Read and Write re-checks that the
// accessed bytes lie inside one allocated chunk and fails with
// ErrInvalidAddress otherwise.
//
// Only the pointer returned by Alloc or Realloc can be freed or resized.
// Freed memory is not cleared, and a stale copy of a pointer can see a later
// allocation that reuses the same bytes.
//
// # Reallocation
//
// Realloc shrinks in place, grows in place when the next chunk is free and big
// enough, and otherwise moves the contents to a new chunk. A failed Realloc
// leaves the original chunk untouched.
//
// # Concurrency
//
// An Allocator is not safe for concurrent use. Shared wraps one behind a
// mutex, and Init installs a process-wide Shared:
//
//	if err := valloc.Init(64 << 20); err != nil {
//	    log.Fatal(err)
//	}
//	err := valloc.MustDefault().Do(func(a *valloc.Allocator) error {
//	    p, err := valloc.Alloc[byte](a, 128)
//	    ...
//	})
//
// # Observability
//
// WithLogger and WithMetricsCollector hook into every operation; the
// prommetrics package exports the metrics to Prometheus. Dump writes the chunk
// table and arena bytes for offline inspection with ReadDump.
package valloc
