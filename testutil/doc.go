// Package testutil provides testing utilities for valloc.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, goroutine-safe RNG and generators for random
// allocation workloads, and a bitset-backed Coverage model that detects
// overlapping chunks.
//
// # Random Workloads
//
//	rng := testutil.NewRNG(seed)
//	for _, op := range rng.Workload(1000, 64, 16) {
//	    switch op.Kind {
//	    case testutil.OpAlloc:   // allocate op.Size bytes into slot op.Slot
//	    case testutil.OpFree:    // free whatever slot op.Slot holds
//	    case testutil.OpRealloc: // resize slot op.Slot to op.Size bytes
//	    }
//	}
//
// # Skewed Sizes
//
//	size := 1 + rng.Zipf(256, 1.2) // many small requests, few large ones
package testutil
