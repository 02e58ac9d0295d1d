// Package ledger tracks which byte ranges of an arena are free and which are in use.
//
// The ledger is an ordered slice of chunk descriptors that tiles [0, capacity)
// exactly: bases are strictly increasing, consecutive chunks are adjacent and
// the sizes sum to the capacity. Allocation is first-fit with splitting;
// release coalesces eagerly, so two free chunks are never neighbors once a
// call returns.
//
// A chunk is identified by its base offset. Two roaring bitmaps index bases:
//
//   - live: bases of in-use chunks (O(1) handle validation)
//   - released: bases handed to Release whose bytes have not been handed out
//     again (distinguishes double free from a foreign or interior offset)
//
// The ledger is not safe for concurrent use.
package ledger
