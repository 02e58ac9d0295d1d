// Package mem provides aligned heap allocation for arena memory.
//
// Offsets inside an arena are only as aligned as its first byte. Starting the
// buffer on a cache-line boundary keeps typed values at naturally aligned
// offsets also naturally aligned in host memory.
package mem
