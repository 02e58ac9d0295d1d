// Package hash provides the checksum used to protect heap dumps.
//
// Dumps are checksummed with CRC32-Castagnoli over the uncompressed arena
// bytes, so a corrupted payload is caught even when the codec happens to
// decode it. The standard library picks the SSE4.2 or ARM CRC instructions
// when the CPU has them.
//
//	checksum := hash.CRC32C(data)
package hash
