package testutil

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// Coverage records which bytes of an arena are claimed by live chunks and
// reports overlaps. It is the reference model for the no-double-allocation
// property.
type Coverage struct {
	bits     *bitset.BitSet
	capacity int
}

// NewCoverage creates a tracker for an arena of capacity bytes.
func NewCoverage(capacity int) *Coverage {
	return &Coverage{bits: bitset.New(uint(capacity)), capacity: capacity}
}

// Claim marks [base, base+size) as live. It fails if any byte is already
// claimed or the range leaves the arena.
func (c *Coverage) Claim(base, size int) error {
	if base < 0 || size <= 0 || base > c.capacity-size {
		return fmt.Errorf("range [%d, %d) outside arena of %d bytes", base, base+size, c.capacity)
	}
	for i := uint(base); i < uint(base+size); i++ {
		if c.bits.Test(i) {
			return fmt.Errorf("byte %d of [%d, %d) is already claimed", i, base, base+size)
		}
	}
	for i := uint(base); i < uint(base+size); i++ {
		c.bits.Set(i)
	}
	return nil
}

// Release clears [base, base+size). It fails if any byte was not claimed.
func (c *Coverage) Release(base, size int) error {
	if base < 0 || size <= 0 || base > c.capacity-size {
		return fmt.Errorf("range [%d, %d) outside arena of %d bytes", base, base+size, c.capacity)
	}
	for i := uint(base); i < uint(base+size); i++ {
		if !c.bits.Test(i) {
			return fmt.Errorf("byte %d of [%d, %d) was not claimed", i, base, base+size)
		}
	}
	for i := uint(base); i < uint(base+size); i++ {
		c.bits.Clear(i)
	}
	return nil
}

// Claimed returns the number of claimed bytes.
func (c *Coverage) Claimed() int {
	return int(c.bits.Count())
}
