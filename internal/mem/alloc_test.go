package mem

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocAligned(t *testing.T) {
	sizes := []int{1, 10, 63, 64, 65, 100, 1024, 4096}

	for _, size := range sizes {
		buf := AllocAligned(size)
		assert.Len(t, buf, size)
		assert.Equal(t, size, cap(buf))
		assert.True(t, IsAligned(buf), "size %d", size)
		assert.Equal(t, make([]byte, size), buf)
	}

	assert.Nil(t, AllocAligned(0))
	assert.Nil(t, AllocAligned(-1))
	assert.Nil(t, AllocAligned(MaxSize+1))
	assert.Nil(t, AllocAligned(math.MaxInt))
}

func TestIsAligned(t *testing.T) {
	buf := AllocAligned(128)
	assert.True(t, IsAligned(buf))
	assert.False(t, IsAligned(buf[1:]))
	assert.True(t, IsAligned(buf[Alignment:]))
	assert.True(t, IsAligned(nil))
}

func BenchmarkAllocAligned(b *testing.B) {
	for _, size := range []int{4096, 1 << 20} {
		b.Run(fmt.Sprintf("%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_ = AllocAligned(size)
			}
		})
	}
}
