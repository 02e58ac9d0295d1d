package cabi

import (
	"sync"
	"sync/atomic"
)

const maxPooledBuffer = 64 << 10

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 512)
		return &b
	},
}

// Buffer holds bytes copied out of the arena. The consumer owns it until it
// calls Release, which hands the storage back exactly once.
type Buffer struct {
	Data []byte
	Len  int

	backing  *[]byte
	released atomic.Bool
}

func getBacking() *[]byte {
	b := bufferPool.Get().(*[]byte)
	*b = (*b)[:0]
	return b
}

// Release returns the buffer storage to the pool. It reports false when the
// buffer had already been released; Data must not be used afterwards.
func (b *Buffer) Release() bool {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return false
	}
	backing := b.backing
	b.Data, b.Len, b.backing = nil, 0, nil
	if backing != nil && cap(*backing) <= maxPooledBuffer {
		bufferPool.Put(backing)
	}
	return true
}
