package valloc

import (
	"sync"
	"sync/atomic"
)

// Shared serializes access to an Allocator. All use of the wrapped allocator
// must go through Do.
type Shared struct {
	mu sync.Mutex
	a  *Allocator
}

// NewShared wraps a for use from several goroutines.
func NewShared(a *Allocator) *Shared {
	return &Shared{a: a}
}

// Do runs fn with exclusive access to the allocator and returns its error.
// fn must not retain the allocator after it returns.
func (s *Shared) Do(fn func(a *Allocator) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.a)
}

// Close closes the wrapped allocator.
func (s *Shared) Close() error {
	return s.Do(func(a *Allocator) error { return a.Close() })
}

var (
	initMu        sync.Mutex
	defaultShared atomic.Pointer[Shared]
)

// Init creates the process-wide allocator. It fails with ErrAlreadyInitialized
// once an earlier call has succeeded. A failed Init may be retried.
func Init(capacity int, opts ...Option) error {
	initMu.Lock()
	defer initMu.Unlock()

	if defaultShared.Load() != nil {
		return ErrAlreadyInitialized
	}

	a, err := New(capacity, opts...)
	if err != nil {
		return err
	}
	defaultShared.Store(NewShared(a))

	return nil
}

// Default returns the process-wide allocator created by Init.
func Default() (*Shared, error) {
	s := defaultShared.Load()
	if s == nil {
		return nil, ErrNotInitialized
	}
	return s, nil
}

// MustDefault is like Default but panics if Init has not been called.
func MustDefault() *Shared {
	s, err := Default()
	if err != nil {
		panic(err)
	}
	return s
}
