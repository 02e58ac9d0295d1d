package valloc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/valloc/internal/arena"
	"github.com/hupe1980/valloc/internal/layout"
	"github.com/hupe1980/valloc/internal/ledger"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{ledger.ErrOutOfMemory, ErrOutOfMemory},
		{ledger.ErrInvalidSize, ErrZeroSize},
		{ledger.ErrDoubleFree, ErrDoubleFree},
		{ledger.ErrInvalidPointer, ErrInvalidPointer},
		{fmt.Errorf("wrapped: %w", arena.ErrOutOfBounds), ErrInvalidAddress},
		{arena.ErrInvalidCapacity, ErrInvalidCapacity},
		{arena.ErrClosed, ErrClosed},
		{layout.ErrUnsupportedType, ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.in.Error(), func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.in), tt.want)
		})
	}

	assert.NoError(t, translate(nil))

	other := errors.New("other")
	assert.Same(t, other, translate(other))
}

func TestStructuredErrors(t *testing.T) {
	allocErr := &AllocError{Size: 12, cause: ErrOutOfMemory}
	assert.Equal(t, "alloc of 12 bytes: valloc: out of memory", allocErr.Error())
	assert.ErrorIs(t, allocErr, ErrOutOfMemory)

	accessErr := &AccessError{Op: "read", Offset: 8, Size: 4, cause: ErrInvalidAddress}
	assert.Equal(t, "read of 4 bytes at offset 8: valloc: invalid address", accessErr.Error())
	assert.ErrorIs(t, accessErr, ErrInvalidAddress)
	assert.NotErrorIs(t, accessErr, ErrNullPointer)
}
