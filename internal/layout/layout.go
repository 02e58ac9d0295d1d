// Package layout moves fixed-width values in and out of arena bytes.
//
// Values are copied byte for byte using unsafe.Sizeof(T); arena storage is
// never reinterpreted in place. Only pointer-free types qualify: a Go pointer
// hidden inside arena bytes would be invisible to the garbage collector.
package layout

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

// ErrUnsupportedType is returned for types that hold Go pointers.
var ErrUnsupportedType = errors.New("layout: type is not pointer-free")

var checked sync.Map // reflect.Type -> error (nil for supported types)

// Size returns the number of arena bytes one T occupies.
func Size[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Check reports whether T can be stored in an arena.
func Check[T any]() error {
	t := reflect.TypeFor[T]()
	if v, ok := checked.Load(t); ok {
		err, _ := v.(error)
		return err
	}

	var err error
	if !pointerFree(t) {
		err = fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	checked.Store(t, err)
	return err
}

func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// bytesOf views v's storage as bytes.
func bytesOf[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v)) //nolint:gosec // unsafe is required for raw value copies
}

// Encode copies v into dst. dst must hold at least Size[T]() bytes.
func Encode[T any](dst []byte, v T) {
	copy(dst, bytesOf(&v))
}

// Decode copies a T out of src. src must hold at least Size[T]() bytes.
func Decode[T any](src []byte) T {
	var v T
	copy(bytesOf(&v), src)
	return v
}
