package buffer

import "unsafe"

// Element is the constraint for device buffer element types.
// It admits fixed-size types whose values can be duplicated by copying
// raw bytes, with no pointer semantics in their representation.
type Element interface {
	~float32 | ~float64 | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 | ~bool
}

// sizeOf returns the byte size of T.
func sizeOf[T Element]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

// hostBytes reinterprets a host slice as its raw bytes without copying.
func hostBytes[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation of host data
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(sizeOf[T]()))
}
