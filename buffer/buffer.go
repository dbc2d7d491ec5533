// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package buffer provides typed, owned device memory buffers.
//
// A Buffer owns exactly one device allocation for its lifetime and mediates
// all data movement for it: host to device at construction, device to host
// via ToHost, device to device via Clone. Release frees the allocation
// exactly once; further Release calls are no-ops.
//
// Example:
//
//	import (
//	    "github.com/born-ml/devmem/alloc/webgpu"
//	    "github.com/born-ml/devmem/buffer"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//
//	    b, err := buffer.FromHost(gpu, []float32{1, 2, 3})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer b.Release()
//
//	    host, err := b.ToHost() // [1 2 3]
//	}
package buffer

import (
	"fmt"

	"github.com/born-ml/devmem/alloc"
)

// Buffer owns a single contiguous device allocation holding Len elements
// of T. The element count is fixed at construction. A Buffer must only be
// used from one goroutine at a time; the underlying allocator handles its
// own synchronization.
type Buffer[T Element] struct {
	a      alloc.Allocator
	ptr    alloc.DevicePtr
	length int
}

// FromHost allocates device memory for len(host) elements of T and copies
// the host data into it. The returned buffer owns the allocation; the host
// slice is not retained. A zero-length slice produces a valid buffer that
// owns no device memory.
func FromHost[T Element](a alloc.Allocator, host []T) (*Buffer[T], error) {
	b := &Buffer[T]{a: a, length: len(host)}
	if len(host) == 0 {
		return b, nil
	}

	ptr, err := a.Malloc(b.ByteSize())
	if err != nil {
		return nil, fmt.Errorf("buffer: FromHost: %w", err)
	}
	if err := a.MemcpyHtoD(ptr, hostBytes(host)); err != nil {
		_ = a.Free(ptr)
		return nil, fmt.Errorf("buffer: FromHost: %w", err)
	}
	b.ptr = ptr

	return b, nil
}

// Len returns the element count fixed at construction.
func (b *Buffer[T]) Len() int {
	return b.length
}

// ByteSize returns the size of the device allocation in bytes.
func (b *Buffer[T]) ByteSize() uint64 {
	return uint64(b.length) * sizeOf[T]()
}

// DevicePtr returns the raw device address for passing into device-side
// operations outside this package. It does not transfer ownership: the
// address must not be freed or reallocated by the caller, and device-side
// writes through it must not race ToHost, Clone, or Release.
// Returns the null address for zero-length or released buffers.
func (b *Buffer[T]) DevicePtr() alloc.DevicePtr {
	return b.ptr
}

// ToHost copies the buffer contents into a freshly allocated host slice.
// The device buffer is unchanged. Calling ToHost on a released buffer
// reports ErrInvalidHandle.
func (b *Buffer[T]) ToHost() ([]T, error) {
	if b.length == 0 {
		return []T{}, nil
	}
	if b.ptr.IsNil() {
		return nil, fmt.Errorf("buffer: ToHost of released buffer: %w", alloc.ErrInvalidHandle)
	}

	host := make([]T, b.length)
	if err := b.a.MemcpyDtoH(hostBytes(host), b.ptr); err != nil {
		return nil, fmt.Errorf("buffer: ToHost: %w", err)
	}

	return host, nil
}

// Clone allocates a new device region of the same size and copies this
// buffer's contents into it device-to-device. The two buffers own disjoint
// regions: later writes to one are not reflected in the other, and each is
// released independently.
func (b *Buffer[T]) Clone() (*Buffer[T], error) {
	if b.length == 0 {
		return &Buffer[T]{a: b.a}, nil
	}
	if b.ptr.IsNil() {
		return nil, fmt.Errorf("buffer: Clone of released buffer: %w", alloc.ErrInvalidHandle)
	}

	ptr, err := b.a.Malloc(b.ByteSize())
	if err != nil {
		return nil, fmt.Errorf("buffer: Clone: %w", err)
	}
	if err := b.a.MemcpyDtoD(ptr, b.ptr, b.ByteSize()); err != nil {
		_ = b.a.Free(ptr)
		return nil, fmt.Errorf("buffer: Clone: %w", err)
	}

	return &Buffer[T]{a: b.a, ptr: ptr, length: b.length}, nil
}

// Release frees the device allocation. The first call frees exactly once;
// subsequent calls are no-ops returning nil. After Release the buffer is
// invalid: ToHost and Clone report ErrInvalidHandle and DevicePtr returns
// the null address.
func (b *Buffer[T]) Release() error {
	if b.ptr.IsNil() {
		return nil
	}
	ptr := b.ptr
	b.ptr = nil

	if err := b.a.Free(ptr); err != nil {
		return fmt.Errorf("buffer: Release: %w", err)
	}
	return nil
}
