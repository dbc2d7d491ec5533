// Package alloc defines the device-memory allocator contract for devmem.
//
// An Allocator owns an opaque device address space: it hands out device
// addresses, releases them, and moves raw bytes between host and device.
// The buffer package builds typed, owned buffers on top of this interface;
// everything below it (WebGPU, host-memory simulation) is interchangeable.
package alloc

import (
	"errors"
	"unsafe"
)

// DevicePtr is an opaque device address returned by an Allocator.
// It is only meaningful to the allocator that produced it and must never
// be dereferenced from host code.
type DevicePtr unsafe.Pointer

// IsNil reports whether p is the null device address.
func (p DevicePtr) IsNil() bool {
	return unsafe.Pointer(p) == nil
}

// Failure classes shared by all allocator implementations.
// Implementations wrap these with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is.
var (
	// ErrAllocationFailed reports that the device could not satisfy a Malloc.
	ErrAllocationFailed = errors.New("devmem: allocation failed")

	// ErrTransferFailed reports a failed host/device or device/device copy.
	ErrTransferFailed = errors.New("devmem: transfer failed")

	// ErrInvalidHandle reports a device address the allocator does not own,
	// including addresses that were already freed.
	ErrInvalidHandle = errors.New("devmem: invalid device handle")
)

// Allocator is the external device-memory interface: one allocation entry
// point, one release entry point, and the three copy directions.
//
// All operations are synchronous and return only after the bytes have moved.
// Implementations must be safe for concurrent use; ordering between
// operations on distinct allocations is unspecified.
type Allocator interface {
	// Malloc allocates size bytes of device memory. The contents of the
	// returned region are unspecified until written. Implementations may
	// round the region up to a device-specific alignment; callers only
	// rely on the first size bytes.
	Malloc(size uint64) (DevicePtr, error)

	// Free releases a region previously returned by Malloc. Freeing an
	// address not owned by this allocator reports ErrInvalidHandle.
	Free(ptr DevicePtr) error

	// MemcpyHtoD copies len(src) bytes from host memory into dst.
	MemcpyHtoD(dst DevicePtr, src []byte) error

	// MemcpyDtoH copies len(dst) bytes from src into host memory.
	MemcpyDtoH(dst []byte, src DevicePtr) error

	// MemcpyDtoD copies size bytes between two device regions.
	// The regions must not overlap.
	MemcpyDtoD(dst, src DevicePtr, size uint64) error
}
