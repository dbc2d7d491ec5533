// Package hostmem implements alloc.Allocator in ordinary host memory.
//
// Each "device" region is an ordinary byte slice held behind an opaque
// address, so the buffer layer can be exercised end-to-end without a GPU.
// Unlike a real device allocator it validates every handle, which makes it
// the test double of choice for double-free and invalid-copy cases.
package hostmem

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/devmem/alloc"
)

// Allocator is a host-memory device simulator.
// Safe for concurrent use.
type Allocator struct {
	mu      sync.Mutex
	regions map[alloc.DevicePtr][]byte
	limit   uint64 // 0 = unlimited
	used    uint64
}

// New creates an allocator with no memory limit.
func New() *Allocator {
	return &Allocator{
		regions: make(map[alloc.DevicePtr][]byte),
	}
}

// NewWithLimit creates an allocator that fails allocations once more than
// limit bytes would be live. Used to exercise allocation-failure paths.
func NewWithLimit(limit uint64) *Allocator {
	a := New()
	a.limit = limit
	return a
}

// Malloc allocates a host-backed region of size bytes.
// Zero-byte allocations are rejected, matching the CUDA runtime convention.
func (a *Allocator) Malloc(size uint64) (alloc.DevicePtr, error) {
	if size == 0 {
		return nil, fmt.Errorf("hostmem: zero-byte allocation: %w", alloc.ErrAllocationFailed)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.limit > 0 && a.used+size > a.limit {
		return nil, fmt.Errorf("hostmem: limit %d exceeded: %w", a.limit, alloc.ErrAllocationFailed)
	}

	region := make([]byte, size)
	ptr := alloc.DevicePtr(unsafe.Pointer(unsafe.SliceData(region)))
	a.regions[ptr] = region
	a.used += size

	return ptr, nil
}

// Free releases a region. Unknown or already-freed addresses report
// ErrInvalidHandle.
func (a *Allocator) Free(ptr alloc.DevicePtr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	region, ok := a.regions[ptr]
	if !ok {
		return fmt.Errorf("hostmem: free of unknown address: %w", alloc.ErrInvalidHandle)
	}
	delete(a.regions, ptr)
	a.used -= uint64(len(region))

	return nil
}

// MemcpyHtoD copies len(src) bytes from host memory into dst.
func (a *Allocator) MemcpyHtoD(dst alloc.DevicePtr, src []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	region, ok := a.regions[dst]
	if !ok {
		return fmt.Errorf("hostmem: copy to unknown address: %w", alloc.ErrInvalidHandle)
	}
	if len(src) > len(region) {
		return fmt.Errorf("hostmem: copy of %d bytes into %d-byte region: %w",
			len(src), len(region), alloc.ErrTransferFailed)
	}
	copy(region, src)

	return nil
}

// MemcpyDtoH copies len(dst) bytes from src into host memory.
func (a *Allocator) MemcpyDtoH(dst []byte, src alloc.DevicePtr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	region, ok := a.regions[src]
	if !ok {
		return fmt.Errorf("hostmem: copy from unknown address: %w", alloc.ErrInvalidHandle)
	}
	if len(dst) > len(region) {
		return fmt.Errorf("hostmem: copy of %d bytes from %d-byte region: %w",
			len(dst), len(region), alloc.ErrTransferFailed)
	}
	copy(dst, region)

	return nil
}

// MemcpyDtoD copies size bytes between two regions.
func (a *Allocator) MemcpyDtoD(dst, src alloc.DevicePtr, size uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dstRegion, ok := a.regions[dst]
	if !ok {
		return fmt.Errorf("hostmem: copy to unknown address: %w", alloc.ErrInvalidHandle)
	}
	srcRegion, ok := a.regions[src]
	if !ok {
		return fmt.Errorf("hostmem: copy from unknown address: %w", alloc.ErrInvalidHandle)
	}
	if size > uint64(len(dstRegion)) || size > uint64(len(srcRegion)) {
		return fmt.Errorf("hostmem: copy of %d bytes between %d and %d-byte regions: %w",
			size, len(srcRegion), len(dstRegion), alloc.ErrTransferFailed)
	}
	copy(dstRegion[:size], srcRegion[:size])

	return nil
}

// InUse returns the number of live bytes.
func (a *Allocator) InUse() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Compile-time check that Allocator implements alloc.Allocator.
var _ alloc.Allocator = (*Allocator)(nil)
