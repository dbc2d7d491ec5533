// Package webgpu implements the device allocator over WebGPU storage buffers.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/devmem/alloc"
	"github.com/go-webgpu/webgpu/wgpu"
)

// Allocator allocates device memory as WebGPU storage buffers and moves
// bytes through staging buffers. Each device address is a *wgpu.Buffer
// behind the opaque alloc.DevicePtr.
//
// WebGPU requires buffer copies to be 4-byte aligned, so every region is
// rounded up to a 4-byte boundary; copies of unaligned byte counts move
// the aligned size on the device and trim on the host side.
type Allocator struct {
	instance    *wgpu.Instance
	adapter     *wgpu.Adapter
	device      *wgpu.Device
	queue       *wgpu.Queue
	adapterInfo *wgpu.AdapterInfo

	mu    sync.Mutex
	sizes map[alloc.DevicePtr]uint64 // aligned size per live buffer
}

// New creates a WebGPU-backed allocator.
// Returns an error if WebGPU is not available or initialization fails.
func New() (a *Allocator, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			a = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	// Create WebGPU instance
	instance := wgpu.CreateInstance(nil)
	// Request adapter (GPU)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	adapterInfo := adapter.GetInfo()

	// Request device
	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	// Get default queue
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Allocator{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		adapterInfo: &adapterInfo,
		sizes:       make(map[alloc.DevicePtr]uint64),
	}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// AdapterInfo returns information about the GPU adapter.
func (a *Allocator) AdapterInfo() *wgpu.AdapterInfo {
	return a.adapterInfo
}

// Name returns a human-readable device name.
func (a *Allocator) Name() string {
	if a.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", a.adapterInfo.Name, a.adapterInfo.VendorName)
	}
	return "WebGPU"
}

// Release frees all live buffers and tears down the WebGPU device.
// Must be called when the allocator is no longer needed; every DevicePtr
// it handed out is invalid afterwards.
func (a *Allocator) Release() {
	a.mu.Lock()
	for ptr := range a.sizes {
		bufferOf(ptr).Release()
	}
	a.sizes = make(map[alloc.DevicePtr]uint64)
	a.mu.Unlock()

	if a.queue != nil {
		a.queue.Release()
		a.queue = nil
	}
	if a.device != nil {
		a.device.Release()
		a.device = nil
	}
	if a.adapter != nil {
		a.adapter.Release()
		a.adapter = nil
	}
	if a.instance != nil {
		a.instance.Release()
		a.instance = nil
	}
}

// alignUp rounds size up to WebGPU's 4-byte copy alignment, with a 4-byte
// minimum buffer size.
func alignUp(size uint64) uint64 {
	if size < 4 {
		size = 4
	}
	return (size + 3) &^ 3
}

// bufferOf recovers the wgpu buffer behind an opaque device address.
func bufferOf(ptr alloc.DevicePtr) *wgpu.Buffer {
	return (*wgpu.Buffer)(unsafe.Pointer(ptr))
}

// Malloc allocates a storage buffer of at least size bytes.
func (a *Allocator) Malloc(size uint64) (alloc.DevicePtr, error) {
	if size == 0 {
		return nil, fmt.Errorf("webgpu: zero-byte allocation: %w", alloc.ErrAllocationFailed)
	}

	aligned := alignUp(size)
	buf := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  aligned,
	})
	if buf == nil {
		return nil, fmt.Errorf("webgpu: CreateBuffer of %d bytes: %w", aligned, alloc.ErrAllocationFailed)
	}

	ptr := alloc.DevicePtr(unsafe.Pointer(buf))
	a.mu.Lock()
	a.sizes[ptr] = aligned
	a.mu.Unlock()

	return ptr, nil
}

// Free releases a buffer previously returned by Malloc.
func (a *Allocator) Free(ptr alloc.DevicePtr) error {
	a.mu.Lock()
	if _, ok := a.sizes[ptr]; !ok {
		a.mu.Unlock()
		return fmt.Errorf("webgpu: free of unknown buffer: %w", alloc.ErrInvalidHandle)
	}
	delete(a.sizes, ptr)
	a.mu.Unlock()

	bufferOf(ptr).Release()
	return nil
}

// sizeOf looks up the aligned size of a live buffer.
func (a *Allocator) sizeOf(ptr alloc.DevicePtr) (uint64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	size, ok := a.sizes[ptr]
	return size, ok
}

// MemcpyHtoD uploads host bytes through a mapped-at-creation staging
// buffer, then copies staging to dst on the device.
func (a *Allocator) MemcpyHtoD(dst alloc.DevicePtr, src []byte) error {
	dstSize, ok := a.sizeOf(dst)
	if !ok {
		return fmt.Errorf("webgpu: copy to unknown buffer: %w", alloc.ErrInvalidHandle)
	}
	aligned := alignUp(uint64(len(src)))
	if aligned > dstSize {
		return fmt.Errorf("webgpu: copy of %d bytes into %d-byte buffer: %w",
			len(src), dstSize, alloc.ErrTransferFailed)
	}

	// Create staging buffer with MappedAtCreation for the upload
	staging := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             aligned,
		MappedAtCreation: wgpu.True,
	})
	if staging == nil {
		return fmt.Errorf("webgpu: staging buffer of %d bytes: %w", aligned, alloc.ErrAllocationFailed)
	}
	defer staging.Release()

	// Copy data to mapped staging buffer
	mappedPtr := staging.GetMappedRange(0, aligned)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), aligned)
	copy(mappedSlice, src)
	staging.Unmap()

	// Copy staging buffer to destination on the device
	encoder := a.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, bufferOf(dst), 0, aligned)
	cmdBuffer := encoder.Finish(nil)
	a.queue.Submit(cmdBuffer)

	return nil
}

// MemcpyDtoH reads device bytes back through a map-read staging buffer.
func (a *Allocator) MemcpyDtoH(dst []byte, src alloc.DevicePtr) error {
	srcSize, ok := a.sizeOf(src)
	if !ok {
		return fmt.Errorf("webgpu: copy from unknown buffer: %w", alloc.ErrInvalidHandle)
	}
	aligned := alignUp(uint64(len(dst)))
	if aligned > srcSize {
		return fmt.Errorf("webgpu: copy of %d bytes from %d-byte buffer: %w",
			len(dst), srcSize, alloc.ErrTransferFailed)
	}

	// Create staging buffer for reading (MAP_READ | COPY_DST)
	staging := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  aligned,
	})
	if staging == nil {
		return fmt.Errorf("webgpu: staging buffer of %d bytes: %w", aligned, alloc.ErrAllocationFailed)
	}
	defer staging.Release()

	// Copy from source buffer to staging buffer
	encoder := a.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(bufferOf(src), 0, staging, 0, aligned)
	cmdBuffer := encoder.Finish(nil)
	a.queue.Submit(cmdBuffer)

	// Map staging buffer for reading
	if err := staging.MapAsync(a.device, wgpu.MapModeRead, 0, aligned); err != nil {
		return fmt.Errorf("webgpu: failed to map staging buffer: %v: %w", err, alloc.ErrTransferFailed)
	}

	// Get mapped range and copy only the requested bytes
	mappedPtr := staging.GetMappedRange(0, aligned)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), aligned)
	copy(dst, mappedSlice[:len(dst)])
	staging.Unmap()

	return nil
}

// MemcpyDtoD copies size bytes between two device buffers with a single
// encoder pass.
func (a *Allocator) MemcpyDtoD(dst, src alloc.DevicePtr, size uint64) error {
	dstSize, ok := a.sizeOf(dst)
	if !ok {
		return fmt.Errorf("webgpu: copy to unknown buffer: %w", alloc.ErrInvalidHandle)
	}
	srcSize, ok := a.sizeOf(src)
	if !ok {
		return fmt.Errorf("webgpu: copy from unknown buffer: %w", alloc.ErrInvalidHandle)
	}
	aligned := alignUp(size)
	if aligned > dstSize || aligned > srcSize {
		return fmt.Errorf("webgpu: copy of %d bytes between %d and %d-byte buffers: %w",
			size, srcSize, dstSize, alloc.ErrTransferFailed)
	}

	encoder := a.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(bufferOf(src), 0, bufferOf(dst), 0, aligned)
	cmdBuffer := encoder.Finish(nil)
	a.queue.Submit(cmdBuffer)

	return nil
}

// Compile-time check that Allocator implements alloc.Allocator.
var _ alloc.Allocator = (*Allocator)(nil)
