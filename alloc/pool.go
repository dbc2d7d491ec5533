package alloc

import (
	"fmt"
	"sync"
)

// sizeClass represents different region size categories for pooling.
type sizeClass int

const (
	// smallClass for regions < 4KB.
	smallClass sizeClass = iota
	// mediumClass for regions 4KB-1MB.
	mediumClass
	// largeClass for regions > 1MB.
	largeClass
)

const (
	// Size thresholds for pool categories.
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPooled       = 100         // Max regions per category
)

// pooledRegion records a freed device region held for reuse.
type pooledRegion struct {
	ptr  DevicePtr
	size uint64
}

// Pool reuses freed device regions to reduce allocation overhead.
// Regions are categorized by size; Malloc returns a pooled region of at
// least the requested size when one is available. Pooled regions may be
// larger than requested, so callers must only rely on the bytes they
// asked for.
type Pool struct {
	inner Allocator

	mu sync.Mutex

	// Free lists organized by size category
	small  []pooledRegion
	medium []pooledRegion
	large  []pooledRegion

	// Actual region size for every pointer currently handed out
	live map[DevicePtr]uint64

	// Statistics
	hits   uint64
	misses uint64
}

// NewPool creates a pool over the given allocator.
func NewPool(inner Allocator) *Pool {
	return &Pool{
		inner: inner,
		live:  make(map[DevicePtr]uint64),
	}
}

// Malloc returns a pooled region that fits, or allocates a new one.
func (p *Pool) Malloc(size uint64) (DevicePtr, error) {
	p.mu.Lock()

	class := p.classify(size)
	list := p.getList(class)

	// Try to find a suitable region in the free list
	for i, r := range list {
		if r.size >= size {
			p.removeAt(class, i)
			p.live[r.ptr] = r.size
			p.hits++
			p.mu.Unlock()
			return r.ptr, nil
		}
	}

	// No suitable region pooled - allocate a new one
	p.misses++
	p.mu.Unlock()

	ptr, err := p.inner.Malloc(size)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.live[ptr] = size
	p.mu.Unlock()

	return ptr, nil
}

// Free returns a region to the pool for reuse.
// If the category is full, the region is released immediately.
func (p *Pool) Free(ptr DevicePtr) error {
	p.mu.Lock()

	size, ok := p.live[ptr]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("pool: free of unpooled address: %w", ErrInvalidHandle)
	}
	delete(p.live, ptr)

	class := p.classify(size)
	if len(p.getList(class)) >= maxPooled {
		p.mu.Unlock()
		return p.inner.Free(ptr)
	}

	p.addTo(class, pooledRegion{ptr: ptr, size: size})
	p.mu.Unlock()
	return nil
}

// MemcpyHtoD forwards to the inner allocator.
func (p *Pool) MemcpyHtoD(dst DevicePtr, src []byte) error {
	return p.inner.MemcpyHtoD(dst, src)
}

// MemcpyDtoH forwards to the inner allocator.
func (p *Pool) MemcpyDtoH(dst []byte, src DevicePtr) error {
	return p.inner.MemcpyDtoH(dst, src)
}

// MemcpyDtoD forwards to the inner allocator.
func (p *Pool) MemcpyDtoD(dst, src DevicePtr, size uint64) error {
	return p.inner.MemcpyDtoD(dst, src, size)
}

// Clear releases all pooled regions back to the inner allocator.
// Should be called when the pool is no longer needed. Regions still handed
// out remain valid; freeing them afterwards releases them directly.
func (p *Pool) Clear() error {
	p.mu.Lock()
	pooled := make([]pooledRegion, 0, len(p.small)+len(p.medium)+len(p.large))
	pooled = append(pooled, p.small...)
	pooled = append(pooled, p.medium...)
	pooled = append(pooled, p.large...)
	p.small = p.small[:0]
	p.medium = p.medium[:0]
	p.large = p.large[:0]
	p.mu.Unlock()

	for _, r := range pooled {
		if err := p.inner.Free(r.ptr); err != nil {
			return err
		}
	}
	return nil
}

// PoolStats returns statistics about pool usage.
func (p *Pool) PoolStats() (hits, misses uint64, pooled int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.hits, p.misses, len(p.small) + len(p.medium) + len(p.large)
}

// classify determines the size category for a region.
func (p *Pool) classify(size uint64) sizeClass {
	if size < smallThreshold {
		return smallClass
	}
	if size < mediumThreshold {
		return mediumClass
	}
	return largeClass
}

// getList returns the free list for a given category.
func (p *Pool) getList(class sizeClass) []pooledRegion {
	switch class {
	case smallClass:
		return p.small
	case mediumClass:
		return p.medium
	case largeClass:
		return p.large
	default:
		return nil
	}
}

// addTo adds a region to the appropriate free list.
func (p *Pool) addTo(class sizeClass, r pooledRegion) {
	switch class {
	case smallClass:
		p.small = append(p.small, r)
	case mediumClass:
		p.medium = append(p.medium, r)
	case largeClass:
		p.large = append(p.large, r)
	}
}

// removeAt removes the region at index i from the appropriate free list.
func (p *Pool) removeAt(class sizeClass, i int) {
	switch class {
	case smallClass:
		p.small = append(p.small[:i], p.small[i+1:]...)
	case mediumClass:
		p.medium = append(p.medium[:i], p.medium[i+1:]...)
	case largeClass:
		p.large = append(p.large[:i], p.large[i+1:]...)
	}
}

// Compile-time check that Pool implements Allocator.
var _ Allocator = (*Pool)(nil)
