package alloc

import "sync"

// Stats is a snapshot of device memory usage through a StatsAllocator.
type Stats struct {
	// Bytes currently allocated and not yet freed.
	CurrentBytes uint64
	// Peak value of CurrentBytes since the wrapper was created.
	PeakBytes uint64
	// Number of live allocations.
	ActiveAllocs int64
	// Total successful Malloc and Free calls.
	MallocCalls uint64
	FreeCalls   uint64
}

// StatsAllocator wraps an Allocator and tracks memory usage.
// Failed operations do not count; the statistics describe the regions the
// inner allocator actually holds.
type StatsAllocator struct {
	inner Allocator

	mu      sync.Mutex
	sizes   map[DevicePtr]uint64
	current uint64
	peak    uint64
	active  int64
	mallocs uint64
	frees   uint64
}

// NewStatsAllocator wraps inner with usage tracking.
func NewStatsAllocator(inner Allocator) *StatsAllocator {
	return &StatsAllocator{
		inner: inner,
		sizes: make(map[DevicePtr]uint64),
	}
}

// Malloc allocates through the inner allocator and records the region size.
func (s *StatsAllocator) Malloc(size uint64) (DevicePtr, error) {
	ptr, err := s.inner.Malloc(size)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sizes[ptr] = size
	s.current += size
	if s.current > s.peak {
		s.peak = s.current
	}
	s.active++
	s.mallocs++

	return ptr, nil
}

// Free releases through the inner allocator and records the release.
func (s *StatsAllocator) Free(ptr DevicePtr) error {
	if err := s.inner.Free(ptr); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if size, ok := s.sizes[ptr]; ok {
		delete(s.sizes, ptr)
		s.current -= size
		s.active--
	}
	s.frees++

	return nil
}

// MemcpyHtoD forwards to the inner allocator.
func (s *StatsAllocator) MemcpyHtoD(dst DevicePtr, src []byte) error {
	return s.inner.MemcpyHtoD(dst, src)
}

// MemcpyDtoH forwards to the inner allocator.
func (s *StatsAllocator) MemcpyDtoH(dst []byte, src DevicePtr) error {
	return s.inner.MemcpyDtoH(dst, src)
}

// MemcpyDtoD forwards to the inner allocator.
func (s *StatsAllocator) MemcpyDtoD(dst, src DevicePtr, size uint64) error {
	return s.inner.MemcpyDtoD(dst, src, size)
}

// Stats returns a snapshot of current usage.
func (s *StatsAllocator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		CurrentBytes: s.current,
		PeakBytes:    s.peak,
		ActiveAllocs: s.active,
		MallocCalls:  s.mallocs,
		FreeCalls:    s.frees,
	}
}

// Compile-time check that StatsAllocator implements Allocator.
var _ Allocator = (*StatsAllocator)(nil)
