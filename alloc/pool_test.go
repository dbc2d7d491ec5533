package alloc

import (
	"errors"
	"testing"
)

func TestPoolReusesFreedRegion(t *testing.T) {
	p := NewPool(newFakeAllocator())

	p1, err := p.Malloc(256)
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	if err := p.Free(p1); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	// The freed region fits the next request and must be reused.
	p2, err := p.Malloc(128)
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	if p2 != p1 {
		t.Error("expected pooled region to be reused")
	}

	hits, misses, pooled := p.PoolStats()
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
	if pooled != 0 {
		t.Errorf("pooled = %d, want 0", pooled)
	}
}

func TestPoolTooSmallRegionNotReused(t *testing.T) {
	p := NewPool(newFakeAllocator())

	p1, _ := p.Malloc(64)
	if err := p.Free(p1); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	p2, err := p.Malloc(1024)
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	if p2 == p1 {
		t.Error("64-byte region must not satisfy a 1024-byte request")
	}

	_, misses, _ := p.PoolStats()
	if misses != 2 {
		t.Errorf("misses = %d, want 2", misses)
	}
}

func TestPoolClassSeparation(t *testing.T) {
	p := NewPool(newFakeAllocator())

	small, _ := p.Malloc(64)              // small class
	large, _ := p.Malloc(4 * 1024 * 1024) // large class
	if err := p.Free(small); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := p.Free(large); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	if _, _, pooled := p.PoolStats(); pooled != 2 {
		t.Errorf("pooled = %d, want 2", pooled)
	}

	// A medium request must not drain either list.
	if _, err := p.Malloc(64 * 1024); err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	if _, _, pooled := p.PoolStats(); pooled != 2 {
		t.Errorf("pooled after medium malloc = %d, want 2", pooled)
	}
}

func TestPoolFreeUnknownAddress(t *testing.T) {
	p := NewPool(newFakeAllocator())

	var bogus int
	if err := p.Free(DevicePtr(&bogus)); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Free error = %v, want ErrInvalidHandle", err)
	}
}

func TestPoolClear(t *testing.T) {
	inner := newFakeAllocator()
	p := NewPool(inner)

	p1, _ := p.Malloc(100)
	p2, _ := p.Malloc(200)
	if err := p.Free(p1); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := p.Free(p2); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	if err := p.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, _, pooled := p.PoolStats(); pooled != 0 {
		t.Errorf("pooled after Clear = %d, want 0", pooled)
	}
	if len(inner.regions) != 0 {
		t.Errorf("inner allocator still holds %d regions", len(inner.regions))
	}
}

func TestPoolCopiesForward(t *testing.T) {
	p := NewPool(newFakeAllocator())

	src, _ := p.Malloc(8)
	dst, _ := p.Malloc(8)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := p.MemcpyHtoD(src, data); err != nil {
		t.Fatalf("MemcpyHtoD failed: %v", err)
	}
	if err := p.MemcpyDtoD(dst, src, 8); err != nil {
		t.Fatalf("MemcpyDtoD failed: %v", err)
	}

	got := make([]byte, 8)
	if err := p.MemcpyDtoH(got, dst); err != nil {
		t.Fatalf("MemcpyDtoH failed: %v", err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], data[i])
		}
	}
}
