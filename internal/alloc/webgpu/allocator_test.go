package webgpu

import (
	"errors"
	"testing"

	"github.com/born-ml/devmem/alloc"
)

// TestMallocFree tests allocating and releasing a device buffer.
func TestMallocFree(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}

	a, err := New()
	if err != nil {
		t.Fatalf("Failed to create allocator: %v", err)
	}
	defer a.Release()

	ptr, err := a.Malloc(256)
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	if ptr.IsNil() {
		t.Fatal("Malloc returned nil address")
	}

	if err := a.Free(ptr); err != nil {
		t.Fatalf("Free failed: %v", err)
	}

	if err := a.Free(ptr); !errors.Is(err, alloc.ErrInvalidHandle) {
		t.Errorf("second Free error = %v, want ErrInvalidHandle", err)
	}
}

// TestRoundTrip tests uploading bytes and reading them back.
func TestRoundTrip(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}

	a, err := New()
	if err != nil {
		t.Fatalf("Failed to create allocator: %v", err)
	}
	defer a.Release()

	want := make([]byte, 1024)
	for i := range want {
		want[i] = byte(i % 251)
	}

	ptr, err := a.Malloc(uint64(len(want)))
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	defer func() {
		if err := a.Free(ptr); err != nil {
			t.Errorf("Free failed: %v", err)
		}
	}()

	if err := a.MemcpyHtoD(ptr, want); err != nil {
		t.Fatalf("MemcpyHtoD failed: %v", err)
	}

	got := make([]byte, len(want))
	if err := a.MemcpyDtoH(got, ptr); err != nil {
		t.Fatalf("MemcpyDtoH failed: %v", err)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

// TestRoundTripUnaligned tests a byte count that is not a multiple of the
// 4-byte copy alignment.
func TestRoundTripUnaligned(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}

	a, err := New()
	if err != nil {
		t.Fatalf("Failed to create allocator: %v", err)
	}
	defer a.Release()

	want := []byte{1, 2, 3, 4, 5, 6, 7}

	ptr, err := a.Malloc(uint64(len(want)))
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	defer func() {
		if err := a.Free(ptr); err != nil {
			t.Errorf("Free failed: %v", err)
		}
	}()

	if err := a.MemcpyHtoD(ptr, want); err != nil {
		t.Fatalf("MemcpyHtoD failed: %v", err)
	}

	got := make([]byte, len(want))
	if err := a.MemcpyDtoH(got, ptr); err != nil {
		t.Fatalf("MemcpyDtoH failed: %v", err)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

// TestDeviceToDevice tests copying between two device buffers.
func TestDeviceToDevice(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}

	a, err := New()
	if err != nil {
		t.Fatalf("Failed to create allocator: %v", err)
	}
	defer a.Release()

	want := []byte{10, 20, 30, 40}

	src, err := a.Malloc(4)
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	dst, err := a.Malloc(4)
	if err != nil {
		t.Fatalf("Malloc failed: %v", err)
	}
	defer func() {
		_ = a.Free(src)
		_ = a.Free(dst)
	}()

	if err := a.MemcpyHtoD(src, want); err != nil {
		t.Fatalf("MemcpyHtoD failed: %v", err)
	}
	if err := a.MemcpyDtoD(dst, src, 4); err != nil {
		t.Fatalf("MemcpyDtoD failed: %v", err)
	}

	got := make([]byte, 4)
	if err := a.MemcpyDtoH(got, dst); err != nil {
		t.Fatalf("MemcpyDtoH failed: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		in   uint64
		want uint64
	}{
		{0, 4},
		{1, 4},
		{3, 4},
		{4, 4},
		{5, 8},
		{7, 8},
		{8, 8},
		{1023, 1024},
	}

	for _, tt := range tests {
		if got := alignUp(tt.in); got != tt.want {
			t.Errorf("alignUp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestZeroByteMalloc(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}

	a, err := New()
	if err != nil {
		t.Fatalf("Failed to create allocator: %v", err)
	}
	defer a.Release()

	if _, err := a.Malloc(0); !errors.Is(err, alloc.ErrAllocationFailed) {
		t.Errorf("Malloc(0) error = %v, want ErrAllocationFailed", err)
	}
}
