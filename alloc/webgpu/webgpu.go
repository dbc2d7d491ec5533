// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU-backed device allocator.
//
// WebGPU is a cross-platform graphics and compute API that works on:
//   - Windows (via Dawn/D3D12)
//   - macOS (via Dawn/Metal)
//   - Linux (via Dawn/Vulkan)
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
//	}
package webgpu

import (
	"github.com/born-ml/devmem/alloc"
	internalwebgpu "github.com/born-ml/devmem/internal/alloc/webgpu"
)

// Allocator is the WebGPU-backed implementation of alloc.Allocator.
type Allocator = internalwebgpu.Allocator

// Compile-time check that Allocator implements alloc.Allocator.
var _ alloc.Allocator = (*Allocator)(nil)

// New creates a new WebGPU-backed allocator.
//
// This function initializes the WebGPU device and returns an allocator
// ready for use. Call Release() when done to free GPU resources.
//
// Returns an error if WebGPU initialization fails (e.g., no compatible GPU).
func New() (*Allocator, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
//
// It attempts to initialize a WebGPU adapter to verify that a compatible
// GPU and drivers are present. It's useful for graceful fallback to the
// host-memory allocator when a GPU is not available.
//
// Example:
//
//	var a alloc.Allocator
//	if webgpu.IsAvailable() {
//	    a, _ = webgpu.New()
//	} else {
//	    a = hostmem.New()
//	}
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
