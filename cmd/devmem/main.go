// Package main provides the devmem command-line tool.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/born-ml/devmem/alloc"
	"github.com/born-ml/devmem/alloc/hostmem"
	"github.com/born-ml/devmem/alloc/webgpu"
	"github.com/born-ml/devmem/buffer"
)

var log = logrus.New()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "devmem",
		Short: "Device memory allocator tools",
	}
	rootCmd.AddCommand(
		newInfoCmd(),
		newBenchCmd(),
	)
	return rootCmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show device allocator availability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !webgpu.IsAvailable() {
				cmd.Println("WebGPU: not available (host-memory allocator only)")
				return nil
			}

			gpu, err := webgpu.New()
			if err != nil {
				return fmt.Errorf("failed to initialize WebGPU: %w", err)
			}
			defer gpu.Release()

			cmd.Printf("WebGPU: available\n")
			cmd.Printf("Device: %s\n", gpu.Name())
			return nil
		},
	}
}

func newBenchCmd() *cobra.Command {
	var (
		sizeSpec  string
		count     int
		allocName string
	)

	c := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark host/device round-trip transfers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			size, err := units.RAMInBytes(sizeSpec)
			if err != nil {
				return fmt.Errorf("invalid size %q: %w", sizeSpec, err)
			}
			if size < 4 {
				return fmt.Errorf("size must be at least 4 bytes, got %d", size)
			}

			inner, cleanup, err := pickAllocator(allocName)
			if err != nil {
				return err
			}
			defer cleanup()

			stats := alloc.NewStatsAllocator(inner)
			return runBench(cmd, stats, size, count)
		},
	}

	c.Flags().StringVar(&sizeSpec, "size", "64MiB", "transfer size (e.g. 4KiB, 64MiB)")
	c.Flags().IntVar(&count, "count", 10, "number of round trips")
	c.Flags().StringVar(&allocName, "allocator", "auto", "allocator to use (auto, webgpu, host)")
	return c
}

// pickAllocator resolves the --allocator flag, falling back to host memory
// when no GPU is present.
func pickAllocator(name string) (a alloc.Allocator, cleanup func(), err error) {
	switch name {
	case "webgpu":
		gpu, gpuErr := webgpu.New()
		if gpuErr != nil {
			return nil, nil, fmt.Errorf("failed to initialize WebGPU: %w", gpuErr)
		}
		return gpu, gpu.Release, nil
	case "host":
		return hostmem.New(), func() {}, nil
	case "auto":
		if webgpu.IsAvailable() {
			gpu, gpuErr := webgpu.New()
			if gpuErr == nil {
				log.WithField("device", gpu.Name()).Info("using WebGPU allocator")
				return gpu, gpu.Release, nil
			}
			log.WithError(gpuErr).Warn("WebGPU probe succeeded but init failed, falling back to host memory")
		} else {
			log.Warn("WebGPU not available, falling back to host memory")
		}
		return hostmem.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown allocator %q (want auto, webgpu, or host)", name)
	}
}

func runBench(cmd *cobra.Command, a *alloc.StatsAllocator, size int64, count int) error {
	host := make([]float32, size/4)
	for i := range host {
		host[i] = float32(i)
	}

	start := time.Now()
	for i := 0; i < count; i++ {
		b, err := buffer.FromHost(a, host)
		if err != nil {
			return fmt.Errorf("round trip %d: %w", i, err)
		}
		if _, err := b.ToHost(); err != nil {
			_ = b.Release()
			return fmt.Errorf("round trip %d: %w", i, err)
		}
		if err := b.Release(); err != nil {
			return fmt.Errorf("round trip %d: %w", i, err)
		}
	}
	elapsed := time.Since(start)

	// Each round trip moves size bytes up and size bytes down.
	moved := 2 * size * int64(count)
	throughput := float64(moved) / elapsed.Seconds()

	snap := a.Stats()
	cmd.Printf("Round trips:  %d x %s\n", count, units.BytesSize(float64(size)))
	cmd.Printf("Elapsed:      %s\n", elapsed.Round(time.Millisecond))
	cmd.Printf("Throughput:   %s/s\n", units.BytesSize(throughput))
	cmd.Printf("Peak memory:  %s\n", units.BytesSize(float64(snap.PeakBytes)))
	cmd.Printf("Allocations:  %d malloc / %d free\n", snap.MallocCalls, snap.FreeCalls)
	return nil
}
