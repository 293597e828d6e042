package engine

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/bamsammich/treedelta/internal/platform"
)

// BenchmarkResult holds open throughput for each opener.
type BenchmarkResult struct {
	Files           int
	SyncOpensPerSec float64
	RingOpensPerSec float64 // zero when io_uring is unavailable
	RingAvailable   bool
	Entries         int // open requests per submission, two per pair
}

const benchMaxFiles = 4096

// RunBenchmark opens up to 4096 regular files under dir relative to their
// parent directories, once with openat(2) and once through io_uring in
// batches of batchSize pairs, and reports opens per second for each.
func RunBenchmark(ctx context.Context, dir string, batchSize int) (BenchmarkResult, error) {
	var result BenchmarkResult
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	reqs, dirFds, err := collectBenchRequests(ctx, dir)
	defer func() {
		for _, fd := range dirFds {
			_ = closeFd(fd)
		}
	}()
	if err != nil {
		return result, err
	}
	if len(reqs) == 0 {
		return result, fmt.Errorf("no regular files in %s", dir)
	}
	result.Files = len(reqs)
	result.Entries = 2 * batchSize

	syncOpener := platform.NewSyncOpener(result.Entries)
	result.SyncOpensPerSec, err = benchOpener(ctx, syncOpener, reqs)
	if err != nil {
		return result, fmt.Errorf("openat benchmark: %w", err)
	}

	ring, err := platform.NewIOURingOpener(uint(result.Entries)) //nolint:gosec // G115: batchSize is positive
	if err != nil || ring == nil {
		return result, nil //nolint:nilerr // ring is optional; the result says so
	}
	defer ring.Close()

	result.RingAvailable = true
	result.RingOpensPerSec, err = benchOpener(ctx, ring, reqs)
	if err != nil {
		return result, fmt.Errorf("io_uring benchmark: %w", err)
	}
	return result, nil
}

// collectBenchRequests walks dir for regular files and opens each distinct
// parent directory once.
func collectBenchRequests(ctx context.Context, dir string) ([]platform.OpenRequest, []int, error) {
	var (
		reqs   []platform.OpenRequest
		dirFds []int
		parent = make(map[string]int)
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}

		pdir := filepath.Dir(path)
		fd, ok := parent[pdir]
		if !ok {
			var err error
			fd, err = openDir(pdir)
			if err != nil {
				return fmt.Errorf("open %s: %w", pdir, err)
			}
			parent[pdir] = fd
			dirFds = append(dirFds, fd)
		}
		reqs = append(reqs, platform.OpenRequest{DirFd: fd, Name: d.Name()})
		if len(reqs) == benchMaxFiles {
			return filepath.SkipAll
		}
		return nil
	})
	return reqs, dirFds, err
}

// benchOpener opens every request in batches of the opener's capacity,
// closing each descriptor right after its batch.
func benchOpener(ctx context.Context, o platform.BatchOpener, reqs []platform.OpenRequest) (float64, error) {
	res := make([]platform.OpenResult, o.Capacity())

	start := time.Now()
	for off := 0; off < len(reqs); off += o.Capacity() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		batch := reqs[off:min(off+o.Capacity(), len(reqs))]
		out := res[:len(batch)]
		if err := o.OpenBatch(batch, out); err != nil {
			return 0, err
		}
		var firstErr error
		for i := range out {
			if out[i].Err != nil && firstErr == nil {
				firstErr = fmt.Errorf("open %s: %w", batch[i].Name, out[i].Err)
			}
			_ = closeFd(out[i].Fd)
		}
		if firstErr != nil {
			return 0, firstErr
		}
	}
	elapsed := time.Since(start)
	if elapsed == 0 {
		elapsed = time.Microsecond
	}
	return float64(len(reqs)) / elapsed.Seconds(), nil
}

// FormatBenchmark formats a BenchmarkResult for display.
func FormatBenchmark(r BenchmarkResult) string {
	s := fmt.Sprintf("benchmark: %d files  %d opens/batch  openat %s opens/s",
		r.Files, r.Entries, formatRate(r.SyncOpensPerSec))
	if !r.RingAvailable {
		return s + "  io_uring unavailable"
	}
	s += fmt.Sprintf("  io_uring %s opens/s", formatRate(r.RingOpensPerSec))
	if r.SyncOpensPerSec > 0 {
		s += fmt.Sprintf(" (%.2fx)", r.RingOpensPerSec/r.SyncOpensPerSec)
	}
	return s
}

func formatRate(n float64) string {
	switch {
	case n >= 1e6:
		return fmt.Sprintf("%.1fM", n/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.1fk", n/1e3)
	default:
		return fmt.Sprintf("%.0f", n)
	}
}
