package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bamsammich/treedelta/internal/event"
	"github.com/bamsammich/treedelta/internal/platform"
	"github.com/bamsammich/treedelta/internal/stats"
)

// Config describes one comparison of a modified tree against a baseline.
type Config struct {
	Events   chan<- event.Event
	Stats    *stats.Collector
	Opener   platform.BatchOpener // optional; Run does not close a caller's opener
	Baseline string
	Modified string
	Output   string

	BatchSize  int   // file pairs per flush; DefaultBatchSize if zero
	BufferSize int   // hash read buffer; DefaultBufferSize if zero
	BWLimit    int64 // copy bytes/sec; zero for unlimited

	UseIOURing bool
	KeepGoing  bool
	DryRun     bool
	Verify     bool
}

// Result is the outcome of a comparison.
type Result struct {
	Err    error
	Report *Report
	Verify *VerifyResult
	Stats  stats.Snapshot
	Method platform.OpenMethod
}

// Run walks cfg.Modified and stages every new or changed regular file into
// cfg.Output, blocking until complete.
func Run(ctx context.Context, cfg Config) Result {
	collector := cfg.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}
	report := &Report{}

	roots, err := resolveRoots(cfg)
	if err != nil {
		return Result{Err: err, Report: report, Stats: collector.Snapshot()}
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	opener := cfg.Opener
	if opener == nil {
		opener, err = platform.NewBatchOpener(uint(2*batchSize), cfg.UseIOURing) //nolint:gosec // G115: batchSize is positive
		if err != nil {
			return Result{Err: fmt.Errorf("batch opener: %w", err), Report: report, Stats: collector.Snapshot()}
		}
		defer opener.Close()
	}

	r, err := newRun(cfg, roots, opener, batchSize, collector, report)
	if err != nil {
		return Result{Err: err, Report: report, Stats: collector.Snapshot(), Method: opener.Method()}
	}

	slog.Debug("comparing trees",
		"baseline", roots.baseline,
		"modified", roots.modified,
		"output", roots.output,
		"method", opener.Method(),
		"pairs_per_batch", r.batch.capacity,
		"dry_run", cfg.DryRun,
	)

	emitEvent(cfg.Events, event.Event{Type: event.ScanStarted, Path: roots.modified})
	runErr := r.walk(ctx)
	snap := collector.Snapshot()
	emitEvent(cfg.Events, event.Event{
		Type:  event.ScanComplete,
		Count: int(snap.FilesScanned),
		Size:  snap.BytesCopied,
		Error: runErr,
	})

	if runErr == nil {
		if failed := report.Counts().Failed; failed > 0 {
			runErr = fmt.Errorf("%w: %d of %d", ErrFilesFailed, failed, snap.FilesScanned)
		}
	}

	result := Result{Report: report, Method: opener.Method()}
	staged := report.Staged()
	if cfg.Verify && !cfg.DryRun && len(staged) > 0 && (runErr == nil || errors.Is(runErr, ErrFilesFailed)) {
		vr := Verify(ctx, VerifyConfig{
			Modified: roots.modified,
			Output:   roots.output,
			Files:    staged,
			Events:   cfg.Events,
			Stats:    collector,
		})
		result.Verify = &vr
		if vr.Failed > 0 {
			runErr = errors.Join(runErr, fmt.Errorf("%w: %d files", ErrVerifyFailed, vr.Failed))
		}
	}

	result.Err = runErr
	result.Stats = collector.Snapshot()
	return result
}

type treeRoots struct {
	baseline string
	modified string
	output   string
}

// resolveRoots makes the three roots absolute, checks that both inputs are
// directories and prepares the output root.
func resolveRoots(cfg Config) (treeRoots, error) {
	var roots treeRoots
	var err error

	if roots.baseline, err = inputDir("baseline", cfg.Baseline); err != nil {
		return roots, err
	}
	if roots.modified, err = inputDir("modified", cfg.Modified); err != nil {
		return roots, err
	}
	if roots.output, err = filepath.Abs(cfg.Output); err != nil {
		return roots, fmt.Errorf("output: %w", err)
	}
	modifiedAbs, _ := filepath.Abs(cfg.Modified) //nolint:errcheck // already resolved above
	if within(roots.output, roots.modified) || within(roots.output, modifiedAbs) {
		return roots, fmt.Errorf("output %s is inside the modified tree %s", cfg.Output, cfg.Modified)
	}

	info, err := os.Stat(roots.output)
	switch {
	case err == nil && !info.IsDir():
		return roots, fmt.Errorf("output %s is not a directory", cfg.Output)
	case err == nil, cfg.DryRun && errors.Is(err, os.ErrNotExist):
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(roots.output, 0755); err != nil {
			return roots, fmt.Errorf("create output: %w", err)
		}
	default:
		return roots, fmt.Errorf("output: %w", err)
	}
	return roots, nil
}

func inputDir(name, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s: empty path", name)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	// The walk does not descend through a symlinked root.
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s %s is not a directory", name, path)
	}
	return abs, nil
}

// within reports whether path is root or below it.
func within(path, root string) bool {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// emitEvent blocks for per-file events and drops progress events when the
// consumer is behind.
func emitEvent(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	if e.Type.PerFile() {
		ch <- e
		return
	}
	select {
	case ch <- e:
	default:
	}
}
