package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bamsammich/treedelta/internal/event"
	"github.com/bamsammich/treedelta/internal/platform"
	"github.com/bamsammich/treedelta/internal/stats"
)

// run is the state of one traversal. It is driven by a single goroutine;
// the hasher buffer, slot arena and dir cache are never shared.
type run struct {
	cfg    Config
	roots  treeRoots
	stats  *stats.Collector
	report *Report
	dirs   *dirCache
	batch  *openBatcher
	hasher *Hasher
	copier *copier
}

func newRun(
	cfg Config,
	roots treeRoots,
	opener platform.BatchOpener,
	batchSize int,
	collector *stats.Collector,
	report *Report,
) (*run, error) {
	r := &run{
		cfg:    cfg,
		roots:  roots,
		stats:  collector,
		report: report,
		dirs:   newDirCache(roots.modified, roots.baseline),
		hasher: NewHasher(cfg.BufferSize),
		copier: newCopier(roots.output, cfg.DryRun),
	}
	r.dirs.onOpen = func(string) { collector.AddDirsOpened(1) }
	if cfg.BWLimit > 0 {
		r.copier.limiter = NewBWLimiter(cfg.BWLimit)
	}

	batch, err := newOpenBatcher(opener, r.dirs, batchSize)
	if err != nil {
		return nil, err
	}
	batch.onPair = r.comparePair
	batch.onFail = r.fail
	batch.onFlush = func(pairs int, elapsed time.Duration) {
		collector.AddBatches(1)
		emitEvent(cfg.Events, event.Event{Type: event.BatchFlushed, Count: pairs, Elapsed: elapsed})
	}
	r.batch = batch
	return r, nil
}

// walk visits the modified tree depth-first in lexical order and always
// finishes with a flush of the partial batch. Queued pairs and parent
// directories are released on every return path.
func (r *run) walk(ctx context.Context) (err error) {
	r.copier.ctx = ctx
	defer func() {
		r.batch.discard()
		if cerr := r.dirs.Close(); cerr != nil {
			slog.Debug("close parent directories", "error", cerr)
		}
	}()

	if err := filepath.WalkDir(r.roots.modified, func(path string, d fs.DirEntry, walkErr error) error {
		return r.visit(ctx, path, d, walkErr)
	}); err != nil {
		return err
	}
	return r.batch.flush(ctx)
}

func (r *run) visit(ctx context.Context, path string, d fs.DirEntry, walkErr error) error {
	if walkErr != nil {
		return &FileError{Stage: StageTraverse, Path: r.rel(path), Err: walkErr}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.Type().IsRegular() {
		return nil
	}

	rel := r.rel(path)
	r.stats.AddFilesScanned(1)

	present, err := r.inBaseline(rel)
	if err != nil {
		return err
	}
	if !present {
		return r.stageNew(path, rel)
	}

	if r.batch.full() {
		if err := r.batch.flush(ctx); err != nil {
			return err
		}
	}
	dir, err := r.dirs.acquire(filepath.Dir(path))
	if err != nil {
		return r.fail(rel, err)
	}
	r.batch.register(dir, d.Name(), path, rel)
	return nil
}

func (r *run) rel(path string) string {
	rel, err := filepath.Rel(r.roots.modified, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// inBaseline reports whether a regular file exists at rel in the baseline.
// Symlinks are followed; anything else at that path counts as absent.
func (r *run) inBaseline(rel string) (bool, error) {
	info, err := os.Stat(filepath.Join(r.roots.baseline, filepath.FromSlash(rel)))
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return false, nil
	default:
		return false, &FileError{Stage: StageTraverse, Path: rel, Err: err}
	}
}

func (r *run) stageNew(path, rel string) error {
	n, err := r.copier.copy(path, rel)
	if err != nil {
		return r.fail(rel, err)
	}
	r.stats.AddFilesNew(1)
	if !r.cfg.DryRun {
		r.stats.AddBytesCopied(n)
	}
	r.report.add(FileResult{Path: rel, Status: StatusNew, Size: n})
	emitEvent(r.cfg.Events, event.Event{Type: event.FileNew, Path: rel, Size: n})
	return nil
}

// comparePair hashes both sides of an opened pair and stages the modified
// file when the fingerprints differ.
func (r *run) comparePair(s *slot, modified, baseline *os.File) error {
	modSum, modLen, err := r.hasher.Hash(modified)
	r.stats.AddBytesHashed(modLen)
	if err != nil {
		return &FileError{Stage: StageHash, Path: s.rel, Err: err}
	}
	baseSum, baseLen, err := r.hasher.Hash(baseline)
	r.stats.AddBytesHashed(baseLen)
	if err != nil {
		return &FileError{Stage: StageHash, Path: s.rel, Err: fmt.Errorf("baseline: %w", err)}
	}

	fr := FileResult{Path: s.rel, Size: modLen, Baseline: baseSum, Modified: modSum}
	if modSum == baseSum {
		fr.Status = StatusUnchanged
		r.stats.AddFilesUnchanged(1)
		r.report.add(fr)
		emitEvent(r.cfg.Events, event.Event{Type: event.FileUnchanged, Path: s.rel, Size: modLen})
		return nil
	}

	n, err := r.copier.copy(s.path, s.rel)
	if err != nil {
		return err
	}
	fr.Status = StatusChanged
	fr.Size = n
	r.stats.AddFilesChanged(1)
	if !r.cfg.DryRun {
		r.stats.AddBytesCopied(n)
	}
	r.report.add(fr)
	emitEvent(r.cfg.Events, event.Event{Type: event.FileChanged, Path: s.rel, Size: n})
	return nil
}

// fail records a per-file failure. Without KeepGoing the failure is returned
// and ends the run.
func (r *run) fail(rel string, err error) error {
	r.stats.AddFilesFailed(1)
	r.report.add(FileResult{Path: rel, Status: StatusFailed, Err: err})
	emitEvent(r.cfg.Events, event.Event{Type: event.FileFailed, Path: rel, Error: err})
	if !r.cfg.KeepGoing {
		return err
	}
	slog.Debug("file failed, continuing", "path", rel, "error", err)
	return nil
}
