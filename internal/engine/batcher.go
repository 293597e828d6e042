package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bamsammich/treedelta/internal/platform"
)

// DefaultBatchSize is the number of file pairs per flush. Two opens per pair
// fill a 1024-entry ring.
const DefaultBatchSize = 512

// slot is one pending candidate: a file present in both trees whose pair of
// opens is queued for the next flush.
type slot struct {
	dir  *dirPair
	name string // base name, opened relative to the dir pair
	path string // absolute path in the modified tree
	rel  string // slash-separated relative path
}

// pairFunc consumes one opened pair. Both files are closed by the batcher
// after it returns; a returned error is passed to the failFunc.
type pairFunc func(s *slot, modified, baseline *os.File) error

// failFunc decides what a per-file failure means. A nil return keeps the
// batch going; a non-nil return aborts the run.
type failFunc func(rel string, err error) error

// openBatcher queues file pairs and opens them through a BatchOpener. The
// slot arena and request/result arrays are sized once and reused for every
// flush.
type openBatcher struct {
	opener   platform.BatchOpener
	dirs     *dirCache
	onPair   pairFunc
	onFail   failFunc
	onFlush  func(pairs int, elapsed time.Duration)
	slots    []slot
	reqs     []platform.OpenRequest
	res      []platform.OpenResult
	capacity int
	n        int
}

func newOpenBatcher(opener platform.BatchOpener, dirs *dirCache, pairs int) (*openBatcher, error) {
	capacity := min(pairs, opener.Capacity()/2)
	if capacity < 1 {
		return nil, fmt.Errorf("%s opener capacity %d cannot hold a file pair", opener.Method(), opener.Capacity())
	}
	return &openBatcher{
		opener:   opener,
		dirs:     dirs,
		capacity: capacity,
		reqs:     make([]platform.OpenRequest, 2*capacity),
		res:      make([]platform.OpenResult, 2*capacity),
	}, nil
}

func (b *openBatcher) full() bool { return b.n == b.capacity }

func (b *openBatcher) pending() int { return b.n }

// register queues the pair of opens for one candidate: the modified file
// first, then the baseline file, both relative to dir.
func (b *openBatcher) register(dir *dirPair, name, path, rel string) {
	i := b.n
	if i == len(b.slots) {
		b.slots = append(b.slots, slot{})
	}
	b.slots[i] = slot{dir: dir, name: name, path: path, rel: rel}
	b.reqs[2*i] = platform.OpenRequest{DirFd: dir.modified, Name: name}
	b.reqs[2*i+1] = platform.OpenRequest{DirFd: dir.baseline, Name: name}
	dir.refs++
	b.n++
}

// flush opens every queued pair, waits for all of them, then hands each pair
// to onPair in submission order. Every descriptor the batch produced is
// closed before flush returns, whether or not an error stopped processing.
func (b *openBatcher) flush(ctx context.Context) error {
	n := b.n
	if n == 0 {
		return nil
	}
	defer b.reset()

	res := b.res[:2*n]
	for i := range res {
		res[i] = platform.OpenResult{Fd: -1}
	}

	start := time.Now()
	if err := b.opener.OpenBatch(b.reqs[:2*n], res); err != nil {
		closeResults(res)
		return fmt.Errorf("%s batch of %d pairs: %w", b.opener.Method(), n, err)
	}

	var fatal error
	for i := range n {
		mod, base := res[2*i], res[2*i+1]
		if fatal == nil {
			if err := ctx.Err(); err != nil {
				fatal = err
			}
		}
		if fatal != nil {
			_ = closeFd(mod.Fd)
			_ = closeFd(base.Fd)
			continue
		}
		fatal = b.consume(&b.slots[i], mod, base)
	}

	elapsed := time.Since(start)
	slog.Debug("batch flushed", "pairs", n, "method", b.opener.Method(), "elapsed", elapsed)
	if b.onFlush != nil {
		b.onFlush(n, elapsed)
	}
	return fatal
}

func (b *openBatcher) consume(s *slot, mod, base platform.OpenResult) error {
	if mod.Err != nil || base.Err != nil {
		_ = closeFd(mod.Fd)
		_ = closeFd(base.Fd)
		err := mod.Err
		if err == nil {
			err = fmt.Errorf("baseline: %w", base.Err)
		}
		return b.onFail(s.rel, &FileError{Stage: StageOpen, Path: s.rel, Err: err})
	}

	modified := os.NewFile(uintptr(mod.Fd), s.path)             //nolint:gosec // G115: fd is non-negative
	baseline := os.NewFile(uintptr(base.Fd), "baseline/"+s.rel) //nolint:gosec // G115: fd is non-negative
	err := b.onPair(s, modified, baseline)
	closeFile(modified)
	closeFile(baseline)
	if err != nil {
		return b.onFail(s.rel, err)
	}
	return nil
}

// reset drops slot references and lets the dir cache close retired pairs.
// Slot storage is kept for the next batch.
func (b *openBatcher) reset() {
	for i := range b.n {
		b.slots[i].dir.refs--
		b.slots[i].dir = nil
	}
	b.n = 0
	b.dirs.sweep()
}

// discard drops queued pairs without opening them.
func (b *openBatcher) discard() {
	b.reset()
}

func closeResults(res []platform.OpenResult) {
	for i := range res {
		_ = closeFd(res[i].Fd)
		res[i].Fd = -1
	}
}

func closeFile(f *os.File) {
	if err := f.Close(); err != nil {
		slog.Debug("close", "file", f.Name(), "error", err)
	}
}
