package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/treedelta/internal/platform"
)

// copier stages files into the output tree. Each file is written to a
// temporary name next to its destination and renamed over it, so an
// interrupted run never leaves a truncated file at a staged path.
type copier struct {
	ctx     context.Context // bounds limiter waits
	limiter *rate.Limiter   // nil for unthrottled kernel copies
	root    string
	made    map[string]struct{} // output directories known to exist
	dryRun  bool
}

func newCopier(root string, dryRun bool) *copier {
	return &copier{
		ctx:    context.Background(),
		root:   root,
		dryRun: dryRun,
		made:   make(map[string]struct{}),
	}
}

// copy writes the contents of src to root/rel, replacing any existing file,
// and returns the number of bytes written. In a dry run nothing is written
// and the source size is returned.
func (c *copier) copy(src, rel string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, &FileError{Stage: StageCopy, Path: rel, Err: err}
	}
	if c.dryRun {
		return info.Size(), nil
	}

	dst := filepath.Join(c.root, filepath.FromSlash(rel))
	dir := filepath.Dir(dst)
	if _, ok := c.made[dir]; !ok {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, &FileError{Stage: StageCopy, Path: rel, Err: fmt.Errorf("create parent dir: %w", err)}
		}
		c.made[dir] = struct{}{}
	}

	n, err := c.copyFile(src, dst, info)
	if err != nil {
		return n, &FileError{Stage: StageCopy, Path: rel, Err: err}
	}
	return n, nil
}

func (c *copier) copyFile(src, dst string, info os.FileInfo) (int64, error) {
	tmpName := fmt.Sprintf(".%s.%s.treedelta-tmp", filepath.Base(dst), uuid.New().String()[:8])
	tmpPath := filepath.Join(filepath.Dir(dst), tmpName)

	RegisterTmp(tmpPath)
	defer func() {
		DeregisterTmp(tmpPath)
		_ = os.Remove(tmpPath) // no-op if rename succeeded
	}()

	tmpFd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return 0, fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	var result platform.CopyResult
	if c.limiter != nil {
		result, err = limitedCopy(c.ctx, tmpFd, src, c.limiter)
	} else {
		result, err = platform.CopyFile(platform.CopyFileParams{
			DstFd:   tmpFd,
			SrcPath: src,
			SrcSize: info.Size(),
		})
	}
	if err != nil {
		tmpFd.Close()
		return result.BytesWritten, fmt.Errorf("copy data: %w", err)
	}

	// Preallocation sized the file from the stat; the source may have shrunk since.
	if result.BytesWritten != info.Size() {
		if err := tmpFd.Truncate(result.BytesWritten); err != nil {
			tmpFd.Close()
			return result.BytesWritten, fmt.Errorf("truncate tmp %s: %w", tmpPath, err)
		}
	}

	if err := tmpFd.Close(); err != nil {
		return result.BytesWritten, fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}

	// By path: on darwin the clone replaces the file behind tmpFd.
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return result.BytesWritten, fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := setFileTimes(tmpPath, info.ModTime()); err != nil {
		return result.BytesWritten, err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return result.BytesWritten, fmt.Errorf("rename %s -> %s: %w", tmpPath, dst, err)
	}
	return result.BytesWritten, nil
}
