package engine

import (
	"errors"
	"log/slog"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// dirPair holds the open parent directories for one relative directory, one
// in each tree. refs counts pending batch slots that still resolve their
// opens against it.
type dirPair struct {
	rel      string
	modified int
	baseline int
	refs     int
	retired  bool
}

func (p *dirPair) close() error {
	return errors.Join(closeFd(p.modified), closeFd(p.baseline))
}

// dirCache keeps the pair for the directory the walker is currently in.
// Moving to another directory retires the old pair; a retired pair is closed
// once no pending slot refers to it.
type dirCache struct {
	modifiedRoot string
	baselineRoot string
	cur          *dirPair
	retired      []*dirPair
	onOpen       func(rel string)
}

func newDirCache(modifiedRoot, baselineRoot string) *dirCache {
	return &dirCache{modifiedRoot: modifiedRoot, baselineRoot: baselineRoot}
}

// acquire returns the pair for modifiedDir, opening it if the walker changed
// directory since the last call.
func (c *dirCache) acquire(modifiedDir string) (*dirPair, error) {
	rel, err := filepath.Rel(c.modifiedRoot, modifiedDir)
	if err != nil {
		return nil, &FileError{Stage: StageOpen, Path: modifiedDir, Err: err}
	}
	if c.cur != nil && c.cur.rel == rel {
		return c.cur, nil
	}

	if c.cur != nil {
		c.retire(c.cur)
		c.cur = nil
	}

	mfd, err := openDir(modifiedDir)
	if err != nil {
		return nil, &FileError{Stage: StageOpen, Path: filepath.ToSlash(rel), Err: err}
	}
	bfd, err := openDir(filepath.Join(c.baselineRoot, rel))
	if err != nil {
		_ = closeFd(mfd)
		return nil, &FileError{Stage: StageOpen, Path: filepath.ToSlash(rel), Err: err}
	}

	c.cur = &dirPair{rel: rel, modified: mfd, baseline: bfd}
	slog.Debug("parent directory changed", "dir", rel)
	if c.onOpen != nil {
		c.onOpen(rel)
	}
	return c.cur, nil
}

func (c *dirCache) retire(p *dirPair) {
	if p.refs == 0 {
		if err := p.close(); err != nil {
			slog.Debug("close parent directory", "dir", p.rel, "error", err)
		}
		return
	}
	p.retired = true
	c.retired = append(c.retired, p)
}

// sweep closes retired pairs that no pending slot refers to anymore.
func (c *dirCache) sweep() {
	kept := c.retired[:0]
	for _, p := range c.retired {
		if p.refs > 0 {
			kept = append(kept, p)
			continue
		}
		if err := p.close(); err != nil {
			slog.Debug("close parent directory", "dir", p.rel, "error", err)
		}
	}
	clear(c.retired[len(kept):])
	c.retired = kept
}

// live is the number of open pairs, retired ones included.
func (c *dirCache) live() int {
	n := len(c.retired)
	if c.cur != nil {
		n++
	}
	return n
}

// Close releases every pair regardless of pending references.
func (c *dirCache) Close() error {
	var errs []error
	for _, p := range c.retired {
		errs = append(errs, p.close())
	}
	c.retired = nil
	if c.cur != nil {
		errs = append(errs, c.cur.close())
		c.cur = nil
	}
	return errors.Join(errs...)
}

func openDir(path string) (int, error) {
	for {
		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
		if err == unix.EINTR {
			continue
		}
		return fd, err
	}
}

func closeFd(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}
