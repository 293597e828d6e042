//go:build darwin

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// CopyFile tries clonefile first, then falls back to read/write on macOS.
// clonefile refuses to replace an existing path, so the empty destination
// created by the caller is removed before cloning over it.
func CopyFile(params CopyFileParams) (CopyResult, error) {
	dst := params.DstFd.Name()
	if err := os.Remove(dst); err == nil {
		err = unix.Clonefile(params.SrcPath, dst, 0)
		if err == nil {
			return CopyResult{BytesWritten: params.SrcSize, Method: Clonefile}, nil
		}
		if !isFallbackCloneErr(err) {
			return CopyResult{}, err
		}
		// Recreate the path so the caller's rename still finds a file; the
		// open descriptor keeps pointing at the unlinked inode, so write through
		// a fresh one.
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return CopyResult{}, err
		}
		defer f.Close()
		params.DstFd = f
	}

	preallocate(params.DstFd, params.SrcSize)
	return copyReadWrite(params)
}

func isFallbackCloneErr(err error) bool {
	switch err {
	case unix.ENOTSUP, unix.EXDEV, unix.EEXIST:
		return true
	}
	return false
}
