package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// openers returns every BatchOpener available on this machine.
func openers(t *testing.T, entries uint) map[string]BatchOpener {
	t.Helper()

	out := map[string]BatchOpener{
		"sync": NewSyncOpener(int(entries)),
	}
	ring, err := NewIOURingOpener(entries)
	if err != nil {
		t.Logf("io_uring unavailable: %v", err)
	} else if ring != nil {
		out["iouring"] = ring
	}
	for _, o := range out {
		t.Cleanup(func() { _ = o.Close() })
	}
	return out
}

func openDir(t *testing.T, dir string) int {
	t.Helper()
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fd) })
	return fd
}

func TestOpenBatchMixedResults(t *testing.T) {
	dir := t.TempDir()
	for i := range 5 {
		name := fmt.Sprintf("f%d", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0644))
	}
	dirFd := openDir(t, dir)

	for name, o := range openers(t, 16) {
		t.Run(name, func(t *testing.T) {
			reqs := []OpenRequest{
				{DirFd: dirFd, Name: "f0"},
				{DirFd: dirFd, Name: "missing"},
				{DirFd: dirFd, Name: "f2"},
				{DirFd: dirFd, Name: "f4"},
				{DirFd: dirFd, Name: "also-missing"},
			}
			res := make([]OpenResult, len(reqs))
			require.NoError(t, o.OpenBatch(reqs, res))

			for i, r := range res {
				if reqs[i].Name == "missing" || reqs[i].Name == "also-missing" {
					assert.ErrorIs(t, r.Err, unix.ENOENT, reqs[i].Name)
					continue
				}
				require.NoError(t, r.Err, reqs[i].Name)
				f := os.NewFile(uintptr(r.Fd), reqs[i].Name)
				buf := make([]byte, 8)
				n, err := f.Read(buf)
				require.NoError(t, err)
				// Each descriptor must belong to its own request.
				assert.Equal(t, reqs[i].Name, string(buf[:n]))
				require.NoError(t, f.Close())
			}
		})
	}
}

func TestOpenBatchAcrossDirectories(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(a, "x"), []byte("from a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(b, "x"), []byte("from b"), 0644))
	aFd := openDir(t, a)
	bFd := openDir(t, b)

	for name, o := range openers(t, 8) {
		t.Run(name, func(t *testing.T) {
			reqs := []OpenRequest{{DirFd: aFd, Name: "x"}, {DirFd: bFd, Name: "x"}}
			res := make([]OpenResult, 2)
			require.NoError(t, o.OpenBatch(reqs, res))

			for i, want := range []string{"from a", "from b"} {
				require.NoError(t, res[i].Err)
				f := os.NewFile(uintptr(res[i].Fd), "x")
				got := make([]byte, 16)
				n, _ := f.Read(got)
				assert.Equal(t, want, string(got[:n]))
				require.NoError(t, f.Close())
			}
		})
	}
}

func TestOpenBatchReusedAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("f"), 0644))
	dirFd := openDir(t, dir)

	for name, o := range openers(t, 4) {
		t.Run(name, func(t *testing.T) {
			reqs := []OpenRequest{{DirFd: dirFd, Name: "f"}}
			res := make([]OpenResult, 1)
			for range 50 {
				require.NoError(t, o.OpenBatch(reqs, res))
				require.NoError(t, res[0].Err)
				require.NoError(t, unix.Close(res[0].Fd))
			}
		})
	}
}

func TestOpenBatchEmpty(t *testing.T) {
	for name, o := range openers(t, 4) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, o.OpenBatch(nil, nil))
		})
	}
}

func TestIOURingOpenerRejectsOversizedBatch(t *testing.T) {
	ring, err := NewIOURingOpener(4)
	if err != nil || ring == nil {
		t.Skip("io_uring not available")
	}
	defer ring.Close()

	reqs := make([]OpenRequest, ring.Capacity()+1)
	res := make([]OpenResult, len(reqs))
	assert.Error(t, ring.OpenBatch(reqs, res))
}

func TestNewBatchOpenerFallback(t *testing.T) {
	o, err := NewBatchOpener(32, false)
	require.NoError(t, err)
	defer o.Close()
	assert.Equal(t, OpenSync, o.Method())
	assert.Equal(t, 32, o.Capacity())

	_, err = NewBatchOpener(0, true)
	assert.Error(t, err)
}

func TestNewBatchOpenerPrefersRing(t *testing.T) {
	o, err := NewBatchOpener(32, true)
	require.NoError(t, err)
	defer o.Close()
	if !KernelSupportsIOURing() {
		assert.Equal(t, OpenSync, o.Method())
		return
	}
	// Setup can still fail when io_uring is disabled by sysctl or seccomp.
	assert.GreaterOrEqual(t, o.Capacity(), 32)
}

func TestOpenMethodString(t *testing.T) {
	assert.Equal(t, "openat", OpenSync.String())
	assert.Equal(t, "io_uring", OpenIOURing.String())
	assert.Equal(t, "unknown", OpenMethod(7).String())
}
