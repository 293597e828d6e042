package engine

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/treedelta/internal/platform"
)

// writeTree creates files under root from a map of slash-separated relative
// paths to contents.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(root, 0o755))
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// readTree returns every regular file under root keyed by slash-separated
// relative path. A missing root reads as an empty tree.
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()

	out := make(map[string]string)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return out
	}
	require.NoError(t, filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	}))
	return out
}

type openerCase struct {
	name string
	new  func(t *testing.T, pairs int) platform.BatchOpener
}

// openerCases returns the synchronous opener and, when the kernel allows it,
// the io_uring opener. Each constructor sizes the opener for pairs file pairs
// and closes it when the test ends.
func openerCases(t *testing.T) []openerCase {
	t.Helper()

	cases := []openerCase{{
		name: "openat",
		new: func(t *testing.T, pairs int) platform.BatchOpener {
			t.Helper()
			return platform.NewSyncOpener(2 * pairs)
		},
	}}

	probe, err := platform.NewIOURingOpener(2)
	if err != nil || probe == nil {
		t.Logf("io_uring opener skipped: err=%v", err)
		return cases
	}
	_ = probe.Close()

	return append(cases, openerCase{
		name: "io_uring",
		new: func(t *testing.T, pairs int) platform.BatchOpener {
			t.Helper()
			o, err := platform.NewIOURingOpener(uint(2 * pairs))
			require.NoError(t, err)
			require.NotNil(t, o)
			t.Cleanup(func() { _ = o.Close() })
			return o
		},
	})
}

// openFds counts this process's open descriptors, or returns -1 where
// /proc/self/fd is unavailable.
func openFds(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return -1
	}
	return len(entries)
}
