package engine

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/cespare/xxhash/v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0644))

	h1, err := HashFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, h1)

	// Same content should produce the same hash.
	path2 := filepath.Join(dir, "test2.txt")
	require.NoError(t, os.WriteFile(path2, []byte("hello world"), 0644))
	h2, err := HashFile(path2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Different content should produce a different hash.
	path3 := filepath.Join(dir, "test3.txt")
	require.NoError(t, os.WriteFile(path3, []byte("different content"), 0644))
	h3, err := HashFile(path3)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestHashFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, h)
}

func TestHashFileNotExist(t *testing.T) {
	_, err := HashFile("/nonexistent/file")
	assert.Error(t, err)
}

func TestHasherMatchesXXHash(t *testing.T) {
	h := NewHasher(8)
	data := []byte(strings.Repeat("treedelta ", 100))

	sum, n, err := h.Hash(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(data), sum)
	assert.Equal(t, int64(len(data)), n)
}

func TestHasherShortReadsAreNotEOF(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 4096)
	want := xxhash.Sum64(data)
	h := NewHasher(DefaultBufferSize)

	tests := []struct {
		name string
		wrap func(io.Reader) io.Reader
	}{
		{"half", iotest.HalfReader},
		{"one-byte", iotest.OneByteReader},
		{"data-err", iotest.DataErrReader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum, n, err := h.Hash(tt.wrap(bytes.NewReader(data)))
			require.NoError(t, err)
			assert.Equal(t, want, sum)
			assert.Equal(t, int64(len(data)), n)
		})
	}
}

func TestHasherReuse(t *testing.T) {
	h := NewHasher(4)
	a1, _, err := h.Hash(strings.NewReader("hello"))
	require.NoError(t, err)
	b, _, err := h.Hash(strings.NewReader("world"))
	require.NoError(t, err)
	a2, _, err := h.Hash(strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
}

func TestHasherLengthSensitive(t *testing.T) {
	h := NewHasher(0)
	a, _, err := h.Hash(strings.NewReader("same"))
	require.NoError(t, err)
	b, _, err := h.Hash(strings.NewReader("same\x00"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHasherEmpty(t *testing.T) {
	h := NewHasher(16)
	sum, n, err := h.Hash(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(nil), sum)
	assert.Zero(t, n)
}

func TestHasherReadError(t *testing.T) {
	boom := errors.New("boom")
	h := NewHasher(16)
	_, _, err := h.Hash(iotest.ErrReader(boom))
	assert.ErrorIs(t, err, boom)
}

func TestHasherFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	data := bytes.Repeat([]byte{1, 2, 3}, 10000)
	require.NoError(t, os.WriteFile(path, data, 0644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	sum, n, err := NewHasher(1000).Hash(f)
	require.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(data), sum)
	assert.Equal(t, int64(len(data)), n)
}
