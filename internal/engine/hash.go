package engine

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// DefaultBufferSize is the hasher's read size.
const DefaultBufferSize = 8 * 1024

// Hasher computes 64-bit xxHash fingerprints through one reusable buffer.
// It is not safe for concurrent use.
type Hasher struct {
	digest *xxhash.Digest
	buf    []byte
}

// NewHasher creates a Hasher reading size bytes at a time.
func NewHasher(size int) *Hasher {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Hasher{
		digest: xxhash.New(),
		buf:    make([]byte, size),
	}
}

// Hash reads r to EOF and returns its fingerprint and length. Short reads
// are not end of stream; only a zero-length read or io.EOF is.
func (h *Hasher) Hash(r io.Reader) (uint64, int64, error) {
	h.digest.Reset()
	var total int64
	for {
		n, err := r.Read(h.buf)
		if n > 0 {
			_, _ = h.digest.Write(h.buf[:n]) //nolint:errcheck // xxhash.Digest.Write never fails
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, total, err
		}
		if n == 0 {
			break
		}
	}
	return h.digest.Sum64(), total, nil
}

// HashFile computes the BLAKE3 hash of the file at path, returning the hex-encoded digest.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	digest := h.Sum(nil)
	return hex.EncodeToString(digest), nil
}
