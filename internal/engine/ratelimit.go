package engine

import (
	"context"
	"io"
	"os"

	"golang.org/x/time/rate"

	"github.com/bamsammich/treedelta/internal/platform"
)

// NewBWLimiter creates a rate.Limiter that caps aggregate copy throughput to
// bytesPerSec. The burst is 1 MiB so whole read chunks pass without
// blocking on each small read.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// rateLimitedReader wraps an io.Reader and enforces a shared rate limit.
type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func newRateLimitedReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) *rateLimitedReader {
	return &rateLimitedReader{r: r, limiter: limiter, ctx: ctx}
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	if len(p) > rl.limiter.Burst() {
		p = p[:rl.limiter.Burst()]
	}
	n, err := rl.r.Read(p)
	if n > 0 {
		if waitErr := rl.limiter.WaitN(rl.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

// limitedCopy copies src into dst through the limiter. It replaces the
// kernel copy paths, which cannot be throttled.
func limitedCopy(ctx context.Context, dst *os.File, src string, limiter *rate.Limiter) (platform.CopyResult, error) {
	in, err := os.Open(src)
	if err != nil {
		return platform.CopyResult{Method: platform.ReadWrite}, err
	}
	defer in.Close()

	n, err := io.Copy(dst, newRateLimitedReader(ctx, in, limiter))
	return platform.CopyResult{BytesWritten: n, Method: platform.ReadWrite}, err
}
