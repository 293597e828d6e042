package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Writer is the side of the collector the engine updates.
type Writer interface {
	AddFilesScanned(n int64)
	AddFilesNew(n int64)
	AddFilesChanged(n int64)
	AddFilesUnchanged(n int64)
	AddFilesFailed(n int64)
	AddBytesHashed(n int64)
	AddBytesCopied(n int64)
	AddBatches(n int64)
	AddDirsOpened(n int64)
	AddFilesVerified(n int64)
	AddFilesVerifyFailed(n int64)
}

// Reader exposes counters to presenters.
type Reader interface {
	Snapshot() Snapshot
	RollingFilesPerSec(seconds int) float64
	RollingSpeed(seconds int) float64
	SparklineData(n int) []float64
}

// ReadTicker is a Reader the presenter also drives once per second.
type ReadTicker interface {
	Reader
	Tick()
}

// Collector tracks run statistics using lock-free atomic counters.
type Collector struct {
	startTime         time.Time
	filesScanned      atomic.Int64
	filesNew          atomic.Int64
	filesChanged      atomic.Int64
	filesUnchanged    atomic.Int64
	filesFailed       atomic.Int64
	bytesHashed       atomic.Int64
	bytesCopied       atomic.Int64
	batches           atomic.Int64
	dirsOpened        atomic.Int64
	filesVerified     atomic.Int64
	filesVerifyFailed atomic.Int64

	// Ring buffer, written only by the presenter's Tick().
	mu          sync.Mutex
	throughput  [ringSize]int64 // bytes hashed delta per second
	filesPerSec [ringSize]int64 // files scanned delta per second
	ringIdx     int
	ringCount   int // how many samples have been written (capped at ringSize)
	lastBytes   int64
	lastFiles   int64
}

var (
	_ Writer     = (*Collector)(nil)
	_ ReadTicker = (*Collector)(nil)
)

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesScanned      int64
	FilesNew          int64
	FilesChanged      int64
	FilesUnchanged    int64
	FilesFailed       int64
	BytesHashed       int64
	BytesCopied       int64
	Batches           int64
	DirsOpened        int64
	FilesVerified     int64
	FilesVerifyFailed int64
	Elapsed           time.Duration
}

// FilesStaged is the number of files written (or, in a dry run, selected)
// for the output tree.
func (s Snapshot) FilesStaged() int64 { return s.FilesNew + s.FilesChanged }

func (c *Collector) AddFilesScanned(n int64)      { c.filesScanned.Add(n) }
func (c *Collector) AddFilesNew(n int64)          { c.filesNew.Add(n) }
func (c *Collector) AddFilesChanged(n int64)      { c.filesChanged.Add(n) }
func (c *Collector) AddFilesUnchanged(n int64)    { c.filesUnchanged.Add(n) }
func (c *Collector) AddFilesFailed(n int64)       { c.filesFailed.Add(n) }
func (c *Collector) AddBytesHashed(n int64)       { c.bytesHashed.Add(n) }
func (c *Collector) AddBytesCopied(n int64)       { c.bytesCopied.Add(n) }
func (c *Collector) AddBatches(n int64)           { c.batches.Add(n) }
func (c *Collector) AddDirsOpened(n int64)        { c.dirsOpened.Add(n) }
func (c *Collector) AddFilesVerified(n int64)     { c.filesVerified.Add(n) }
func (c *Collector) AddFilesVerifyFailed(n int64) { c.filesVerifyFailed.Add(n) }

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned:      c.filesScanned.Load(),
		FilesNew:          c.filesNew.Load(),
		FilesChanged:      c.filesChanged.Load(),
		FilesUnchanged:    c.filesUnchanged.Load(),
		FilesFailed:       c.filesFailed.Load(),
		BytesHashed:       c.bytesHashed.Load(),
		BytesCopied:       c.bytesCopied.Load(),
		Batches:           c.batches.Load(),
		DirsOpened:        c.dirsOpened.Load(),
		FilesVerified:     c.filesVerified.Load(),
		FilesVerifyFailed: c.filesVerifyFailed.Load(),
		Elapsed:           c.Elapsed(),
	}
}

// Tick snapshots byte/file deltas into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	currentBytes := c.bytesHashed.Load()
	currentFiles := c.filesScanned.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	bytesDelta := currentBytes - c.lastBytes
	filesDelta := currentFiles - c.lastFiles
	c.lastBytes = currentBytes
	c.lastFiles = currentFiles

	c.throughput[c.ringIdx] = bytesDelta
	c.filesPerSec[c.ringIdx] = filesDelta
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average hashed bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingFilesPerSec returns average files/sec over the last n seconds.
func (c *Collector) RollingFilesPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.filesPerSec[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := min(n, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns the last n files/sec samples, oldest first.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count <= 0 {
		return nil
	}

	data := make([]float64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(c.filesPerSec[idx])
	}
	return data
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scanned=%d new=%d changed=%d unchanged=%d failed=%d hashed=%d copied=%d batches=%d dirs=%d",
		s.FilesScanned, s.FilesNew, s.FilesChanged, s.FilesUnchanged, s.FilesFailed,
		s.BytesHashed, s.BytesCopied, s.Batches, s.DirsOpened,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
