package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range opsPerGoroutine {
				c.AddFilesScanned(1)
				c.AddFilesNew(1)
				c.AddFilesChanged(1)
				c.AddFilesUnchanged(1)
				c.AddFilesFailed(1)
				c.AddBytesHashed(512)
				c.AddBytesCopied(256)
				c.AddBatches(1)
				c.AddDirsOpened(1)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.FilesScanned)
	assert.Equal(t, expected, s.FilesNew)
	assert.Equal(t, expected, s.FilesChanged)
	assert.Equal(t, expected, s.FilesUnchanged)
	assert.Equal(t, expected, s.FilesFailed)
	assert.Equal(t, expected*512, s.BytesHashed)
	assert.Equal(t, expected*256, s.BytesCopied)
	assert.Equal(t, expected, s.Batches)
	assert.Equal(t, expected, s.DirsOpened)
	assert.Equal(t, 2*expected, s.FilesStaged())
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		FilesScanned:   10,
		FilesNew:       3,
		FilesChanged:   2,
		FilesUnchanged: 4,
		FilesFailed:    1,
		BytesHashed:    8192,
		BytesCopied:    4096,
		Batches:        2,
		DirsOpened:     5,
	}
	expected := "scanned=10 new=3 changed=2 unchanged=4 failed=1 hashed=8192 copied=4096 batches=2 dirs=5"
	assert.Equal(t, expected, s.String())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatBytes(tt.input))
		})
	}
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.startTime.IsZero())
	assert.InDelta(t, 0, c.Elapsed().Seconds(), 1)
}

func TestTickAndRollingSpeed(t *testing.T) {
	c := NewCollector()

	// Simulate 5 seconds of 1000 hashed bytes/sec.
	for range 5 {
		c.AddBytesHashed(1000)
		c.AddFilesScanned(10)
		c.Tick()
	}

	assert.InDelta(t, 1000.0, c.RollingSpeed(5), 0.01)
	assert.InDelta(t, 10.0, c.RollingFilesPerSec(5), 0.01)
}

func TestRollingSpeedPartialWindow(t *testing.T) {
	c := NewCollector()

	c.AddBytesHashed(500)
	c.Tick()
	c.AddBytesHashed(500)
	c.Tick()

	// Ask for 10 but only have 2.
	assert.InDelta(t, 500.0, c.RollingSpeed(10), 0.01)
}

func TestRollingSpeedNoSamples(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, 0.0, c.RollingSpeed(5))
	assert.Equal(t, 0.0, c.RollingFilesPerSec(5))
}

func TestRingWraparound(t *testing.T) {
	c := NewCollector()

	for range ringSize + 10 {
		c.AddFilesScanned(2)
		c.Tick()
	}

	assert.Equal(t, ringSize, c.ringCount)
	assert.InDelta(t, 2.0, c.RollingFilesPerSec(ringSize*2), 0.01)
}

func TestSnapshotIncludesElapsed(t *testing.T) {
	c := NewCollector()
	time.Sleep(10 * time.Millisecond)
	s := c.Snapshot()
	assert.Greater(t, s.Elapsed, time.Duration(0))
}

func TestSparklineData(t *testing.T) {
	c := NewCollector()
	assert.Nil(t, c.SparklineData(10))

	for i := range 5 {
		c.AddFilesScanned(int64(i + 1))
		c.Tick()
	}

	data := c.SparklineData(3)
	assert.Equal(t, []float64{3, 4, 5}, data)

	// Asking for more than recorded returns what exists.
	assert.Len(t, c.SparklineData(20), 5)
}
