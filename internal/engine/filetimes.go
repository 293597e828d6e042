package engine

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// setFileTimes sets the modification time of path and leaves atime alone.
func setFileTimes(path string, modTime time.Time) error {
	times := []unix.Timespec{
		{Nsec: unix.UTIME_OMIT},
		unix.NsecToTimespec(modTime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, path, times, 0); err != nil {
		return fmt.Errorf("utimensat: %w", err)
	}
	return nil
}
