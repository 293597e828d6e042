package platform

import "golang.org/x/sys/unix"

const openFlags = unix.O_RDONLY | unix.O_CLOEXEC

// SyncOpener issues one blocking openat(2) per request. It is the baseline
// the ring is measured against and the fallback where io_uring is missing.
type SyncOpener struct {
	capacity int
}

// NewSyncOpener creates a SyncOpener that accepts up to capacity requests
// per batch.
func NewSyncOpener(capacity int) *SyncOpener {
	if capacity <= 0 {
		capacity = 1
	}
	return &SyncOpener{capacity: capacity}
}

func (*SyncOpener) Method() OpenMethod { return OpenSync }

func (o *SyncOpener) Capacity() int { return o.capacity }

// OpenBatch opens each request in order.
func (o *SyncOpener) OpenBatch(reqs []OpenRequest, res []OpenResult) error {
	for i, r := range reqs {
		fd, err := unix.Openat(r.DirFd, r.Name, openFlags, 0)
		if err != nil {
			res[i] = OpenResult{Fd: -1, Err: err}
			continue
		}
		res[i] = OpenResult{Fd: fd}
	}
	return nil
}

func (*SyncOpener) Close() error { return nil }
