package platform

import (
	"fmt"
	"log/slog"
)

// OpenMethod identifies how a BatchOpener issues its open requests.
type OpenMethod int

const (
	OpenSync    OpenMethod = iota // one openat(2) per request
	OpenIOURing                   // IORING_OP_OPENAT batches
)

func (m OpenMethod) String() string {
	switch m {
	case OpenSync:
		return "openat"
	case OpenIOURing:
		return "io_uring"
	default:
		return "unknown"
	}
}

// OpenRequest asks for Name to be opened read-only relative to the directory
// descriptor DirFd.
type OpenRequest struct {
	Name  string
	DirFd int
}

// OpenResult is the outcome of one OpenRequest. Fd is -1 when Err is set.
type OpenResult struct {
	Err error
	Fd  int
}

// BatchOpener opens files in batches. OpenBatch fills res[i] for reqs[i] and
// returns only after every request has completed. The returned error reports
// a failure of the batch mechanism itself; per-file failures land in res.
// Callers own every descriptor reported in res.
type BatchOpener interface {
	Method() OpenMethod
	// Capacity is the largest number of requests a single OpenBatch accepts.
	Capacity() int
	OpenBatch(reqs []OpenRequest, res []OpenResult) error
	Close() error
}

// NewBatchOpener returns an io_uring backed opener with room for entries
// requests when preferRing is set and the kernel supports it, and the
// synchronous openat opener otherwise.
//
//nolint:ireturn // factory returns interface by design
func NewBatchOpener(entries uint, preferRing bool) (BatchOpener, error) {
	if entries == 0 {
		return nil, fmt.Errorf("batch opener needs at least one entry")
	}
	if preferRing {
		ring, err := NewIOURingOpener(entries)
		switch {
		case err != nil:
			// io_uring can be compiled in yet disabled (kernel.io_uring_disabled,
			// seccomp); the synchronous path gives the same results.
			slog.Warn("io_uring unavailable, using openat", "error", err)
		case ring != nil:
			slog.Debug("batch opener", "method", OpenIOURing, "capacity", ring.Capacity())
			return ring, nil
		default:
			slog.Debug("kernel lacks IORING_OP_OPENAT, using openat")
		}
	}
	o := NewSyncOpener(int(entries)) //nolint:gosec // G115: entries bounded by ring sizing
	slog.Debug("batch opener", "method", OpenSync, "capacity", o.Capacity())
	return o, nil
}
