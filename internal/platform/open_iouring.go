//go:build linux

package platform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iceber/iouring-go"
	"golang.org/x/sys/unix"
)

// IOURingOpener submits batches of IORING_OP_OPENAT requests through a
// single ring and waits for the whole batch to complete.
type IOURingOpener struct {
	ring *iouring.IOURing

	// Reused across batches; index i of prep corresponds to reqs[slots[i]].
	prep  []iouring.PrepRequest
	slots []int
}

// NewIOURingOpener creates a ring with room for entries open requests.
// Returns (nil, nil) if the kernel predates IORING_OP_OPENAT (< 5.6).
func NewIOURingOpener(entries uint) (*IOURingOpener, error) {
	if !kernelSupportsIOURing() {
		return nil, nil
	}

	ring, err := iouring.New(entries)
	if err != nil {
		return nil, fmt.Errorf("io_uring_setup: %w", err)
	}
	return &IOURingOpener{
		ring:  ring,
		prep:  make([]iouring.PrepRequest, 0, ring.Size()),
		slots: make([]int, 0, ring.Size()),
	}, nil
}

func (*IOURingOpener) Method() OpenMethod { return OpenIOURing }

// Capacity is the submission queue size the kernel granted, which may be
// larger than requested (rounded up to a power of two).
func (o *IOURingOpener) Capacity() int { return o.ring.Size() }

// OpenBatch submits every request in one go and blocks until all of them
// complete. Completions are matched back by submission index, not by the
// order the kernel finished them in.
func (o *IOURingOpener) OpenBatch(reqs []OpenRequest, res []OpenResult) error {
	if len(reqs) == 0 {
		return nil
	}
	if len(reqs) > o.Capacity() {
		return fmt.Errorf("io_uring batch of %d exceeds ring capacity %d", len(reqs), o.Capacity())
	}

	o.prep = o.prep[:0]
	o.slots = o.slots[:0]
	for i, r := range reqs {
		p, err := iouring.Openat(r.DirFd, r.Name, openFlags, 0)
		if err != nil {
			// Only a NUL byte in the name gets here; report it like openat would.
			res[i] = OpenResult{Fd: -1, Err: err}
			continue
		}
		o.prep = append(o.prep, p)
		o.slots = append(o.slots, i)
	}
	if len(o.prep) == 0 {
		return nil
	}

	set, err := o.ring.SubmitRequests(o.prep, nil)
	if err != nil {
		return fmt.Errorf("io_uring submit: %w", err)
	}
	<-set.Done()

	for i, req := range set.Requests() {
		slot := o.slots[i]
		fd, err := req.ReturnFd()
		if err != nil {
			res[slot] = OpenResult{Fd: -1, Err: err}
			continue
		}
		res[slot] = OpenResult{Fd: fd}
	}
	return nil
}

// Close releases the ring.
func (o *IOURingOpener) Close() error {
	if o == nil || o.ring == nil {
		return nil
	}
	return o.ring.Close()
}

// kernelSupportsIOURing checks if the kernel version is >= 5.6, the first
// release with IORING_OP_OPENAT.
func kernelSupportsIOURing() bool {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return false
	}
	major, minor, ok := parseKernelRelease(unix.ByteSliceToString(uname.Release[:]))
	if !ok {
		return false
	}
	return major > 5 || (major == 5 && minor >= 6)
}

// parseKernelRelease extracts major.minor from a uname release string such
// as "6.8.0-45-generic".
func parseKernelRelease(release string) (major, minor int, ok bool) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}

	minorStr := parts[1]
	if idx := strings.IndexFunc(minorStr, func(r rune) bool { return r < '0' || r > '9' }); idx >= 0 {
		minorStr = minorStr[:idx]
	}
	minor, err = strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// KernelSupportsIOURing is exported for testing.
func KernelSupportsIOURing() bool {
	return kernelSupportsIOURing()
}
