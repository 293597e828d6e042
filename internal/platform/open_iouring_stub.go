//go:build !linux

package platform

import "errors"

var errUnsupported = errors.New("io_uring is only available on Linux")

// IOURingOpener is a no-op stub on non-Linux platforms.
type IOURingOpener struct{}

// NewIOURingOpener always returns (nil, nil) on non-Linux platforms.
func NewIOURingOpener(_ uint) (*IOURingOpener, error) {
	return nil, nil
}

func (*IOURingOpener) Method() OpenMethod { return OpenIOURing }

func (*IOURingOpener) Capacity() int { return 0 }

func (*IOURingOpener) OpenBatch(reqs []OpenRequest, res []OpenResult) error {
	for i := range reqs {
		res[i] = OpenResult{Fd: -1, Err: errUnsupported}
	}
	return nil
}

func (*IOURingOpener) Close() error { return nil }

// KernelSupportsIOURing always returns false on non-Linux platforms.
func KernelSupportsIOURing() bool {
	return false
}
