//go:build !linux

package platform

import "os"

// fallocate(2) has no portable equivalent; destinations simply grow as written.
func preallocate(_ *os.File, _ int64) {}
