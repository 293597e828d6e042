package engine

import (
	"errors"
	"fmt"
)

// ErrFilesFailed is wrapped by Result.Err when KeepGoing finished a run with
// per-file failures.
var ErrFilesFailed = errors.New("files failed")

// Stage names the step of a run where a failure happened.
type Stage int

const (
	StageTraverse Stage = iota // walking the modified tree or probing the baseline
	StageOpen                  // opening a parent directory or a file pair
	StageHash                  // reading a file for its fingerprint
	StageCopy                  // creating output directories or copying
	StageVerify                // post-run checksum comparison
)

func (s Stage) String() string {
	switch s {
	case StageTraverse:
		return "traverse"
	case StageOpen:
		return "open"
	case StageHash:
		return "hash"
	case StageCopy:
		return "copy"
	case StageVerify:
		return "verify"
	default:
		return "unknown"
	}
}

// FileError is a failure tied to one path relative to the tree roots.
type FileError struct {
	Err   error
	Path  string
	Stage Stage
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// StageOf returns the stage of the first FileError in err's chain.
func StageOf(err error) (Stage, bool) {
	var fe *FileError
	if errors.As(err, &fe) {
		return fe.Stage, true
	}
	return 0, false
}
