package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ScanStarted Type = iota + 1
	ScanComplete
	FileNew
	FileChanged
	FileUnchanged
	FileFailed
	BatchFlushed
	VerifyStarted
	VerifyOK
	VerifyFailed
	ArchiveWritten
)

var typeNames = [...]string{
	ScanStarted:    "ScanStarted",
	ScanComplete:   "ScanComplete",
	FileNew:        "FileNew",
	FileChanged:    "FileChanged",
	FileUnchanged:  "FileUnchanged",
	FileFailed:     "FileFailed",
	BatchFlushed:   "BatchFlushed",
	VerifyStarted:  "VerifyStarted",
	VerifyOK:       "VerifyOK",
	VerifyFailed:   "VerifyFailed",
	ArchiveWritten: "ArchiveWritten",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Staged reports whether the event means a file was selected for the output tree.
func (t Type) Staged() bool {
	return t == FileNew || t == FileChanged
}

// PerFile reports whether the event belongs to the per-file listing, which
// consumers must receive in full.
func (t Type) PerFile() bool {
	return t.Staged() || t == FileFailed || t == VerifyFailed || t == ArchiveWritten
}

// Event represents a single progress event from the engine.
type Event struct {
	Timestamp time.Time
	Error     error
	Type      Type
	Path      string        // relative path, or the archive path for ArchiveWritten
	Size      int64         // file size, or archive bytes
	Count     int           // pairs in a flush, files scanned (ScanComplete), files archived
	Elapsed   time.Duration // flush wall time
}
