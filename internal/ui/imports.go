package ui

import "github.com/bamsammich/treedelta/internal/event"

// Event is the engine progress event consumed by presenters.
type Event = event.Event

// Re-export event types for convenience.
const (
	ScanStarted    = event.ScanStarted
	ScanComplete   = event.ScanComplete
	FileNew        = event.FileNew
	FileChanged    = event.FileChanged
	FileUnchanged  = event.FileUnchanged
	FileFailed     = event.FileFailed
	BatchFlushed   = event.BatchFlushed
	VerifyStarted  = event.VerifyStarted
	VerifyOK       = event.VerifyOK
	VerifyFailed   = event.VerifyFailed
	ArchiveWritten = event.ArchiveWritten
)
