package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/treedelta/internal/stats"
)

// plainPresenter outputs one line per staged file to stdout,
// and periodic progress to stderr when not a TTY.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   stats.ReadTicker
	verbose bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case FileNew:
		fmt.Fprintf(p.w, "new      %s  %s\n", ev.Path, FormatBytes(ev.Size))
	case FileChanged:
		fmt.Fprintf(p.w, "changed  %s  %s\n", ev.Path, FormatBytes(ev.Size))
	case FileUnchanged:
		if p.verbose {
			fmt.Fprintf(p.w, "same     %s\n", ev.Path)
		}
	case FileFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "failed   %s  %s\n", ev.Path, errMsg)
	case VerifyStarted:
		fmt.Fprintln(p.w, "verifying...")
	case VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s\n", ev.Path)
	case ArchiveWritten:
		fmt.Fprintf(p.w, "archive: %s  %s files  %s\n",
			ev.Path, FormatCount(int64(ev.Count)), FormatBytes(ev.Size))
	case ScanStarted, ScanComplete, BatchFlushed, VerifyOK:
		// silent in plain mode
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	fmt.Fprintf(p.errW, "progress: %s scanned %s staged %s unchanged %s files/s\n",
		FormatCount(snap.FilesScanned),
		FormatCount(snap.FilesStaged()),
		FormatCount(snap.FilesUnchanged),
		FormatCount(int64(p.stats.RollingFilesPerSec(5))),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
