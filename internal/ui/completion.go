package ui

import (
	"fmt"

	"github.com/bamsammich/treedelta/internal/stats"
)

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  scanned 48,917  new 12  changed 3  unchanged 48,902  staged 2.1 MiB  time 3s  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	icon := "✓"
	if failures(snap) > 0 {
		icon = "✗"
	}
	return "done " + icon + summaryBody(snap)
}

// StyledSummary is CompletionSummary with a colored status prefix.
func StyledSummary(snap stats.Snapshot) string {
	head := styleSummaryOK.Render("done ✓")
	if failures(snap) > 0 {
		head = styleSummaryErr.Render("done ✗")
	}
	return head + summaryBody(snap)
}

func summaryBody(snap stats.Snapshot) string {
	base := fmt.Sprintf("  scanned %s  new %s  changed %s  unchanged %s  staged %s  time %s",
		FormatCount(snap.FilesScanned),
		FormatCount(snap.FilesNew),
		FormatCount(snap.FilesChanged),
		FormatCount(snap.FilesUnchanged),
		FormatBytes(snap.BytesCopied),
		FormatDuration(snap.Elapsed),
	)

	if snap.FilesVerified > 0 || snap.FilesVerifyFailed > 0 {
		base += fmt.Sprintf("  verified %s", FormatCount(snap.FilesVerified))
	}

	base += fmt.Sprintf("  errors %d", failures(snap))
	return base
}

func failures(snap stats.Snapshot) int64 {
	return snap.FilesFailed + snap.FilesVerifyFailed
}
