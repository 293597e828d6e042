package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/bamsammich/treedelta/internal/stats"
)

// hudPresenter provides a TTY display with a scrolling feed of staged files
// and a 2-line HUD that redraws in place.
type hudPresenter struct {
	w       io.Writer
	stats   stats.ReadTicker
	verbose bool
	width   int // terminal columns, 0 for no truncation

	// Internal state.
	hudDrawn     bool
	hudLineCount int
	verifying    bool
	verifyTotal  int64
	lastHUDDraw  time.Time
}

const (
	sparklineWidth   = 20
	progressBarWidth = 20
	hudLines         = 2
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
)

func (p *hudPresenter) Run(events <-chan Event) error {
	// Fire first tick quickly to seed the ring buffer, then switch to 1s.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	// Redraw ticker for when no events are flowing (large hashes, slow flushes).
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(1 * time.Second)
			}
		}
	}
}

func (p *hudPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case FileNew:
		p.feedLine(styleIconNew.Render("+"), ev.Path, FormatBytes(ev.Size))

	case FileChanged:
		p.feedLine(styleIconChanged.Render("~"), ev.Path, FormatBytes(ev.Size))

	case FileUnchanged:
		if p.verbose {
			p.feedLine(styleFileDir.Render("="), ev.Path, "")
		}

	case FileFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		p.feedLine(styleIconFailed.Render("✗"), ev.Path, errMsg)

	case VerifyStarted:
		p.clearHUD()
		p.verifying = true
		p.verifyTotal = p.stats.Snapshot().FilesStaged()
		fmt.Fprintln(p.w, styleFileDir.Render("verifying checksums..."))

	case VerifyFailed:
		p.feedLine(styleIconFailed.Render("✗"), ev.Path, "CHECKSUM MISMATCH")

	case ArchiveWritten:
		p.clearHUD()
		fmt.Fprintf(p.w, "archive  %s  %s files  %s\n",
			ev.Path, FormatCount(int64(ev.Count)), FormatBytes(ev.Size))

	case ScanStarted, ScanComplete, BatchFlushed, VerifyOK:
		// reflected in the HUD counters
	}
}

// feedLine prints one scrolling line above the HUD and redraws it.
func (p *hudPresenter) feedLine(icon, path, detail string) {
	p.clearHUD()
	if p.width > 0 {
		path = truncPath(path, max(p.width-len(detail)-8, 20))
	}
	if detail == "" {
		fmt.Fprintf(p.w, "%s  %s\n", icon, styledPath(path))
	} else {
		fmt.Fprintf(p.w, "%s  %s  %s\n", icon, styledPath(path), detail)
	}
	p.drawHUD()
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()
	p.clearHUD()

	// Line 1: classification rate and scan totals.
	spark := styleSparkline.Render(RateSparkline(p.stats.SparklineData(sparklineWidth), sparklineWidth))
	fmt.Fprintf(p.w, "       %s  %s files/s   %s scanned  %s batches  %s dirs\n",
		spark,
		FormatCount(int64(p.stats.RollingFilesPerSec(5))),
		FormatCount(snap.FilesScanned),
		FormatCount(snap.Batches),
		FormatCount(snap.DirsOpened),
	)

	// Line 2: classification counts, or verify progress.
	if p.verifying {
		done := snap.FilesVerified + snap.FilesVerifyFailed
		var pct float64
		if p.verifyTotal > 0 {
			pct = float64(done) / float64(p.verifyTotal)
		}
		fmt.Fprintf(p.w, " %3.0f%%  %s   %s / %s verified\n",
			pct*100, ProgressBar(pct, progressBarWidth),
			FormatCount(done), FormatCount(p.verifyTotal))
	} else {
		fmt.Fprintf(p.w, "       new %s  changed %s  unchanged %s  failed %s   %s staged\n",
			FormatCount(snap.FilesNew),
			FormatCount(snap.FilesChanged),
			FormatCount(snap.FilesUnchanged),
			FormatCount(snap.FilesFailed),
			FormatBytes(snap.BytesCopied),
		)
	}

	p.hudDrawn = true
	p.hudLineCount = hudLines
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	lines := p.hudLineCount
	if lines == 0 {
		lines = hudLines
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", lines)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return StyledSummary(p.stats.Snapshot())
}

// styledPath returns the path with the directory portion dimmed, making the
// actual filename stand out.
func styledPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "." || dir == "" {
		return styleFileBase.Render(base)
	}
	return styleFileDir.Render(dir+"/") + styleFileBase.Render(base)
}

// truncPath shortens a path to fit within maxLen characters.
func truncPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[:maxLen]
	}
	return "..." + path[len(path)-maxLen+3:]
}
