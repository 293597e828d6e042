package ui

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

const defaultWidth = 80

// Terminal describes where the HUD would draw.
type Terminal struct {
	IsTTY bool
	Width int
}

// DetectTerminal probes f. When f is not a terminal, Width comes from
// $COLUMNS, else 80.
func DetectTerminal(f *os.File) Terminal {
	fd := int(f.Fd()) //nolint:gosec // G115: fd values are small non-negative integers
	t := Terminal{IsTTY: term.IsTerminal(fd), Width: defaultWidth}
	if t.IsTTY {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			t.Width = w
			return t
		}
	}
	if w, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && w > 0 {
		t.Width = w
	}
	return t
}
