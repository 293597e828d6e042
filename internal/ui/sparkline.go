package ui

import "strings"

var rateBlocks = []rune("▁▂▃▄▅▆▇█")

// RateSparkline draws files/sec samples, oldest first, as a width-rune bar
// scaled to the busiest sample shown. Seconds without a sample yet are blank
// and a stalled second draws the lowest block, so any progress at all stays
// visible above it.
func RateSparkline(rates []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(rates) > width {
		rates = rates[len(rates)-width:]
	}

	peak := 0.0
	for _, r := range rates {
		peak = max(peak, r)
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(" ", width-len(rates)))
	top := len(rateBlocks) - 1
	for _, r := range rates {
		if r <= 0 || peak <= 0 {
			b.WriteRune(rateBlocks[0])
			continue
		}
		level := 1 + int(r/peak*float64(top-1)+0.5)
		b.WriteRune(rateBlocks[min(level, top)])
	}
	return b.String()
}
