package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateSparkline(t *testing.T) {
	tests := []struct {
		name  string
		rates []float64
		width int
		want  string
	}{
		{name: "no samples", rates: nil, width: 4, want: "    "},
		{name: "zero width", rates: []float64{1, 2}, width: 0, want: ""},
		{name: "stalled", rates: []float64{0, 0, 0}, width: 3, want: "▁▁▁"},
		{name: "warming up", rates: []float64{500}, width: 3, want: "  █"},
		{name: "steady", rates: []float64{40, 40}, width: 2, want: "██"},
		{name: "stall between bursts", rates: []float64{100, 0, 100}, width: 3, want: "█▁█"},
		{name: "keeps newest", rates: []float64{1000, 10, 10}, width: 2, want: "██"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RateSparkline(tt.rates, tt.width))
		})
	}
}

func TestRateSparklineSlowSecondStaysAboveStall(t *testing.T) {
	runes := []rune(RateSparkline([]float64{0, 1, 10000}, 3))
	assert.Equal(t, '▁', runes[0])
	assert.Equal(t, '▂', runes[1])
	assert.Equal(t, '█', runes[2])
}

func TestRateSparklineRises(t *testing.T) {
	runes := []rune(RateSparkline([]float64{1, 2, 3, 4, 5, 6, 7}, 7))
	assert.Len(t, runes, 7)
	for i := 1; i < len(runes); i++ {
		assert.GreaterOrEqual(t, runes[i], runes[i-1])
	}
	assert.Equal(t, '█', runes[6])
}
