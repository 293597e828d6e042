package changeset

import (
	"fmt"
	"strings"
)

// Format is the archive container and compression.
type Format string

const (
	TarZst Format = "tar.zst"
	TarGz  Format = "tar.gz"
)

var formatSuffixes = []struct {
	suffix string
	format Format
}{
	{".tar.zst", TarZst},
	{".tzst", TarZst},
	{".tar.gz", TarGz},
	{".tgz", TarGz},
}

func (f Format) String() string {
	switch f {
	case TarZst, TarGz:
		return string(f)
	default:
		return fmt.Sprintf("unknown_format(%s)", string(f))
	}
}

// ParseFormat derives the format from an archive file name.
func ParseFormat(path string) (Format, error) {
	lower := strings.ToLower(path)
	for _, s := range formatSuffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, nil
		}
	}
	return "", fmt.Errorf("unknown archive extension for %q: use .tar.zst, .tzst, .tar.gz or .tgz", path)
}

// Level is the speed/size trade-off of the compressor.
type Level string

const (
	Default Level = "default"
	Fastest Level = "fastest"
	Better  Level = "better"
	Best    Level = "best"
)

func (l Level) String() string {
	switch l {
	case Fastest, Better, Best:
		return string(l)
	default:
		return string(Default)
	}
}

// ParseLevel parses a level name. The empty string is Default.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(s)) {
	case "", Default:
		return Default, nil
	case Fastest:
		return Fastest, nil
	case Better:
		return Better, nil
	case Best:
		return Best, nil
	}
	return "", fmt.Errorf("invalid compression level %q: must be default, fastest, better or best", s)
}
