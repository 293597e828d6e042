package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Status is the per-file outcome of a run.
type Status int

const (
	StatusNew       Status = iota + 1 // absent from the baseline, staged
	StatusChanged                     // fingerprints differ, staged
	StatusUnchanged                   // fingerprints match, skipped
	StatusFailed                      // an error stopped this file (keep-going only)
)

var statusNames = [...]string{
	StatusNew:       "new",
	StatusChanged:   "changed",
	StatusUnchanged: "unchanged",
	StatusFailed:    "failed",
}

func (s Status) String() string {
	if s > 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// MarshalText renders the status name in JSON reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Staged reports whether files with this status belong in the output tree.
func (s Status) Staged() bool {
	return s == StatusNew || s == StatusChanged
}

// FileResult is the outcome for one regular file of the modified tree.
type FileResult struct {
	Err      error
	Path     string // relative, slash-separated
	Status   Status
	Size     int64
	Baseline uint64 // fingerprint; zero unless both sides were hashed
	Modified uint64
}

// Counts summarizes a Report.
type Counts struct {
	New       int `json:"new"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Staged is the number of files selected for the output tree.
func (c Counts) Staged() int { return c.New + c.Changed }

// Total is the number of regular files considered.
func (c Counts) Total() int { return c.New + c.Changed + c.Unchanged + c.Failed }

// Report accumulates per-file results. It is filled by the single traversal
// loop and read after Run returns.
type Report struct {
	files  []FileResult
	sorted bool
}

func (r *Report) add(fr FileResult) {
	r.files = append(r.files, fr)
	r.sorted = false
}

// Files returns every result ordered by path.
func (r *Report) Files() []FileResult {
	if !r.sorted {
		slices.SortFunc(r.files, func(a, b FileResult) int {
			return strings.Compare(a.Path, b.Path)
		})
		r.sorted = true
	}
	return r.files
}

// Staged returns the paths selected for the output tree, ordered by path.
func (r *Report) Staged() []string {
	var out []string
	for _, f := range r.Files() {
		if f.Status.Staged() {
			out = append(out, f.Path)
		}
	}
	return out
}

// Failures returns the failed results, ordered by path.
func (r *Report) Failures() []FileResult {
	var out []FileResult
	for _, f := range r.Files() {
		if f.Status == StatusFailed {
			out = append(out, f)
		}
	}
	return out
}

// Counts tallies results by status.
func (r *Report) Counts() Counts {
	var c Counts
	for _, f := range r.files {
		switch f.Status {
		case StatusNew:
			c.New++
		case StatusChanged:
			c.Changed++
		case StatusUnchanged:
			c.Unchanged++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

type jsonFile struct {
	Path     string `json:"path"`
	Status   Status `json:"status"`
	Size     int64  `json:"size"`
	Baseline string `json:"baseline_xxh64,omitempty"`
	Modified string `json:"modified_xxh64,omitempty"`
	Error    string `json:"error,omitempty"`
}

type jsonReport struct {
	Counts Counts     `json:"counts"`
	Files  []jsonFile `json:"files"`
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	files := r.Files()
	out := jsonReport{Counts: r.Counts(), Files: make([]jsonFile, 0, len(files))}
	for _, f := range files {
		jf := jsonFile{Path: f.Path, Status: f.Status, Size: f.Size}
		if f.Baseline != 0 || f.Modified != 0 {
			jf.Baseline = fmt.Sprintf("%016x", f.Baseline)
			jf.Modified = fmt.Sprintf("%016x", f.Modified)
		}
		if f.Err != nil {
			jf.Error = f.Err.Error()
		}
		out.Files = append(out.Files, jf)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
