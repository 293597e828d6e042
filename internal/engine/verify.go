package engine

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/bamsammich/treedelta/internal/event"
	"github.com/bamsammich/treedelta/internal/stats"
)

// ErrVerifyFailed is wrapped by Result.Err when the post-run check found
// staged files that do not match their source.
var ErrVerifyFailed = errors.New("verification failed")

// VerifyConfig controls the post-run verification pass.
type VerifyConfig struct {
	Events   chan<- event.Event
	Stats    stats.Writer
	Modified string
	Output   string
	// Files lists slash-separated relative paths to check. When empty the
	// whole output tree is walked.
	Files []string
}

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	Errors   []VerifyError
	Verified int64
	Failed   int64
}

// VerifyError records a single checksum mismatch or unreadable file.
type VerifyError struct {
	Err        error
	Path       string
	SourceHash string
	OutputHash string
}

// Verify compares the BLAKE3 digest of each staged file against its source
// in the modified tree, one file at a time.
func Verify(ctx context.Context, cfg VerifyConfig) VerifyResult {
	emitEvent(cfg.Events, event.Event{Type: event.VerifyStarted})

	files := cfg.Files
	if len(files) == 0 {
		files = collectVerifyFiles(ctx, cfg.Output)
	}

	var result VerifyResult
	for _, rel := range files {
		if ctx.Err() != nil {
			break
		}

		ve := verifyOne(cfg, rel)
		if ve == nil {
			result.Verified++
			if cfg.Stats != nil {
				cfg.Stats.AddFilesVerified(1)
			}
			emitEvent(cfg.Events, event.Event{Type: event.VerifyOK, Path: rel})
			continue
		}

		result.Failed++
		result.Errors = append(result.Errors, *ve)
		if cfg.Stats != nil {
			cfg.Stats.AddFilesVerifyFailed(1)
		}
		emitEvent(cfg.Events, event.Event{Type: event.VerifyFailed, Path: rel, Error: ve.Err})
	}
	return result
}

func verifyOne(cfg VerifyConfig, rel string) *VerifyError {
	native := filepath.FromSlash(rel)

	srcHash, err := HashFile(filepath.Join(cfg.Modified, native))
	if err != nil {
		// Source missing or unreadable: treat as mismatch.
		return &VerifyError{Path: rel, SourceHash: "error", OutputHash: "n/a",
			Err: &FileError{Stage: StageVerify, Path: rel, Err: err}}
	}

	dstHash, err := HashFile(filepath.Join(cfg.Output, native))
	if err != nil {
		return &VerifyError{Path: rel, SourceHash: srcHash, OutputHash: "error",
			Err: &FileError{Stage: StageVerify, Path: rel, Err: err}}
	}

	if srcHash != dstHash {
		return &VerifyError{Path: rel, SourceHash: srcHash, OutputHash: dstHash,
			Err: &FileError{Stage: StageVerify, Path: rel, Err: errors.New("checksum mismatch")}}
	}
	return nil
}

// collectVerifyFiles walks the output tree and returns the relative paths
// of its regular files.
func collectVerifyFiles(ctx context.Context, root string) []string {
	var files []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil //nolint:nilerr // cannot happen for paths under root
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files
}
