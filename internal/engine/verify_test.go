package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/treedelta/internal/event"
	"github.com/bamsammich/treedelta/internal/stats"
)

func TestVerify_MatchingFiles(t *testing.T) {
	dir := t.TempDir()
	mod := filepath.Join(dir, "mod")
	out := filepath.Join(dir, "out")

	files := map[string]string{"a.txt": "content of a", "sub/b.txt": "content of b"}
	writeTree(t, mod, files)
	writeTree(t, out, files)

	collector := stats.NewCollector()
	events := make(chan event.Event, 64)

	vr := Verify(context.Background(), VerifyConfig{
		Modified: mod,
		Output:   out,
		Stats:    collector,
		Events:   events,
	})
	close(events)

	assert.Equal(t, int64(2), vr.Verified)
	assert.Equal(t, int64(0), vr.Failed)
	assert.Empty(t, vr.Errors)
	assert.Equal(t, int64(2), collector.Snapshot().FilesVerified)

	var types []event.Type
	for ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []event.Type{event.VerifyStarted, event.VerifyOK, event.VerifyOK}, types)
}

func TestVerify_CorruptedFile(t *testing.T) {
	dir := t.TempDir()
	mod := filepath.Join(dir, "mod")
	out := filepath.Join(dir, "out")

	writeTree(t, mod, map[string]string{"file.txt": "correct"})
	writeTree(t, out, map[string]string{"file.txt": "corrupted"})

	collector := stats.NewCollector()
	vr := Verify(context.Background(), VerifyConfig{Modified: mod, Output: out, Stats: collector})

	assert.Equal(t, int64(0), vr.Verified)
	assert.Equal(t, int64(1), vr.Failed)
	require.Len(t, vr.Errors, 1)
	assert.Equal(t, "file.txt", vr.Errors[0].Path)
	assert.NotEqual(t, vr.Errors[0].SourceHash, vr.Errors[0].OutputHash)
	stage, ok := StageOf(vr.Errors[0].Err)
	require.True(t, ok)
	assert.Equal(t, StageVerify, stage)
	assert.Equal(t, int64(1), collector.Snapshot().FilesVerifyFailed)
}

func TestVerify_MissingSource(t *testing.T) {
	dir := t.TempDir()
	mod := filepath.Join(dir, "mod")
	out := filepath.Join(dir, "out")
	writeTree(t, mod, nil)
	writeTree(t, out, map[string]string{"orphan.txt": "x"})

	vr := Verify(context.Background(), VerifyConfig{Modified: mod, Output: out})
	assert.Equal(t, int64(1), vr.Failed)
	require.Len(t, vr.Errors, 1)
	assert.Equal(t, "error", vr.Errors[0].SourceHash)
	assert.ErrorIs(t, vr.Errors[0].Err, os.ErrNotExist)
}

func TestVerify_OnlyListedFiles(t *testing.T) {
	dir := t.TempDir()
	mod := filepath.Join(dir, "mod")
	out := filepath.Join(dir, "out")
	writeTree(t, mod, map[string]string{"staged.txt": "s"})
	writeTree(t, out, map[string]string{"staged.txt": "s", "left-over.txt": "from an earlier run"})

	vr := Verify(context.Background(), VerifyConfig{
		Modified: mod,
		Output:   out,
		Files:    []string{"staged.txt"},
	})
	assert.Equal(t, int64(1), vr.Verified)
	assert.Zero(t, vr.Failed)
}

func TestVerify_Canceled(t *testing.T) {
	dir := t.TempDir()
	mod := filepath.Join(dir, "mod")
	out := filepath.Join(dir, "out")
	writeTree(t, mod, map[string]string{"a": "a"})
	writeTree(t, out, map[string]string{"a": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	vr := Verify(ctx, VerifyConfig{Modified: mod, Output: out, Files: []string{"a"}})
	assert.Zero(t, vr.Verified)
	assert.Zero(t, vr.Failed)
}
