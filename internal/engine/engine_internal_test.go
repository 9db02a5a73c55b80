package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/agent-journal/internal/fs"
	"github.com/calvinalkan/agent-journal/internal/journal"
)

// recordingFS wraps a real filesystem and records which mutations went
// through the interface.
type recordingFS struct {
	fs.FS

	mu    sync.Mutex
	calls []string
}

func (r *recordingFS) OpenFile(path string, flag int, perm os.FileMode) (fs.File, error) {
	r.note("OpenFile:" + filepath.Base(path))

	return r.FS.OpenFile(path, flag, perm)
}

func (r *recordingFS) Rename(oldpath, newpath string) error {
	r.note("Rename:" + filepath.Base(newpath))

	return r.FS.Rename(oldpath, newpath)
}

func (r *recordingFS) Remove(path string) error {
	r.note("Remove:" + filepath.Base(path))

	return r.FS.Remove(path)
}

func (r *recordingFS) note(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call)
}

func (r *recordingFS) saw(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, call := range r.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}

	return false
}

// Contract: file mutations go through the engine's FS, not the os package
// directly; day-file appends, INDEX.md appends, and preservation moves all
// show up on a wrapped filesystem.
func Test_Mutations_Go_Through_FS(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	e, err := New(Options{Root: root})
	require.NoError(t, err)

	t.Cleanup(func() { _ = e.Close() })

	rec := &recordingFS{FS: e.fs}
	e.fs = rec

	ctx := context.Background()

	_, err = e.Append(ctx, AppendInput{
		Author:    "agent-1",
		Context:   "x",
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, rec.saw("OpenFile:2026-03-01.md"))

	require.NoError(t, os.WriteFile(filepath.Join(root, "out.log"), []byte("boom\n"), 0o600))

	_, err = e.PreserveLog(ctx, "out.log", journal.LogFailure, PreserveOptions{
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, rec.saw("Rename:"))
	require.True(t, rec.saw("OpenFile:INDEX.md"))
}
