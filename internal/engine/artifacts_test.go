package engine_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/agent-journal/internal/engine"
	"github.com/calvinalkan/agent-journal/internal/journal"
)

func writeConfig(t *testing.T, root, name, content string) string {
	t.Helper()

	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return name
}

// Contract: an archive is a timestamped copy recorded in INDEX.md; archiving
// identical bytes for the same logical file is rejected whatever the reason.
func Test_ArchiveConfig_Copies_And_Rejects_Duplicates(t *testing.T) {
	t.Parallel()

	e, root := newTestEngine(t, nil)
	ctx := context.Background()

	writeConfig(t, root, "build.yaml", "opt: 1\n")

	record, err := e.ArchiveConfig(ctx, "build.yaml", "before tuning", engine.ArchiveOptions{
		Stage:     "pre-build",
		Timestamp: at("2026-03-01", 9),
	})
	require.NoError(t, err)
	require.Equal(t, "build.yaml", record.OriginalPath)
	require.Equal(t, "configs/build.yaml.2026-03-01.090000.pre-build", record.ArchivePath)
	require.Len(t, record.ContentHash, 64)

	archived, err := os.ReadFile(filepath.Join(root, record.ArchivePath))
	require.NoError(t, err)
	require.Equal(t, "opt: 1\n", string(archived))

	// Original stays in place; archiving copies.
	_, err = os.Stat(filepath.Join(root, "build.yaml"))
	require.NoError(t, err)

	idx, err := os.ReadFile(filepath.Join(root, "configs", "INDEX.md"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(idx), "# Configuration Archive Index\n"))
	require.Contains(t, string(idx), record.ArchivePath)

	_, err = e.ArchiveConfig(ctx, "build.yaml", "different reason this time", engine.ArchiveOptions{
		Timestamp: at("2026-03-01", 12),
	})
	require.ErrorIs(t, err, engine.ErrDuplicateContent)

	// Changed content archives fine again.
	writeConfig(t, root, "build.yaml", "opt: 2\n")

	_, err = e.ArchiveConfig(ctx, "build.yaml", "after tuning", engine.ArchiveOptions{
		Timestamp: at("2026-03-01", 13),
	})
	require.NoError(t, err)
}

func Test_ArchiveConfig_Missing_Source(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, nil)

	_, err := e.ArchiveConfig(context.Background(), "nope.yaml", "why not", engine.ArchiveOptions{})
	require.ErrorIs(t, err, engine.ErrResourceNotFound)
}

// Contract: activation replaces the live config with archived content after
// archiving the previous live state under a ".superseded" marker.
func Test_ActivateConfig_Restores_And_Marks_Superseded(t *testing.T) {
	t.Parallel()

	e, root := newTestEngine(t, nil)
	ctx := context.Background()

	writeConfig(t, root, "build.yaml", "opt: 1\n")

	archive, err := e.ArchiveConfig(ctx, "build.yaml", "known good", engine.ArchiveOptions{
		Timestamp: at("2026-03-01", 9),
	})
	require.NoError(t, err)

	writeConfig(t, root, "build.yaml", "opt: broken\n")

	activation, err := e.ActivateConfig(ctx, archive.ArchivePath, "build.yaml", engine.ActivateOptions{
		JournalEntry: "2026-03-01-004",
	})
	require.NoError(t, err)
	require.Equal(t, "build.yaml", activation.TargetPath)

	live, err := os.ReadFile(filepath.Join(root, "build.yaml"))
	require.NoError(t, err)
	require.Equal(t, "opt: 1\n", string(live))

	require.NotNil(t, activation.Superseded)
	require.True(t, strings.HasSuffix(activation.Superseded.ArchivePath, ".superseded"))
	require.Equal(t, "2026-03-01-004", activation.Superseded.JournalEntry)

	superseded, err := os.ReadFile(filepath.Join(root, activation.Superseded.ArchivePath))
	require.NoError(t, err)
	require.Equal(t, "opt: broken\n", string(superseded))

	idx, err := os.ReadFile(filepath.Join(root, "configs", "INDEX.md"))
	require.NoError(t, err)
	require.Contains(t, string(idx), "2026-03-01-004")
}

func Test_ActivateConfig_Without_Existing_Target(t *testing.T) {
	t.Parallel()

	e, root := newTestEngine(t, nil)
	ctx := context.Background()

	writeConfig(t, root, "build.yaml", "opt: 1\n")

	archive, err := e.ArchiveConfig(ctx, "build.yaml", "baseline", engine.ArchiveOptions{
		Timestamp: at("2026-03-01", 9),
	})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "build.yaml")))

	activation, err := e.ActivateConfig(ctx, archive.ArchivePath, "build.yaml", engine.ActivateOptions{})
	require.NoError(t, err)
	require.Nil(t, activation.Superseded)

	live, err := os.ReadFile(filepath.Join(root, "build.yaml"))
	require.NoError(t, err)
	require.Equal(t, "opt: 1\n", string(live))
}

func Test_DiffConfigs_Labels_And_Counts(t *testing.T) {
	t.Parallel()

	e, root := newTestEngine(t, nil)
	ctx := context.Background()

	writeConfig(t, root, "build.yaml", "a: 1\nb: 2\n")

	archive, err := e.ArchiveConfig(ctx, "build.yaml", "baseline", engine.ArchiveOptions{
		Timestamp: at("2026-03-01", 9),
	})
	require.NoError(t, err)

	writeConfig(t, root, "build.yaml", "a: 1\nb: 3\nc: 4\n")

	diff, err := e.DiffConfigs(archive.ArchivePath, "build.yaml")
	require.NoError(t, err)
	require.False(t, diff.Identical)
	require.Equal(t, 2, diff.Additions)
	require.Equal(t, 1, diff.Deletions)
	require.Contains(t, diff.Unified, "--- "+archive.ArchivePath)
	require.Contains(t, diff.Unified, "+++ current: build.yaml")

	// A "current:" prefix resolves to the live file.
	prefixed, err := e.DiffConfigs(archive.ArchivePath, "current:build.yaml")
	require.NoError(t, err)
	require.Equal(t, "build.yaml", prefixed.PathB)
	require.Equal(t, diff.Unified, prefixed.Unified)

	same, err := e.DiffConfigs(archive.ArchivePath, archive.ArchivePath)
	require.NoError(t, err)
	require.True(t, same.Identical)
	require.Empty(t, same.Unified)

	_, err = e.DiffConfigs(archive.ArchivePath, "missing.yaml")
	require.ErrorIs(t, err, engine.ErrResourceNotFound)
}

// Contract: preserving moves the log; it exists only under logs/ afterwards,
// and same-second preservations get numeric suffixes.
func Test_PreserveLog_Moves_With_Collision_Suffix(t *testing.T) {
	t.Parallel()

	e, root := newTestEngine(t, nil)
	ctx := context.Background()

	writeConfig(t, root, "out1.log", "first\n")
	writeConfig(t, root, "out2.log", "second\n")

	first, err := e.PreserveLog(ctx, "out1.log", journal.LogFailure, engine.PreserveOptions{
		Category:  "build",
		Timestamp: at("2026-03-01", 9),
	})
	require.NoError(t, err)
	require.Equal(t, "logs/build.2026-03-01.090000.failure.log", first.PreservedPath)

	_, err = os.Stat(filepath.Join(root, "out1.log"))
	require.ErrorIs(t, err, os.ErrNotExist)

	preserved, err := os.ReadFile(filepath.Join(root, first.PreservedPath))
	require.NoError(t, err)
	require.Equal(t, "first\n", string(preserved))

	second, err := e.PreserveLog(ctx, "out2.log", journal.LogFailure, engine.PreserveOptions{
		Category:  "build",
		Timestamp: at("2026-03-01", 9),
	})
	require.NoError(t, err)
	require.Equal(t, "logs/build.2026-03-01.090000.failure-2.log", second.PreservedPath)

	idx, err := os.ReadFile(filepath.Join(root, "logs", "INDEX.md"))
	require.NoError(t, err)
	require.Contains(t, string(idx), first.PreservedPath)
	require.Contains(t, string(idx), second.PreservedPath)

	_, err = e.PreserveLog(ctx, "gone.log", journal.LogSuccess, engine.PreserveOptions{})
	require.ErrorIs(t, err, engine.ErrResourceNotFound)
}

type extraHooks struct {
	engine.NopHooks
}

func (extraHooks) CaptureExtra() (map[string]string, error) {
	return map[string]string{"git_sha": "abc123"}, nil
}

// Contract: a snapshot captures configs, environment, versions, and hook
// data into one JSON document; failing version commands degrade to ERROR
// values instead of failing the snapshot.
func Test_Snapshot_Captures_State(t *testing.T) {
	t.Parallel()

	e, root := newTestEngine(t, func(o *engine.Options) {
		o.ConfigPatterns = []string{"*.yaml"}
		o.VersionCommands = []engine.VersionCommand{
			{Name: "echo", Command: "echo tool version 1.2.3", ParseRegex: `version (\S+)`},
			{Name: "broken", Command: "exit 3"},
		}
		o.Hooks = extraHooks{}
	})
	ctx := context.Background()

	writeConfig(t, root, "build.yaml", "opt: 1\n")

	snap, err := e.Snapshot(ctx, "before upgrade", engine.SnapshotOptions{
		CustomData: map[string]any{"attempt": 2},
		Timestamp:  at("2026-03-01", 9),
	})
	require.NoError(t, err)
	require.Equal(t, "snapshots/2026-03-01.090000.before-upgrade.json", snap.SnapshotPath)
	require.Equal(t, "opt: 1\n", snap.Configs["build.yaml"])
	require.Equal(t, "1.2.3", snap.Versions["echo"])
	require.True(t, strings.HasPrefix(snap.Versions["broken"], "ERROR:"))
	require.Equal(t, "abc123", snap.CustomData["git_sha"])
	require.NotEmpty(t, snap.Environment)

	raw, err := os.ReadFile(filepath.Join(root, snap.SnapshotPath))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, "before upgrade", doc["name"])
	require.Equal(t, "2026-03-01T09:00:00.000Z", doc["timestamp"])

	idx, err := os.ReadFile(filepath.Join(root, "snapshots", "INDEX.md"))
	require.NoError(t, err)
	require.Contains(t, string(idx), snap.SnapshotPath)
}

// Contract: a directory INDEX.md can be regenerated from file names alone;
// dry run returns the content without writing it.
func Test_RebuildDirIndex_Regenerates_From_File_Names(t *testing.T) {
	t.Parallel()

	e, root := newTestEngine(t, nil)
	ctx := context.Background()

	writeConfig(t, root, "build.yaml", "opt: 1\n")

	archive, err := e.ArchiveConfig(ctx, "build.yaml", "baseline", engine.ArchiveOptions{
		Stage:     "pre-build",
		Timestamp: at("2026-03-01", 9),
	})
	require.NoError(t, err)

	indexPath := filepath.Join(root, "configs", "INDEX.md")
	require.NoError(t, os.Remove(indexPath))

	content, err := e.RebuildDirIndex(ctx, "configs", true)
	require.NoError(t, err)
	require.Contains(t, content, archive.ArchivePath)
	require.Contains(t, content, "pre-build")

	_, err = os.Stat(indexPath)
	require.ErrorIs(t, err, os.ErrNotExist)

	written, err := e.RebuildDirIndex(ctx, "configs", false)
	require.NoError(t, err)

	onDisk, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	require.Equal(t, written, string(onDisk))

	_, err = e.RebuildDirIndex(ctx, "attic", false)
	require.Error(t, err)
}
