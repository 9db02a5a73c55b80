package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// Archive, preserved-log, and snapshot file names encode enough metadata to
// regenerate their INDEX.md from scratch. Fields that only ever lived in the
// index (an archive's reason, its journal entry link) cannot be recovered
// and are rebuilt as "-".
var (
	configNamePattern   = regexp.MustCompile(`^(.+)\.(\d{4}-\d{2}-\d{2}\.\d{6})(?:\.([A-Za-z0-9_-]+))?(\.superseded)?$`)
	logNamePattern      = regexp.MustCompile(`^(?:([A-Za-z0-9_-]+)\.)?(\d{4}-\d{2}-\d{2}\.\d{6})\.([a-z]+)(?:-\d+)?\.log$`)
	snapshotNamePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}\.\d{6})\.(.+)\.json$`)
)

const artifactTimestampLayout = "2006-01-02.150405"

// RebuildDirIndex regenerates the INDEX.md of the configs, logs, or
// snapshots directory from the files actually present. dir must be one of
// the configured subdirectory names. With dryRun the regenerated content is
// returned without being written.
func (e *Engine) RebuildDirIndex(ctx context.Context, dir string, dryRun bool) (string, error) {
	var (
		path   string
		header string
		line   func(name string) (string, bool)
	)

	switch dir {
	case e.opts.ConfigsDir:
		path = e.configsDir()
		header = journal.ConfigIndexHeader
		line = func(name string) (string, bool) { return e.configIndexLine(name) }
	case e.opts.LogsDir:
		path = e.logsDir()
		header = journal.LogIndexHeader
		line = func(name string) (string, bool) { return e.logIndexLine(name) }
	case e.opts.SnapshotsDir:
		path = e.snapshotsDir()
		header = journal.SnapshotIndexHeader
		line = func(name string) (string, bool) { return e.snapshotIndexLine(name) }
	default:
		return "", fmt.Errorf("rebuild dir index: unknown directory %q", dir)
	}

	dirEntries, err := e.fs.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("rebuild dir index: %w", err)
	}

	var names []string

	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || name == "INDEX.md" ||
			strings.Contains(name, ".lock") || strings.Contains(name, ".tmp") {
			continue
		}

		names = append(names, name)
	}

	sort.Strings(names)

	var b strings.Builder

	b.WriteString(header)

	for _, name := range names {
		row, ok := line(name)
		if !ok {
			e.warn("rebuild dir index: unrecognized file name "+name, nil)

			continue
		}

		b.WriteString(row + "\n")
	}

	content := b.String()

	if dryRun {
		return content, nil
	}

	indexPath := filepath.Join(path, "INDEX.md")

	err = e.withLockedFile(indexPath, func() error {
		return e.fs.WriteFileAtomic(indexPath, []byte(content), filePerm)
	})
	if err != nil {
		return "", fmt.Errorf("rebuild dir index: %w", err)
	}

	return content, nil
}

func (e *Engine) configIndexLine(name string) (string, bool) {
	match := configNamePattern.FindStringSubmatch(name)
	if match == nil {
		return "", false
	}

	ts, err := time.Parse(artifactTimestampLayout, match[2])
	if err != nil {
		return "", false
	}

	record := journal.ConfigArchive{
		OriginalPath: match[1],
		ArchivePath:  e.opts.ConfigsDir + "/" + name,
		Timestamp:    ts.UTC(),
		Reason:       "-",
		Stage:        match[3],
	}

	return record.IndexLine(), true
}

func (e *Engine) logIndexLine(name string) (string, bool) {
	match := logNamePattern.FindStringSubmatch(name)
	if match == nil {
		return "", false
	}

	ts, err := time.Parse(artifactTimestampLayout, match[2])
	if err != nil {
		return "", false
	}

	record := journal.LogPreservation{
		PreservedPath: e.opts.LogsDir + "/" + name,
		Timestamp:     ts.UTC(),
		Category:      match[1],
		Outcome:       journal.ParseLogOutcome(match[3]),
	}

	return record.IndexLine(), true
}

func (e *Engine) snapshotIndexLine(name string) (string, bool) {
	match := snapshotNamePattern.FindStringSubmatch(name)
	if match == nil {
		return "", false
	}

	ts, err := time.Parse(artifactTimestampLayout, match[1])
	if err != nil {
		return "", false
	}

	record := journal.Snapshot{
		Name:         match[2],
		Timestamp:    ts.UTC(),
		SnapshotPath: e.opts.SnapshotsDir + "/" + name,
	}

	// The contents column comes from the document itself when it still
	// parses; a corrupt snapshot file gets an empty column, not an error.
	content, err := e.fs.ReadFile(filepath.Join(e.snapshotsDir(), name))
	if err == nil {
		var parsed journal.Snapshot
		if json.Unmarshal(content, &parsed) == nil {
			parsed.Name = record.Name
			parsed.Timestamp = record.Timestamp
			parsed.SnapshotPath = record.SnapshotPath

			return parsed.IndexLine(), true
		}
	}

	return record.IndexLine(), true
}
