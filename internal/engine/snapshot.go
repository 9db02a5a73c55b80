package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// versionCommandTimeout bounds each version command run during a snapshot.
const versionCommandTimeout = 30 * time.Second

// SnapshotOptions controls what a snapshot captures beyond the configured
// defaults.
type SnapshotOptions struct {
	// CustomData is stored verbatim in the snapshot document.
	CustomData map[string]any

	// BuildDir, when set, has its file listing captured.
	BuildDir string

	// Timestamp overrides time.Now. Zero means now.
	Timestamp time.Time
}

// Snapshot captures the current project state into a single JSON document in
// the snapshots directory: configured config files, the process environment,
// tool versions, an optional build directory listing, hook-contributed data,
// and caller data.
//
// Failing capture sources degrade instead of aborting: a version command
// that errors is recorded with an ERROR value, a failing CaptureExtra hook
// is reported through Warn and skipped. The snapshot file itself is written
// atomically.
func (e *Engine) Snapshot(ctx context.Context, name string, opts SnapshotOptions) (*journal.Snapshot, error) {
	if name == "" {
		return nil, fmt.Errorf("snapshot: name is required")
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	snap := &journal.Snapshot{
		Name:        name,
		Timestamp:   ts.UTC(),
		Configs:     e.captureConfigs(),
		Environment: captureEnvironment(),
		Versions:    e.captureVersions(ctx),
		CustomData:  opts.CustomData,
	}

	if opts.BuildDir != "" {
		listing, err := e.captureListing(opts.BuildDir)
		if err != nil {
			e.warn("snapshot: build dir listing skipped", err)
		} else {
			snap.BuildListing = listing
		}
	}

	extra, err := e.hooks.CaptureExtra()
	if err != nil {
		e.warn("snapshot: capture hook skipped", err)
	} else if len(extra) > 0 {
		if snap.CustomData == nil {
			snap.CustomData = make(map[string]any, len(extra))
		}

		for k, v := range extra {
			if _, taken := snap.CustomData[k]; !taken {
				snap.CustomData[k] = v
			}
		}
	}

	fileName := journal.ArchiveTimestamp(snap.Timestamp) + "." + sanitizeName(name) + ".json"
	target := filepath.Join(e.snapshotsDir(), fileName)
	snap.SnapshotPath = e.rel(target)

	doc, err := json.MarshalIndent(snapshotDocument(snap), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}

	indexPath := filepath.Join(e.snapshotsDir(), "INDEX.md")

	err = e.withLockedFile(indexPath, func() error {
		err := e.fs.WriteFileAtomic(target, append(doc, '\n'), filePerm)
		if err != nil {
			return fmt.Errorf("write snapshot %s: %w", target, err)
		}

		return e.appendIndexLine(e.snapshotsDir(), journal.SnapshotIndexHeader, snap.IndexLine())
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// snapshotDocument adds the serialized timestamp that the Snapshot struct
// keeps out of its JSON shape.
func snapshotDocument(snap *journal.Snapshot) any {
	return struct {
		Timestamp string `json:"timestamp"`
		*journal.Snapshot
	}{
		Timestamp: journal.FormatTimestamp(snap.Timestamp),
		Snapshot:  snap,
	}
}

// captureConfigs reads every file matching the configured patterns. Files
// that vanish between glob and read are skipped.
func (e *Engine) captureConfigs() map[string]string {
	configs := make(map[string]string)

	for _, pattern := range e.opts.ConfigPatterns {
		matches, err := filepath.Glob(filepath.Join(e.opts.Root, pattern))
		if err != nil {
			e.warn("snapshot: bad config pattern "+pattern, err)

			continue
		}

		for _, match := range matches {
			content, err := e.fs.ReadFile(match)
			if err != nil {
				continue
			}

			configs[e.rel(match)] = string(content)
		}
	}

	if len(configs) == 0 {
		return nil
	}

	return configs
}

func captureEnvironment() map[string]string {
	env := os.Environ()
	result := make(map[string]string, len(env))

	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			result[key] = value
		}
	}

	return result
}

// captureVersions runs the configured version commands. A failing command
// records "ERROR: <message>" under its name rather than failing the
// snapshot.
func (e *Engine) captureVersions(ctx context.Context) map[string]string {
	if len(e.opts.VersionCommands) == 0 {
		return nil
	}

	versions := make(map[string]string, len(e.opts.VersionCommands))

	for _, vc := range e.opts.VersionCommands {
		versions[vc.Name] = runVersionCommand(ctx, vc)
	}

	return versions
}

func runVersionCommand(ctx context.Context, vc VersionCommand) string {
	ctx, cancel := context.WithTimeout(ctx, versionCommandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "sh", "-c", vc.Command).CombinedOutput()
	if err != nil {
		return "ERROR: " + err.Error()
	}

	text := strings.TrimSpace(string(out))
	if vc.ParseRegex == "" {
		return text
	}

	re, err := regexp.Compile(vc.ParseRegex)
	if err != nil {
		return "ERROR: " + err.Error()
	}

	match := re.FindStringSubmatch(text)

	switch {
	case match == nil:
		return text
	case len(match) > 1:
		return match[1]
	default:
		return match[0]
	}
}

func (e *Engine) captureListing(dir string) ([]string, error) {
	dirEntries, err := e.fs.ReadDir(e.abs(dir))
	if err != nil {
		return nil, err
	}

	listing := make([]string, 0, len(dirEntries))

	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() {
			name += "/"
		}

		listing = append(listing, name)
	}

	sort.Strings(listing)

	return listing, nil
}

// sanitizeName keeps snapshot file names shell-friendly.
func sanitizeName(name string) string {
	var b strings.Builder

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	return b.String()
}
