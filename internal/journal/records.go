package journal

import (
	"strings"
	"time"
)

// LogOutcome classifies a preserved log.
type LogOutcome string

const (
	LogSuccess     LogOutcome = "success"
	LogFailure     LogOutcome = "failure"
	LogInterrupted LogOutcome = "interrupted"
	LogUnknown     LogOutcome = "unknown"
)

// ParseLogOutcome maps a string to a [LogOutcome], defaulting to
// [LogUnknown] for empty or unrecognized values.
func ParseLogOutcome(s string) LogOutcome {
	switch LogOutcome(s) {
	case LogSuccess, LogFailure, LogInterrupted:
		return LogOutcome(s)
	default:
		return LogUnknown
	}
}

// ArchiveTimestamp renders the timestamp component embedded in archive,
// preserved-log, and snapshot file names ("2026-01-05.143000").
func ArchiveTimestamp(ts time.Time) string {
	return ts.UTC().Format("2006-01-02.150405")
}

// ConfigArchive records one archived configuration file. No two archives of
// the same logical file may share a content hash; duplicate-content archive
// attempts are rejected, not deduplicated.
type ConfigArchive struct {
	OriginalPath string
	ArchivePath  string // relative to the project root, timestamped, optionally stage-tagged
	Timestamp    time.Time
	Reason       string
	Stage        string // optional build stage tag
	JournalEntry string // optional entry ID this archive belongs to
	ContentHash  string // hex SHA-256 of the archived bytes
}

// ConfigIndexHeader is written at the top of the configs INDEX.md.
const ConfigIndexHeader = `# Configuration Archive Index

| Timestamp | Archive Path | Stage | Reason | Journal Entry |
|-----------|--------------|-------|--------|---------------|
`

// IndexLine renders the archive as a markdown table row for INDEX.md.
func (c *ConfigArchive) IndexLine() string {
	return "| " + strings.Join([]string{
		FormatTimestamp(c.Timestamp),
		c.ArchivePath,
		orDash(c.Stage),
		c.Reason,
		orDash(c.JournalEntry),
	}, " | ") + " |"
}

// LogPreservation records a log file moved into the logs directory.
// Preserved logs are moved, never copied, never deleted.
type LogPreservation struct {
	OriginalPath  string
	PreservedPath string // relative to the project root; name encodes category, timestamp, outcome
	Timestamp     time.Time
	Category      string
	Outcome       LogOutcome
}

// LogIndexHeader is written at the top of the logs INDEX.md.
const LogIndexHeader = `# Log Preservation Index

| Timestamp | Preserved Path | Category | Outcome |
|-----------|----------------|----------|---------|
`

// IndexLine renders the preservation as a markdown table row for INDEX.md.
func (l *LogPreservation) IndexLine() string {
	return "| " + strings.Join([]string{
		FormatTimestamp(l.Timestamp),
		l.PreservedPath,
		orDash(l.Category),
		string(l.Outcome),
	}, " | ") + " |"
}

// Snapshot is a point-in-time state capture, written atomically as a single
// JSON document.
type Snapshot struct {
	Name         string            `json:"name"`
	Timestamp    time.Time         `json:"-"`
	SnapshotPath string            `json:"-"`
	Configs      map[string]string `json:"configs,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
	Versions     map[string]string `json:"versions,omitempty"`
	BuildListing []string          `json:"build_dir_listing,omitempty"`
	CustomData   map[string]any    `json:"custom_data,omitempty"`
}

// SnapshotIndexHeader is written at the top of the snapshots INDEX.md.
const SnapshotIndexHeader = `# Snapshot Index

| Timestamp | Snapshot Path | Name | Contents |
|-----------|---------------|------|----------|
`

// IndexLine renders the snapshot as a markdown table row for INDEX.md.
// The contents column summarizes which capture groups are present.
func (s *Snapshot) IndexLine() string {
	var contents []string

	if len(s.Configs) > 0 {
		contents = append(contents, "configs")
	}

	if len(s.Environment) > 0 {
		contents = append(contents, "env")
	}

	if len(s.Versions) > 0 {
		contents = append(contents, "versions")
	}

	if len(s.BuildListing) > 0 {
		contents = append(contents, "listing")
	}

	if len(s.CustomData) > 0 {
		contents = append(contents, "custom")
	}

	return "| " + strings.Join([]string{
		FormatTimestamp(s.Timestamp),
		s.SnapshotPath,
		s.Name,
		strings.Join(contents, ", "),
	}, " | ") + " |"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
