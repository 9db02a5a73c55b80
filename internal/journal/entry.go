// Package journal holds the entity layer of the storage engine: journal
// entries and their markdown wire format, archive/preservation/snapshot
// records, and entry templates.
//
// The markdown day files are the system's ground truth. Everything in this
// package round-trips: rendering an entry with [Entry.Markdown] and parsing
// it back with [ParseFile] yields an equal record in all populated fields.
package journal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates regular entries from amendments.
type Kind string

const (
	// KindEntry is a regular journal entry.
	KindEntry Kind = "entry"

	// KindAmendment is a correction referencing an earlier entry.
	// The original entry is never mutated.
	KindAmendment Kind = "amendment"
)

// Entry outcomes. An empty outcome means "not recorded".
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)

// timestampLayout renders UTC timestamps with millisecond precision.
var timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// dayLayout is the calendar-day component used in file names and entry IDs.
const dayLayout = "2006-01-02"

// Entry is a single journal record. Once appended to a day file its byte
// representation never changes; corrections are new [KindAmendment] entries.
type Entry struct {
	ID        string    // YYYY-MM-DD-NNN, unique, monotonic per day
	Timestamp time.Time // UTC, millisecond precision
	Author    string
	Kind      Kind

	// Free-text sections for regular entries.
	Context     string
	Intent      string
	Action      string
	Observation string
	Analysis    string
	NextSteps   string

	// Amendment fields. Amends holds the ID of the corrected entry.
	Amends     string
	Correction string
	Actual     string
	Impact     string

	// References are entry IDs or file paths, validated at creation time.
	References []string

	// Causality. CausedBy edges are validated at creation time; Causes is
	// only ever populated by parsing (the write path never edits earlier
	// entries to add reverse edges).
	CausedBy []string
	Causes   []string

	ConfigUsed  string // archived config path used for this work
	LogProduced string // preserved log path produced by this work
	Outcome     string // success, failure, partial, or empty
	Template    string // template name, if entry was template-driven

	// Diagnostic fields for tool-call tracking. Pointers distinguish
	// "not recorded" from zero values (exit code 0 is meaningful).
	Tool       string
	DurationMS *int64
	ExitCode   *int64
	Command    string
	ErrorType  string
}

// idPattern matches full entry IDs.
var idPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-\d{3}$`)

// headerPattern matches entry headers inside a day file and captures the
// sequence number. Used for sequencing and reference checks; full parsing is
// done by [ParseFile].
var headerPattern = regexp.MustCompile(`(?m)^## (\d{4}-\d{2}-\d{2})-(\d{3})\s*$`)

// FormatID builds an entry ID from a day and a sequence number.
func FormatID(day time.Time, seq int) string {
	return fmt.Sprintf("%s-%03d", day.UTC().Format(dayLayout), seq)
}

// ValidID reports whether s is a well-formed entry ID.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

// DayOf returns the YYYY-MM-DD component of an entry ID.
// The caller must pass a valid ID.
func DayOf(entryID string) string {
	return entryID[:len(dayLayout)]
}

// DayFileName returns the day-file name for a date ("2026-01-05.md").
func DayFileName(day time.Time) string {
	return day.UTC().Format(dayLayout) + ".md"
}

// DayFileHeader is the top-level header written when a day file is created.
func DayFileHeader(day time.Time) string {
	return "# Journal - " + day.UTC().Format(dayLayout) + "\n\n"
}

// NextSequence returns the sequence number the next entry appended to this
// day file must use: one greater than the maximum sequence already present
// for the given day, or 1 when the content has no recognizable entry
// headers. Content without headers is treated as empty for sequencing, not
// as an error.
//
// Callers must hold the day-file lock: two concurrent callers would
// otherwise compute the same sequence.
func NextSequence(content []byte, day time.Time) int {
	dayStr := day.UTC().Format(dayLayout)
	maxSeq := 0

	for _, m := range headerPattern.FindAllSubmatch(content, -1) {
		if string(m[1]) != dayStr {
			continue
		}

		seq, err := strconv.Atoi(string(m[2]))
		if err != nil {
			continue
		}

		if seq > maxSeq {
			maxSeq = seq
		}
	}

	return maxSeq + 1
}

// ContainsEntry reports whether a day file's content declares the given
// entry ID as a block header.
func ContainsEntry(content []byte, entryID string) bool {
	for _, m := range headerPattern.FindAllSubmatch(content, -1) {
		if string(m[1])+"-"+string(m[2]) == entryID {
			return true
		}
	}

	return false
}

// FormatTimestamp renders a timestamp in the log's wire format (ISO 8601,
// millisecond precision, UTC).
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(timestampLayout)
}

// ParseTimestamp parses a timestamp in the log's wire format.
func ParseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}

	return ts.UTC(), nil
}

// Markdown renders the entry as a complete log block: the level-2 ID
// heading, the metadata lines, the named subsections, an optional
// references list, and the closing separator.
func (e *Entry) Markdown() string {
	var b strings.Builder

	b.WriteString("## " + e.ID + "\n")
	b.WriteString("**Timestamp**: " + FormatTimestamp(e.Timestamp) + "\n")
	b.WriteString("**Author**: " + e.Author + "\n")
	b.WriteString("**Type**: " + string(e.Kind) + "\n")

	if e.Outcome != "" {
		b.WriteString("**Outcome**: " + e.Outcome + "\n")
	}

	if e.Template != "" {
		b.WriteString("**Template**: " + e.Template + "\n")
	}

	if e.ConfigUsed != "" {
		b.WriteString("**Config**: " + e.ConfigUsed + "\n")
	}

	if e.LogProduced != "" {
		b.WriteString("**Log**: " + e.LogProduced + "\n")
	}

	if len(e.CausedBy) > 0 {
		b.WriteString("**Caused-By**: " + strings.Join(e.CausedBy, ", ") + "\n")
	}

	if len(e.Causes) > 0 {
		b.WriteString("**Causes**: " + strings.Join(e.Causes, ", ") + "\n")
	}

	if e.Tool != "" {
		b.WriteString("**Tool**: " + e.Tool + "\n")
	}

	if e.DurationMS != nil {
		b.WriteString(fmt.Sprintf("**Duration**: %dms\n", *e.DurationMS))
	}

	if e.ExitCode != nil {
		b.WriteString(fmt.Sprintf("**Exit-Code**: %d\n", *e.ExitCode))
	}

	if e.Command != "" {
		b.WriteString("**Command**: " + e.Command + "\n")
	}

	if e.ErrorType != "" {
		b.WriteString("**Error-Type**: " + e.ErrorType + "\n")
	}

	b.WriteString("\n")

	if e.Kind == KindAmendment {
		b.WriteString("**Amends**: " + e.Amends + "\n\n")
		b.WriteString("### Correction\n" + e.Correction + "\n\n")
		b.WriteString("### Actual\n" + e.Actual + "\n\n")
		b.WriteString("### Impact\n" + e.Impact + "\n")
	} else {
		writeSection(&b, "Context", e.Context)
		writeSection(&b, "Intent", e.Intent)
		writeSection(&b, "Action", e.Action)
		writeSection(&b, "Observation", e.Observation)
		writeSection(&b, "Analysis", e.Analysis)
		writeSection(&b, "Next Steps", e.NextSteps)
	}

	if len(e.References) > 0 {
		b.WriteString("### References\n")

		for _, ref := range e.References {
			b.WriteString("- " + ref + "\n")
		}

		b.WriteString("\n")
	}

	b.WriteString("---\n\n")

	return b.String()
}

func writeSection(b *strings.Builder, name, body string) {
	if body == "" {
		return
	}

	b.WriteString("### " + name + "\n" + body + "\n\n")
}
