package journal_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

func int64Ptr(v int64) *int64 { return &v }

// Contract: rendering an entry and re-parsing the result yields a record
// equal to the original in all populated fields.
func Test_Markdown_RoundTrips_Through_ParseFile_When_All_Fields_Set(t *testing.T) {
	t.Parallel()

	entry := journal.Entry{
		ID:          "2026-01-05-003",
		Timestamp:   time.Date(2026, 1, 5, 14, 30, 0, 123e6, time.UTC),
		Author:      "alice",
		Kind:        journal.KindEntry,
		Context:     "Build failed on CI",
		Intent:      "Reproduce locally",
		Action:      "Ran make with verbose output",
		Observation: "Linker error in stage two",
		Analysis:    "Stale object files from previous toolchain",
		NextSteps:   "Clean build directory and retry",
		References:  []string{"2026-01-05-001", "configs/build.toml"},
		CausedBy:    []string{"2026-01-05-001", "2026-01-05-002"},
		ConfigUsed:  "configs/build.2026-01-05.100000.toml",
		LogProduced: "logs/build.2026-01-05.143000.failure.log",
		Outcome:     journal.OutcomeFailure,
		Template:    "build",
		Tool:        "bash",
		DurationMS:  int64Ptr(5230),
		ExitCode:    int64Ptr(2),
		Command:     "make -j8 all",
		ErrorType:   "linker",
	}

	parsed, parseErrs := journal.ParseFile("2026-01-05.md", []byte(entry.Markdown()))
	if len(parseErrs) != 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}

	if len(parsed) != 1 {
		t.Fatalf("parsed %d entries, want 1", len(parsed))
	}

	if diff := cmp.Diff(entry, parsed[0]); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

// Contract: amendments round-trip including the reference to the amended
// entry.
func Test_Markdown_RoundTrips_Amendment_With_Amends_Reference(t *testing.T) {
	t.Parallel()

	amendment := journal.Entry{
		ID:         "2026-01-05-004",
		Timestamp:  time.Date(2026, 1, 5, 16, 0, 1, 500e6, time.UTC),
		Author:     "bob",
		Kind:       journal.KindAmendment,
		Amends:     "2026-01-05-003",
		Correction: "Exit code was 2, not 1",
		Actual:     "make exited with status 2",
		Impact:     "Failure classification unchanged",
	}

	parsed, parseErrs := journal.ParseFile("2026-01-05.md", []byte(amendment.Markdown()))
	if len(parseErrs) != 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}

	if len(parsed) != 1 {
		t.Fatalf("parsed %d entries, want 1", len(parsed))
	}

	if diff := cmp.Diff(amendment, parsed[0]); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

// Contract: an entry with only the mandatory fields renders without
// optional metadata lines and still round-trips.
func Test_Markdown_RoundTrips_Minimal_Entry(t *testing.T) {
	t.Parallel()

	entry := journal.Entry{
		ID:        "2026-02-01-001",
		Timestamp: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Author:    "carol",
		Kind:      journal.KindEntry,
		Context:   "Session start",
	}

	parsed, parseErrs := journal.ParseFile("2026-02-01.md", []byte(entry.Markdown()))
	if len(parseErrs) != 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}

	if diff := cmp.Diff([]journal.Entry{entry}, parsed); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

// Contract: sequence numbers are derived from the maximum header already in
// the file, so appends are strictly increasing with no repeats.
func Test_NextSequence_Increments_Past_Max_Header_In_File(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	var content []byte
	for seq := 1; seq <= 3; seq++ {
		next := journal.NextSequence(content, day)
		if next != seq {
			t.Fatalf("next sequence = %d, want %d", next, seq)
		}

		entry := journal.Entry{
			ID:        journal.FormatID(day, next),
			Timestamp: day.Add(time.Duration(seq) * time.Minute),
			Author:    "alice",
			Kind:      journal.KindEntry,
			Context:   "work",
		}
		content = append(content, entry.Markdown()...)
	}
}

// Contract: content without recognizable headers sequences from 1 and is
// not an error.
func Test_NextSequence_Returns_One_For_Content_Without_Headers(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	for _, content := range [][]byte{
		nil,
		[]byte("# Journal - 2026-01-05\n\nfree-form notes, no entries\n"),
		[]byte("## not-an-entry-id\n"),
	} {
		if got := journal.NextSequence(content, day); got != 1 {
			t.Fatalf("NextSequence(%q) = %d, want 1", content, got)
		}
	}
}

// Contract: headers from other days never influence a day's sequencing.
func Test_NextSequence_Ignores_Headers_From_Other_Days(t *testing.T) {
	t.Parallel()

	content := []byte("## 2026-01-04-009\n**Timestamp**: 2026-01-04T10:00:00.000Z\n")
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	if got := journal.NextSequence(content, day); got != 1 {
		t.Fatalf("NextSequence = %d, want 1", got)
	}
}

func Test_FormatID_Zero_Pads_Sequence(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 1, 5, 23, 59, 0, 0, time.UTC)

	if got := journal.FormatID(day, 7); got != "2026-01-05-007" {
		t.Fatalf("FormatID = %q, want 2026-01-05-007", got)
	}

	if got := journal.FormatID(day, 123); got != "2026-01-05-123" {
		t.Fatalf("FormatID = %q, want 2026-01-05-123", got)
	}
}

func Test_ValidID_Rejects_Malformed_IDs(t *testing.T) {
	t.Parallel()

	valid := []string{"2026-01-05-001", "1999-12-31-999"}
	invalid := []string{"", "2026-01-05", "2026-01-05-1", "2026-1-05-001", "notanid", "2026-01-05-001x"}

	for _, id := range valid {
		if !journal.ValidID(id) {
			t.Errorf("ValidID(%q) = false, want true", id)
		}
	}

	for _, id := range invalid {
		if journal.ValidID(id) {
			t.Errorf("ValidID(%q) = true, want false", id)
		}
	}
}
