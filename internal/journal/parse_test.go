package journal_test

import (
	"strings"
	"testing"
	"time"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// Contract: metadata lines may appear in any order after the heading; the
// parser never depends on render order.
func Test_ParseFile_Accepts_Metadata_In_Any_Order(t *testing.T) {
	t.Parallel()

	content := strings.Join([]string{
		"# Journal - 2026-01-05",
		"",
		"## 2026-01-05-001",
		"**Author**: alice",
		"**Outcome**: success",
		"**Type**: entry",
		"**Timestamp**: 2026-01-05T10:00:00.000Z",
		"",
		"### Context",
		"Out of order metadata",
		"",
		"---",
		"",
	}, "\n")

	entries, parseErrs := journal.ParseFile("2026-01-05.md", []byte(content))
	if len(parseErrs) != 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}

	if len(entries) != 1 {
		t.Fatalf("parsed %d entries, want 1", len(entries))
	}

	entry := entries[0]
	if entry.Author != "alice" || entry.Outcome != "success" || entry.Context != "Out of order metadata" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

// Contract: a malformed block yields a ParseError and is skipped; valid
// blocks in the same file still parse.
func Test_ParseFile_Skips_Malformed_Block_And_Keeps_Valid_Ones(t *testing.T) {
	t.Parallel()

	good := journal.Entry{
		ID:        "2026-01-05-002",
		Timestamp: time.Date(2026, 1, 5, 11, 0, 0, 0, time.UTC),
		Author:    "bob",
		Kind:      journal.KindEntry,
		Context:   "Still parseable",
	}

	bad := strings.Join([]string{
		"## 2026-01-05-001",
		"**Timestamp**: not-a-timestamp",
		"**Author**: alice",
		"**Type**: entry",
		"",
		"---",
		"",
	}, "\n")

	entries, parseErrs := journal.ParseFile("2026-01-05.md", []byte(bad+good.Markdown()))

	if len(entries) != 1 || entries[0].ID != good.ID {
		t.Fatalf("entries = %+v, want only %s", entries, good.ID)
	}

	if len(parseErrs) != 1 {
		t.Fatalf("parse errors = %v, want exactly one", parseErrs)
	}

	perr := parseErrs[0]
	if perr.ID != "2026-01-05-001" || perr.Path != "2026-01-05.md" {
		t.Fatalf("parse error context = %+v", perr)
	}
}

// Contract: blocks missing mandatory metadata are rejected per-block.
func Test_ParseFile_Rejects_Blocks_Missing_Mandatory_Fields(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing timestamp": "## 2026-01-05-001\n**Author**: a\n**Type**: entry\n",
		"missing author":    "## 2026-01-05-001\n**Timestamp**: 2026-01-05T10:00:00.000Z\n**Type**: entry\n",
		"missing type":      "## 2026-01-05-001\n**Timestamp**: 2026-01-05T10:00:00.000Z\n**Author**: a\n",
		"unknown type":      "## 2026-01-05-001\n**Timestamp**: 2026-01-05T10:00:00.000Z\n**Author**: a\n**Type**: edit\n",
	}

	for name, content := range cases {
		entries, parseErrs := journal.ParseFile("2026-01-05.md", []byte(content))
		if len(entries) != 0 || len(parseErrs) != 1 {
			t.Errorf("%s: entries=%d errs=%d, want 0/1", name, len(entries), len(parseErrs))
		}
	}
}

// Contract: unknown section headings are tolerated and ignored; known
// sections after them still parse.
func Test_ParseFile_Ignores_Unknown_Sections(t *testing.T) {
	t.Parallel()

	content := strings.Join([]string{
		"## 2026-01-05-001",
		"**Timestamp**: 2026-01-05T10:00:00.000Z",
		"**Author**: alice",
		"**Type**: entry",
		"",
		"### Scratchpad",
		"free-form notes the grammar does not know",
		"",
		"### Intent",
		"Keep parsing after unknown sections",
		"",
		"---",
		"",
	}, "\n")

	entries, parseErrs := journal.ParseFile("2026-01-05.md", []byte(content))
	if len(parseErrs) != 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}

	if len(entries) != 1 || entries[0].Intent != "Keep parsing after unknown sections" {
		t.Fatalf("entries = %+v", entries)
	}
}

// Contract: multi-line section bodies are preserved verbatim apart from
// surrounding blank lines.
func Test_ParseFile_Preserves_MultiLine_Section_Bodies(t *testing.T) {
	t.Parallel()

	body := "line one\n\nline three after a blank"
	entry := journal.Entry{
		ID:        "2026-01-05-001",
		Timestamp: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		Author:    "alice",
		Kind:      journal.KindEntry,
		Analysis:  body,
	}

	entries, parseErrs := journal.ParseFile("2026-01-05.md", []byte(entry.Markdown()))
	if len(parseErrs) != 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}

	if entries[0].Analysis != body {
		t.Fatalf("analysis = %q, want %q", entries[0].Analysis, body)
	}
}
