package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// ReadOptions selects entries to read from the day files. Zero values mean
// "no constraint"; EntryID wins over the date fields.
type ReadOptions struct {
	EntryID  string
	Date     string // YYYY-MM-DD
	DateFrom string
	DateTo   string
	Limit    int
}

// Read returns entries parsed straight from the day files, oldest first.
// This is the ground-truth read path: it never touches the index, so it
// works even with a missing or stale index. Unparseable blocks are reported
// through Warn and skipped.
func (e *Engine) Read(ctx context.Context, opts ReadOptions) ([]journal.Entry, error) {
	if opts.EntryID != "" {
		if !journal.ValidID(opts.EntryID) {
			return nil, fmt.Errorf("read %s: %w", opts.EntryID, ErrInvalidReference)
		}

		day := journal.DayOf(opts.EntryID)

		entries, err := e.loadEntries(ctx, day, day)
		if err != nil {
			return nil, err
		}

		for i := range entries {
			if entries[i].ID == opts.EntryID {
				return entries[i : i+1], nil
			}
		}

		return nil, fmt.Errorf("read %s: %w", opts.EntryID, ErrInvalidReference)
	}

	from, to := opts.DateFrom, opts.DateTo
	if opts.Date != "" {
		from, to = opts.Date, opts.Date
	}

	entries, err := e.loadEntries(ctx, from, to)
	if err != nil {
		return nil, err
	}

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[len(entries)-opts.Limit:]
	}

	return entries, nil
}

// SearchHit is one full-text match from a log scan.
type SearchHit struct {
	EntryID   string
	Timestamp string
	Author    string

	// Field names the section the match was found in.
	Field string

	// Preview is the matching text with some surrounding context.
	Preview string
}

// searchPreviewLen bounds the preview around a match.
const searchPreviewLen = 200

// Search scans the day files for text, case-insensitively. It reads the log
// directly rather than the index, trading speed for exactness: results
// always reflect what is on disk. Use Query for indexed full-text search.
func (e *Engine) Search(ctx context.Context, text string, limit int) ([]SearchHit, error) {
	if text == "" {
		return nil, nil
	}

	entries, err := e.loadEntries(ctx, "", "")
	if err != nil {
		return nil, err
	}

	// Matching on the original bytes keeps offsets valid for multi-byte
	// text, where a lowercased copy can have different byte positions.
	needle := regexp.MustCompile("(?i)" + regexp.QuoteMeta(text))

	var hits []SearchHit

	for i := range entries {
		entry := &entries[i]

		for _, section := range searchSections(entry) {
			loc := needle.FindStringIndex(section.body)
			if loc == nil {
				continue
			}

			hits = append(hits, SearchHit{
				EntryID:   entry.ID,
				Timestamp: journal.FormatTimestamp(entry.Timestamp),
				Author:    entry.Author,
				Field:     section.name,
				Preview:   preview(section.body, loc[0], loc[1]-loc[0]),
			})

			if limit > 0 && len(hits) >= limit {
				return hits, nil
			}

			break
		}
	}

	return hits, nil
}

type namedSection struct {
	name string
	body string
}

func searchSections(entry *journal.Entry) []namedSection {
	return []namedSection{
		{"context", entry.Context},
		{"intent", entry.Intent},
		{"action", entry.Action},
		{"observation", entry.Observation},
		{"analysis", entry.Analysis},
		{"next_steps", entry.NextSteps},
		{"correction", entry.Correction},
		{"actual", entry.Actual},
		{"impact", entry.Impact},
	}
}

func preview(body string, matchStart, matchLen int) string {
	margin := (searchPreviewLen - matchLen) / 2
	if margin < 0 {
		margin = 0
	}

	start := matchStart - margin
	if start < 0 {
		start = 0
	}

	end := start + searchPreviewLen
	if end > len(body) {
		end = len(body)
	}

	// Never cut through a multi-byte rune.
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}

	for end < len(body) && !utf8.RuneStart(body[end]) {
		end++
	}

	text := strings.TrimSpace(body[start:end])
	if start > 0 {
		text = "..." + text
	}

	if end < len(body) {
		text += "..."
	}

	return text
}

// loadEntries parses every day file whose date falls in [from, to]
// (inclusive; empty bounds are open). Entries come back oldest first.
func (e *Engine) loadEntries(ctx context.Context, from, to string) ([]journal.Entry, error) {
	dirEntries, err := e.fs.ReadDir(e.journalDir())
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}

	var names []string

	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".md") || name == "INDEX.md" {
			continue
		}

		day := strings.TrimSuffix(name, ".md")
		if from != "" && day < from {
			continue
		}

		if to != "" && day > to {
			continue
		}

		names = append(names, name)
	}

	sort.Strings(names)

	var entries []journal.Entry

	for _, name := range names {
		err := ctx.Err()
		if err != nil {
			return nil, err
		}

		path := filepath.Join(e.journalDir(), name)

		content, err := e.fs.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		parsed, parseErrs := journal.ParseFile(path, content)
		for _, pe := range parseErrs {
			e.warn("skipping unparseable block", pe)
		}

		entries = append(entries, parsed...)
	}

	return entries, nil
}
