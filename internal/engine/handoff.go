package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// HandoffOptions scopes a handoff summary.
type HandoffOptions struct {
	// Days is how far back to look. Zero means 7.
	Days int

	// Author narrows the summary to one author's entries.
	Author string

	// Now overrides the reference time. Zero means time.Now.
	Now time.Time
}

// NextStep is one unresolved next-steps item carried into a handoff.
type NextStep struct {
	EntryID string
	Text    string
}

// Handoff summarizes recent journal activity for whoever picks up the work:
// what happened, what failed, and what was left open.
type Handoff struct {
	GeneratedAt time.Time
	DateFrom    string
	DateTo      string
	Author      string

	EntryCount     int
	AmendmentCount int

	// Failures are the failed entries in the window, oldest first.
	Failures []journal.Entry

	// OpenNextSteps collects next-steps sections that no later entry's
	// context or intent picks up verbatim.
	OpenNextSteps []NextStep

	// LastEntry is the newest entry in the window, nil when the window is
	// empty.
	LastEntry *journal.Entry
}

// Handoff builds a summary of the last opts.Days days of journal activity
// from the day files.
func (e *Engine) Handoff(ctx context.Context, opts HandoffOptions) (*Handoff, error) {
	days := opts.Days
	if days <= 0 {
		days = 7
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	now = now.UTC()
	from := now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	to := now.Format("2006-01-02")

	entries, err := e.loadEntries(ctx, from, to)
	if err != nil {
		return nil, err
	}

	h := &Handoff{
		GeneratedAt: now,
		DateFrom:    from,
		DateTo:      to,
		Author:      opts.Author,
	}

	var kept []journal.Entry

	for i := range entries {
		if opts.Author != "" && entries[i].Author != opts.Author {
			continue
		}

		kept = append(kept, entries[i])
	}

	for i := range kept {
		entry := &kept[i]

		if entry.Kind == journal.KindAmendment {
			h.AmendmentCount++
		} else {
			h.EntryCount++
		}

		if entry.Outcome == "failure" {
			h.Failures = append(h.Failures, *entry)
		}

		if entry.NextSteps != "" && !pickedUpLater(kept[i+1:], entry.NextSteps) {
			h.OpenNextSteps = append(h.OpenNextSteps, NextStep{
				EntryID: entry.ID,
				Text:    entry.NextSteps,
			})
		}
	}

	if len(kept) > 0 {
		h.LastEntry = &kept[len(kept)-1]
	}

	return h, nil
}

// pickedUpLater reports whether a later entry's context or intent repeats
// the next-steps text, which is the convention for claiming an open item.
func pickedUpLater(later []journal.Entry, nextSteps string) bool {
	needle := strings.ToLower(strings.TrimSpace(nextSteps))
	if needle == "" {
		return true
	}

	for i := range later {
		if strings.Contains(strings.ToLower(later[i].Context), needle) ||
			strings.Contains(strings.ToLower(later[i].Intent), needle) {
			return true
		}
	}

	return false
}

// Markdown renders the handoff as a briefing document.
func (h *Handoff) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Handoff %s to %s\n\n", h.DateFrom, h.DateTo)

	if h.Author != "" {
		fmt.Fprintf(&b, "**Author**: %s\n\n", h.Author)
	}

	fmt.Fprintf(&b, "%d entries, %d amendments, %d failures.\n\n",
		h.EntryCount, h.AmendmentCount, len(h.Failures))

	if h.LastEntry != nil {
		fmt.Fprintf(&b, "Last activity: %s (%s)\n\n",
			h.LastEntry.ID, journal.FormatTimestamp(h.LastEntry.Timestamp))
	}

	if len(h.Failures) > 0 {
		b.WriteString("## Failures\n\n")

		for i := range h.Failures {
			entry := &h.Failures[i]

			line := entry.Observation
			if line == "" {
				line = entry.Action
			}

			fmt.Fprintf(&b, "- %s: %s\n", entry.ID, firstLine(line))
		}

		b.WriteString("\n")
	}

	if len(h.OpenNextSteps) > 0 {
		b.WriteString("## Open next steps\n\n")

		for _, step := range h.OpenNextSteps {
			fmt.Fprintf(&b, "- %s: %s\n", step.EntryID, firstLine(step.Text))
		}

		b.WriteString("\n")
	}

	return b.String()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")

	return line
}
