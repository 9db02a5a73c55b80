package engine

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// EventType classifies timeline events.
type EventType string

const (
	EventEntry     EventType = "entry"
	EventAmendment EventType = "amendment"
	EventConfig    EventType = "config"
	EventLog       EventType = "log"
	EventSnapshot  EventType = "snapshot"
)

// Event is one item on the unified timeline.
type Event struct {
	Time time.Time
	Type EventType

	// ID is the entry ID for journal events, empty otherwise.
	ID string

	// Path is the file behind the event, root-relative.
	Path string

	// Summary is a one-line description.
	Summary string
}

// TimelineOptions filters the timeline. Zero values mean "no constraint".
type TimelineOptions struct {
	DateFrom string // YYYY-MM-DD
	DateTo   string
	Types    []EventType
	Limit    int
}

// artifactTimestampPattern matches the timestamp embedded in archive,
// preserved-log, and snapshot file names.
var artifactTimestampPattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}\.\d{6})`)

// Timeline merges journal entries with config archives, preserved logs, and
// snapshots into one chronological view, oldest first. Artifact times come
// from the timestamps embedded in their file names; files without one are
// left out.
func (e *Engine) Timeline(ctx context.Context, opts TimelineOptions) ([]Event, error) {
	var events []Event

	entries, err := e.loadEntries(ctx, opts.DateFrom, opts.DateTo)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		entry := &entries[i]

		eventType := EventEntry
		if entry.Kind == journal.KindAmendment {
			eventType = EventAmendment
		}

		events = append(events, Event{
			Time:    entry.Timestamp,
			Type:    eventType,
			ID:      entry.ID,
			Path:    e.rel(e.dayFilePath(entry.Timestamp)),
			Summary: entrySummary(entry),
		})
	}

	for _, source := range []struct {
		dir       string
		eventType EventType
	}{
		{e.configsDir(), EventConfig},
		{e.logsDir(), EventLog},
		{e.snapshotsDir(), EventSnapshot},
	} {
		artifactEvents, err := e.artifactEvents(source.dir, source.eventType, opts)
		if err != nil {
			return nil, err
		}

		events = append(events, artifactEvents...)
	}

	events = filterTypes(events, opts.Types)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})

	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[len(events)-opts.Limit:]
	}

	return events, nil
}

func entrySummary(entry *journal.Entry) string {
	text := entry.Intent
	if entry.Kind == journal.KindAmendment {
		text = "amends " + entry.Amends + ": " + entry.Correction
	}

	if text == "" {
		text = entry.Action
	}

	if text == "" {
		text = entry.Context
	}

	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > 120 {
		text = string(runes[:117]) + "..."
	}

	return text
}

// artifactEvents lists the timestamped files in dir as events.
func (e *Engine) artifactEvents(dir string, eventType EventType, opts TimelineOptions) ([]Event, error) {
	dirEntries, err := e.fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var events []Event

	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || name == "INDEX.md" ||
			strings.Contains(name, ".lock") || strings.Contains(name, ".tmp") {
			continue
		}

		match := artifactTimestampPattern.FindString(name)
		if match == "" {
			continue
		}

		ts, err := time.Parse("2006-01-02.150405", match)
		if err != nil {
			continue
		}

		day := ts.Format("2006-01-02")
		if opts.DateFrom != "" && day < opts.DateFrom {
			continue
		}

		if opts.DateTo != "" && day > opts.DateTo {
			continue
		}

		events = append(events, Event{
			Time:    ts.UTC(),
			Type:    eventType,
			Path:    e.rel(dir) + "/" + name,
			Summary: name,
		})
	}

	return events, nil
}

func filterTypes(events []Event, types []EventType) []Event {
	if len(types) == 0 {
		return events
	}

	allowed := make(map[EventType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}

	filtered := events[:0]

	for _, ev := range events {
		if allowed[ev.Type] {
			filtered = append(filtered, ev)
		}
	}

	return filtered
}
