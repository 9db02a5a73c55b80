package engine_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/agent-journal/internal/engine"
	"github.com/calvinalkan/agent-journal/internal/journal"
)

// Contract: the timeline merges entries with config, log, and snapshot
// artifacts in chronological order, using the timestamps embedded in
// artifact file names.
func Test_Timeline_Merges_All_Sources_Chronologically(t *testing.T) {
	t.Parallel()

	e, root := newTestEngine(t, nil)
	ctx := context.Background()

	mustAppend(t, e, engine.AppendInput{
		Author:    "agent-1",
		Context:   "morning entry",
		Intent:    "start the build",
		Timestamp: at("2026-03-01", 8),
	})

	writeConfig(t, root, "build.yaml", "opt: 1\n")

	_, err := e.ArchiveConfig(ctx, "build.yaml", "baseline", engine.ArchiveOptions{
		Timestamp: at("2026-03-01", 9),
	})
	require.NoError(t, err)

	writeConfig(t, root, "out.log", "log\n")

	_, err = e.PreserveLog(ctx, "out.log", journal.LogSuccess, engine.PreserveOptions{
		Timestamp: at("2026-03-01", 10),
	})
	require.NoError(t, err)

	_, err = e.Snapshot(ctx, "midday", engine.SnapshotOptions{
		Timestamp: at("2026-03-01", 11),
	})
	require.NoError(t, err)

	mustAppend(t, e, engine.AppendInput{
		Author:    "agent-1",
		Context:   "afternoon entry",
		Timestamp: at("2026-03-01", 12),
	})

	events, err := e.Timeline(ctx, engine.TimelineOptions{})
	require.NoError(t, err)
	require.Len(t, events, 5)

	types := make([]engine.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}

	require.Equal(t, []engine.EventType{
		engine.EventEntry,
		engine.EventConfig,
		engine.EventLog,
		engine.EventSnapshot,
		engine.EventEntry,
	}, types)

	require.Equal(t, "start the build", events[0].Summary)

	// Type filter.
	events, err = e.Timeline(ctx, engine.TimelineOptions{
		Types: []engine.EventType{engine.EventConfig, engine.EventSnapshot},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Limit keeps the newest events.
	events, err = e.Timeline(ctx, engine.TimelineOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, engine.EventEntry, events[1].Type)
	require.Equal(t, "2026-03-01-002", events[1].ID)

	// Date filter excludes everything.
	events, err = e.Timeline(ctx, engine.TimelineOptions{DateFrom: "2026-04-01"})
	require.NoError(t, err)
	require.Empty(t, events)
}

// Contract: summaries of long multi-byte intents are truncated between
// runes, never through one.
func Test_Timeline_Summary_Truncates_On_Rune_Boundaries(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	mustAppend(t, e, engine.AppendInput{
		Author:    "agent-1",
		Context:   "x",
		Intent:    strings.Repeat("ü", 200),
		Timestamp: at("2026-03-01", 9),
	})

	events, err := e.Timeline(ctx, engine.TimelineOptions{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	summary := events[0].Summary
	require.True(t, utf8.ValidString(summary))
	require.True(t, strings.HasSuffix(summary, "..."))
	require.Equal(t, 120, utf8.RuneCountInString(summary))
}
