// Package agentjournal is an append-only work journal for autonomous agents:
// markdown day files as the permanent record, a rebuildable SQLite index for
// queries, plus config archiving, log preservation, and state snapshots.
//
// The markdown log is the single source of truth. Every index row, INDEX.md
// line, and query result can be reconstructed from the day files; losing
// derived state is an inconvenience, never data loss.
package agentjournal

import (
	"github.com/calvinalkan/agent-journal/internal/engine"
	"github.com/calvinalkan/agent-journal/internal/fs"
	"github.com/calvinalkan/agent-journal/internal/index"
	"github.com/calvinalkan/agent-journal/internal/journal"
)

// Core types.
type (
	Options        = engine.Options
	Engine         = engine.Engine
	Hooks          = engine.Hooks
	NopHooks       = engine.NopHooks
	VersionCommand = engine.VersionCommand

	Entry     = journal.Entry
	Kind      = journal.Kind
	Template  = journal.Template
	Templates = journal.Templates

	AppendInput     = engine.AppendInput
	AmendInput      = engine.AmendInput
	ReadOptions     = engine.ReadOptions
	SearchHit       = engine.SearchHit
	ArchiveOptions  = engine.ArchiveOptions
	ActivateOptions = engine.ActivateOptions
	Activation      = engine.Activation
	Diff            = engine.Diff
	PreserveOptions = engine.PreserveOptions
	SnapshotOptions = engine.SnapshotOptions
	TimelineOptions = engine.TimelineOptions
	Event           = engine.Event
	EventType       = engine.EventType
	Direction       = engine.Direction
	Graph           = engine.Graph
	Edge            = engine.Edge
	HandoffOptions  = engine.HandoffOptions
	Handoff         = engine.Handoff

	ConfigArchive   = journal.ConfigArchive
	LogPreservation = journal.LogPreservation
	LogOutcome      = journal.LogOutcome
	Snapshot        = journal.Snapshot

	QueryOptions     = index.QueryOptions
	Row              = index.Row
	AggregateOptions = index.AggregateOptions
	AggregateResult  = index.AggregateResult
	Stats            = index.Stats
	RebuildStats     = index.RebuildStats
)

// Entry kinds.
const (
	KindEntry     = journal.KindEntry
	KindAmendment = journal.KindAmendment
)

// Preserved log outcomes.
const (
	LogSuccess     = journal.LogSuccess
	LogFailure     = journal.LogFailure
	LogInterrupted = journal.LogInterrupted
	LogUnknown     = journal.LogUnknown
)

// Trace directions.
const (
	Backward = engine.Backward
	Forward  = engine.Forward
	Both     = engine.Both
)

// Sentinel errors. Discriminate with errors.Is.
var (
	ErrInvalidReference     = engine.ErrInvalidReference
	ErrDuplicateContent     = engine.ErrDuplicateContent
	ErrAppendOnly           = engine.ErrAppendOnly
	ErrTemplateRequired     = engine.ErrTemplateRequired
	ErrTemplateNotFound     = engine.ErrTemplateNotFound
	ErrResourceNotFound     = engine.ErrResourceNotFound
	ErrMissingTemplateField = journal.ErrMissingTemplateField
	ErrLockTimeout          = fs.ErrLockTimeout
)

// New opens a journal engine rooted at opts.Root, creating the directory
// layout on first use.
func New(opts Options) (*Engine, error) {
	return engine.New(opts)
}

// DefaultTemplates returns the built-in entry templates.
func DefaultTemplates() *Templates {
	return journal.DefaultTemplates()
}

// LoadTemplates reads a HuJSON template catalog and merges it over the
// defaults.
func LoadTemplates(path string) (*Templates, error) {
	return journal.LoadTemplates(path)
}

// NewTemplates builds a template registry from the given templates.
func NewTemplates(templates ...*Template) *Templates {
	return journal.NewTemplates(templates...)
}
