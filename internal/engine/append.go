package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// AppendInput is the caller-facing shape of a new journal entry. ID,
// timestamp, and kind are assigned by the engine.
type AppendInput struct {
	Author string

	Context     string
	Intent      string
	Action      string
	Observation string
	Analysis    string
	NextSteps   string

	// Template names a registered template; TemplateValues fill its
	// placeholders. Rendered sections fill only fields left empty above.
	Template       string
	TemplateValues map[string]string

	References []string
	CausedBy   []string

	ConfigUsed  string
	LogProduced string
	Outcome     string

	Tool       string
	Command    string
	ErrorType  string
	DurationMS *int64
	ExitCode   *int64

	// Timestamp overrides time.Now. Zero means now. The entry's day file is
	// chosen from this timestamp.
	Timestamp time.Time
}

// AmendInput describes a correction to an earlier entry. The original is
// never touched; the amendment is a new entry referencing it.
type AmendInput struct {
	Author string

	// Amends is the entry ID being corrected. It must exist in the log.
	Amends string

	Correction string
	Actual     string
	Impact     string

	References []string
	Timestamp  time.Time
}

// Append validates in, assigns the next ID for the entry's day, and appends
// the rendered entry to the day file. The index is updated under the same
// day-file lock; an index failure is reported through Warn and does not fail
// the append.
func (e *Engine) Append(ctx context.Context, in AppendInput) (*journal.Entry, error) {
	if in.Author == "" {
		return nil, errors.New("append: author is required")
	}

	entry := journal.Entry{
		Author:      in.Author,
		Kind:        journal.KindEntry,
		Context:     in.Context,
		Intent:      in.Intent,
		Action:      in.Action,
		Observation: in.Observation,
		Analysis:    in.Analysis,
		NextSteps:   in.NextSteps,
		References:  in.References,
		CausedBy:    in.CausedBy,
		ConfigUsed:  in.ConfigUsed,
		LogProduced: in.LogProduced,
		Outcome:     in.Outcome,
		Template:    in.Template,
		Tool:        in.Tool,
		Command:     in.Command,
		ErrorType:   in.ErrorType,
		DurationMS:  in.DurationMS,
		ExitCode:    in.ExitCode,
	}

	err := e.applyTemplate(&entry, in.TemplateValues)
	if err != nil {
		return nil, err
	}

	if entry.Context == "" && entry.Intent == "" && entry.Action == "" {
		return nil, errors.New("append: entry needs at least one of context, intent, action")
	}

	err = e.validateReferences(entry.References, entry.CausedBy)
	if err != nil {
		return nil, err
	}

	return e.appendEntry(ctx, &entry, in.Timestamp)
}

// Amend appends an amendment entry for in.Amends. The amended entry's bytes
// are left exactly as they were.
func (e *Engine) Amend(ctx context.Context, in AmendInput) (*journal.Entry, error) {
	if in.Author == "" {
		return nil, errors.New("amend: author is required")
	}

	if in.Correction == "" {
		return nil, errors.New("amend: correction is required")
	}

	exists, err := e.entryExists(in.Amends)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, fmt.Errorf("amend %s: %w", in.Amends, ErrInvalidReference)
	}

	err = e.validateReferences(in.References, nil)
	if err != nil {
		return nil, err
	}

	entry := journal.Entry{
		Author:     in.Author,
		Kind:       journal.KindAmendment,
		Amends:     in.Amends,
		Correction: in.Correction,
		Actual:     in.Actual,
		Impact:     in.Impact,
		References: in.References,
	}

	return e.appendEntry(ctx, &entry, in.Timestamp)
}

// applyTemplate resolves the entry's template and fills empty sections from
// the rendered output.
func (e *Engine) applyTemplate(entry *journal.Entry, values map[string]string) error {
	if entry.Template == "" {
		if e.opts.RequireTemplate {
			return fmt.Errorf("append: %w", ErrTemplateRequired)
		}

		return nil
	}

	tpl := e.templates.Get(entry.Template)
	if tpl == nil {
		return fmt.Errorf("append: template %q: %w", entry.Template, ErrTemplateNotFound)
	}

	fields, err := tpl.Render(values)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}

	fillEmpty(&entry.Context, fields.Context)
	fillEmpty(&entry.Intent, fields.Intent)
	fillEmpty(&entry.Action, fields.Action)
	fillEmpty(&entry.Observation, fields.Observation)
	fillEmpty(&entry.Analysis, fields.Analysis)
	fillEmpty(&entry.NextSteps, fields.NextSteps)
	fillEmpty(&entry.Outcome, tpl.DefaultOutcome)

	return nil
}

func fillEmpty(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

// validateReferences checks that every caused-by value is an existing entry
// ID and every reference is either an existing entry ID or an existing file.
func (e *Engine) validateReferences(references, causedBy []string) error {
	for _, id := range causedBy {
		exists, err := e.entryExists(id)
		if err != nil {
			return err
		}

		if !exists {
			return fmt.Errorf("caused-by %s: %w", id, ErrInvalidReference)
		}
	}

	for _, ref := range references {
		if journal.ValidID(ref) {
			exists, err := e.entryExists(ref)
			if err != nil {
				return err
			}

			if !exists {
				return fmt.Errorf("reference %s: %w", ref, ErrInvalidReference)
			}

			continue
		}

		ok, err := e.fs.Exists(e.abs(ref))
		if err != nil {
			return fmt.Errorf("reference %s: %w", ref, err)
		}

		if !ok {
			return fmt.Errorf("reference %s: %w", ref, ErrInvalidReference)
		}
	}

	return nil
}

// entryExists reports whether id is present in its day file. The check reads
// the file without the lock; writers only ever append, so a present entry
// stays present.
func (e *Engine) entryExists(id string) (bool, error) {
	if !journal.ValidID(id) {
		return false, nil
	}

	day, err := time.Parse("2006-01-02", journal.DayOf(id))
	if err != nil {
		return false, nil
	}

	content, err := e.fs.ReadFile(e.dayFilePath(day))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("read day file for %s: %w", id, err)
	}

	return journal.ContainsEntry(content, id), nil
}

// appendEntry assigns identity under the day-file lock and appends the
// markdown block. The sequence scan and the write happen under the same
// lock; releasing it between the two would allow another writer to claim the
// same ID.
func (e *Engine) appendEntry(ctx context.Context, entry *journal.Entry, at time.Time) (*journal.Entry, error) {
	if at.IsZero() {
		at = time.Now()
	}

	entry.Timestamp = at.UTC()

	path := e.dayFilePath(entry.Timestamp)

	err := e.withLockedFile(path, func() error {
		content, err := e.fs.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, err)
		}

		seq := journal.NextSequence(content, entry.Timestamp)
		entry.ID = journal.FormatID(entry.Timestamp, seq)

		if journal.ContainsEntry(content, entry.ID) {
			return fmt.Errorf("entry %s already recorded: %w", entry.ID, ErrAppendOnly)
		}

		err = e.hooks.BeforeAppend(entry)
		if err != nil {
			return fmt.Errorf("before-append hook: %w", err)
		}

		// Identity is not negotiable, even for hooks.
		entry.ID = journal.FormatID(entry.Timestamp, seq)
		entry.Kind = normalizeKind(entry.Kind)

		block := entry.Markdown()
		if len(content) == 0 {
			block = journal.DayFileHeader(entry.Timestamp) + block
		}

		f, err := e.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}

		_, err = f.Write([]byte(block))
		if err != nil {
			_ = f.Close()

			return fmt.Errorf("append to %s: %w", path, err)
		}

		err = f.Sync()
		if err != nil {
			_ = f.Close()

			return fmt.Errorf("sync %s: %w", path, err)
		}

		err = f.Close()
		if err != nil {
			return fmt.Errorf("close %s: %w", path, err)
		}

		e.hooks.AfterAppend(entry)

		// Indexing stays under the lock so anyone holding it sees the
		// index and the day file agree.
		e.indexEntry(ctx, entry, path)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func normalizeKind(k journal.Kind) journal.Kind {
	if k == journal.KindAmendment {
		return journal.KindAmendment
	}

	return journal.KindEntry
}

// indexEntry upserts the entry into the index, tolerating failure. The log
// write already succeeded; a broken index is repaired by a rebuild, not by
// failing the append.
func (e *Engine) indexEntry(ctx context.Context, entry *journal.Entry, path string) {
	ix, err := e.indexHandle(ctx)
	if err != nil {
		e.warn("index unavailable, entry logged but not indexed: "+entry.ID, err)

		return
	}

	err = ix.Upsert(ctx, entry, path)
	if err != nil {
		e.warn("index update failed, entry logged but not indexed: "+entry.ID, err)
	}
}
