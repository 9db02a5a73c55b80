package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// DBFileName is the name of the SQLite index database inside the journal
// directory.
const DBFileName = ".index.db"

// Index is the queryable secondary view over the append-only day files.
// It is derived state: every row can be reconstructed from the markdown log
// via Rebuild, and a damaged or missing index is never a data-loss event.
type Index struct {
	db  *sql.DB
	dir string
}

// Open opens (or creates) the SQLite index inside journalDir. The schema is
// recreated from scratch when the stored schema version does not match,
// which forces a rebuild by the caller.
func Open(ctx context.Context, journalDir string) (*Index, error) {
	path := filepath.Join(journalDir, DBFileName)

	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}

	version, err := storedSchemaVersion(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	if version != currentSchemaVersion {
		err = initSchema(ctx, db)
		if err != nil {
			_ = db.Close()

			return nil, err
		}
	}

	return &Index{db: db, dir: journalDir}, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Row is the denormalized projection of one entry as stored in the index.
type Row struct {
	Entry    journal.Entry
	Date     string
	FilePath string
}

// Upsert inserts or replaces the index row for e. The replace is an explicit
// delete-then-insert so the FTS delete trigger fires for the old row; a bare
// INSERT OR REPLACE would bypass it and leave a stale shadow row behind.
func (ix *Index) Upsert(ctx context.Context, e *journal.Entry, filePath string) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}

	err = upsertTx(ctx, tx, e, filePath)
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	return nil
}

func upsertTx(ctx context.Context, tx *sql.Tx, e *journal.Entry, filePath string) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE entry_id = ?", e.ID)
	if err != nil {
		return fmt.Errorf("delete stale row %s: %w", e.ID, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?)`,
		e.ID,
		journal.FormatTimestamp(e.Timestamp),
		e.Timestamp.UTC().Format("2006-01-02"),
		e.Author,
		string(e.Kind),
		nullIfEmpty(e.Outcome),
		nullIfEmpty(e.Template),
		nullIfEmpty(e.Context),
		nullIfEmpty(e.Intent),
		nullIfEmpty(e.Action),
		nullIfEmpty(e.Observation),
		nullIfEmpty(e.Analysis),
		nullIfEmpty(e.NextSteps),
		nullIfEmpty(e.Amends),
		nullIfEmpty(e.Correction),
		nullIfEmpty(e.Actual),
		nullIfEmpty(e.Impact),
		nullIfEmpty(e.ConfigUsed),
		nullIfEmpty(e.LogProduced),
		jsonList(e.CausedBy),
		jsonList(e.Causes),
		jsonList(e.References),
		nullIfEmpty(e.Tool),
		nullableInt64(e.DurationMS),
		nullableInt64(e.ExitCode),
		nullIfEmpty(e.Command),
		nullIfEmpty(e.ErrorType),
		filePath,
	)
	if err != nil {
		return fmt.Errorf("insert row %s: %w", e.ID, err)
	}

	return nil
}

// Get returns the indexed row for id, or (nil, nil) when the id is not
// indexed.
func (ix *Index) Get(ctx context.Context, id string) (*Row, error) {
	row := ix.db.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE entry_id = ?", id)

	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}

	return r, nil
}

// scanner is the shared subset of *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*Row, error) {
	var (
		r                                   Row
		timestamp                           string
		kind                                string
		outcome, template                   sql.NullString
		c1, c2, c3, c4, c5, c6              sql.NullString
		amends, correction, actual, impact  sql.NullString
		configUsed, logProduced             sql.NullString
		causedBy, causes, refs              sql.NullString
		tool, command, errorType            sql.NullString
		durationMS, exitCode                sql.NullInt64
	)

	err := s.Scan(
		&r.Entry.ID, &timestamp, &r.Date, &r.Entry.Author, &kind, &outcome, &template,
		&c1, &c2, &c3, &c4, &c5, &c6,
		&amends, &correction, &actual, &impact,
		&configUsed, &logProduced, &causedBy, &causes, &refs,
		&tool, &durationMS, &exitCode, &command, &errorType, &r.FilePath,
	)
	if err != nil {
		return nil, err
	}

	ts, err := journal.ParseTimestamp(timestamp)
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", r.Entry.ID, err)
	}

	r.Entry.Timestamp = ts
	r.Entry.Kind = journal.Kind(kind)
	r.Entry.Outcome = nullableValue(outcome)
	r.Entry.Template = nullableValue(template)
	r.Entry.Context = nullableValue(c1)
	r.Entry.Intent = nullableValue(c2)
	r.Entry.Action = nullableValue(c3)
	r.Entry.Observation = nullableValue(c4)
	r.Entry.Analysis = nullableValue(c5)
	r.Entry.NextSteps = nullableValue(c6)
	r.Entry.Amends = nullableValue(amends)
	r.Entry.Correction = nullableValue(correction)
	r.Entry.Actual = nullableValue(actual)
	r.Entry.Impact = nullableValue(impact)
	r.Entry.ConfigUsed = nullableValue(configUsed)
	r.Entry.LogProduced = nullableValue(logProduced)
	r.Entry.Tool = nullableValue(tool)
	r.Entry.Command = nullableValue(command)
	r.Entry.ErrorType = nullableValue(errorType)
	r.Entry.DurationMS = nullInt64Ptr(durationMS)
	r.Entry.ExitCode = nullInt64Ptr(exitCode)

	r.Entry.CausedBy, err = parseJSONList(causedBy)
	if err != nil {
		return nil, fmt.Errorf("row %s caused_by: %w", r.Entry.ID, err)
	}

	r.Entry.Causes, err = parseJSONList(causes)
	if err != nil {
		return nil, fmt.Errorf("row %s causes: %w", r.Entry.ID, err)
	}

	r.Entry.References, err = parseJSONList(refs)
	if err != nil {
		return nil, fmt.Errorf("row %s refs: %w", r.Entry.ID, err)
	}

	return &r, nil
}

// jsonList stores string slices as JSON arrays. Empty slices become NULL.
func jsonList(values []string) sql.NullString {
	if len(values) == 0 {
		return sql.NullString{}
	}

	data, err := json.Marshal(values)
	if err != nil {
		// []string cannot fail to marshal.
		panic(err)
	}

	return sql.NullString{String: string(data), Valid: true}
}

func parseJSONList(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}

	var values []string

	err := json.Unmarshal([]byte(s.String), &values)
	if err != nil {
		return nil, err
	}

	return values, nil
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: *v, Valid: true}
}
