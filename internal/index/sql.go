package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // sqlite driver, ships with FTS5
)

// currentSchemaVersion is stored in SQLite's user_version pragma.
// Increment it whenever the schema changes (tables, columns, indices, FTS
// configuration). A mismatch on Open triggers a full rebuild from the day
// files; there are no in-place migrations beyond the version-guard bump.
const currentSchemaVersion = 1

// sqliteBusyTimeout is the time SQLite waits when the database is locked.
// After this, operations return SQLITE_BUSY.
const sqliteBusyTimeout = 10000 // milliseconds

// openSQLite opens the index database and applies the configured pragmas.
func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("open sqlite: path is empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	err = applyPragmas(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

// applyPragmas configures the SQLite connection using a single batch statement.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeout))
	if err != nil {
		return fmt.Errorf("apply pragmas: %w", err)
	}

	return nil
}

// storedSchemaVersion reads the current SQLite PRAGMA user_version.
func storedSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	row := db.QueryRowContext(ctx, "PRAGMA user_version")

	var version int

	err := row.Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}

	return version, nil
}

// initSchema drops and recreates the entries table, its indices, the FTS5
// shadow table, and the triggers that keep the shadow in sync. The triggers
// fire inside the same statement/transaction as the primary write, so the
// full-text shadow is never left partially updated.
func initSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		"DROP TRIGGER IF EXISTS entries_ai",
		"DROP TRIGGER IF EXISTS entries_ad",
		"DROP TRIGGER IF EXISTS entries_au",
		"DROP TABLE IF EXISTS entries_fts",
		"DROP TABLE IF EXISTS entries",
		`CREATE TABLE entries (
			entry_id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			date TEXT NOT NULL,
			author TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			outcome TEXT,
			template TEXT,

			context TEXT,
			intent TEXT,
			action TEXT,
			observation TEXT,
			analysis TEXT,
			next_steps TEXT,

			amends TEXT,
			correction TEXT,
			actual TEXT,
			impact TEXT,

			config_used TEXT,
			log_produced TEXT,
			caused_by TEXT,
			causes TEXT,
			refs TEXT,

			tool TEXT,
			duration_ms INTEGER,
			exit_code INTEGER,
			command TEXT,
			error_type TEXT,

			file_path TEXT NOT NULL
		)`,
		"CREATE INDEX idx_entries_date ON entries(date)",
		"CREATE INDEX idx_entries_author ON entries(author)",
		"CREATE INDEX idx_entries_outcome ON entries(outcome)",
		"CREATE INDEX idx_entries_tool ON entries(tool)",
		"CREATE INDEX idx_entries_type ON entries(entry_type)",
		"CREATE INDEX idx_entries_template ON entries(template)",
		`CREATE VIRTUAL TABLE entries_fts USING fts5(
			entry_id,
			context,
			intent,
			action,
			observation,
			analysis,
			next_steps,
			correction,
			actual,
			impact,
			content='entries',
			content_rowid='rowid'
		)`,
		`CREATE TRIGGER entries_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, entry_id, context, intent, action, observation, analysis, next_steps, correction, actual, impact)
			VALUES (new.rowid, new.entry_id, new.context, new.intent, new.action, new.observation, new.analysis, new.next_steps, new.correction, new.actual, new.impact);
		END`,
		`CREATE TRIGGER entries_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, entry_id, context, intent, action, observation, analysis, next_steps, correction, actual, impact)
			VALUES ('delete', old.rowid, old.entry_id, old.context, old.intent, old.action, old.observation, old.analysis, old.next_steps, old.correction, old.actual, old.impact);
		END`,
		`CREATE TRIGGER entries_au AFTER UPDATE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, entry_id, context, intent, action, observation, analysis, next_steps, correction, actual, impact)
			VALUES ('delete', old.rowid, old.entry_id, old.context, old.intent, old.action, old.observation, old.analysis, old.next_steps, old.correction, old.actual, old.impact);
			INSERT INTO entries_fts(rowid, entry_id, context, intent, action, observation, analysis, next_steps, correction, actual, impact)
			VALUES (new.rowid, new.entry_id, new.context, new.intent, new.action, new.observation, new.analysis, new.next_steps, new.correction, new.actual, new.impact);
		END`,
		fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion),
	}

	for i, stmt := range statements {
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}

	return nil
}

// entryColumns is the column list shared by upserts and row scans.
// Keep the order in sync with insertEntry and scanRow.
const entryColumns = `entry_id, timestamp, date, author, entry_type, outcome, template,
	context, intent, action, observation, analysis, next_steps,
	amends, correction, actual, impact,
	config_used, log_produced, caused_by, causes, refs,
	tool, duration_ms, exit_code, command, error_type, file_path`

// nullIfEmpty maps "" to NULL so optional columns stay queryable with
// IS NULL and FTS does not index empty strings.
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableValue(s sql.NullString) string {
	if !s.Valid {
		return ""
	}

	return s.String
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}

	val := v.Int64

	return &val
}
