package index

import (
	"context"
	"fmt"
	"strings"
)

// DefaultQueryLimit caps result sets when the caller does not set a limit.
const DefaultQueryLimit = 100

// filterColumns is the allow-list of columns that structured filters may
// target. A filter naming any other key is dropped silently rather than
// interpolated, so caller input never reaches the SQL text.
var filterColumns = map[string]bool{
	"entry_id":     true,
	"date":         true,
	"author":       true,
	"entry_type":   true,
	"outcome":      true,
	"template":     true,
	"tool":         true,
	"error_type":   true,
	"config_used":  true,
	"log_produced": true,
	"amends":       true,
}

// orderColumns is the allow-list for ORDER BY.
var orderColumns = map[string]bool{
	"timestamp":  true,
	"date":       true,
	"author":     true,
	"entry_type": true,
	"outcome":    true,
	"tool":       true,
	"entry_id":   true,
}

// QueryOptions selects and orders indexed entries. Zero values mean
// "no constraint".
type QueryOptions struct {
	// Filters maps allow-listed column names to exact-match values.
	Filters map[string]any

	// TextSearch is an FTS5 match expression over the narrative sections.
	TextSearch string

	// DateFrom and DateTo bound the entry date (inclusive, YYYY-MM-DD).
	DateFrom string
	DateTo   string

	// OrderBy must name an allow-listed column; default is timestamp.
	OrderBy    string
	Descending bool

	Limit  int
	Offset int
}

// Query returns indexed rows matching opts, newest first by default.
func (ix *Index) Query(ctx context.Context, opts QueryOptions) ([]*Row, error) {
	var (
		conditions []string
		args       []any
	)

	query := "SELECT " + entryColumns + " FROM entries"

	if opts.TextSearch != "" {
		query += " JOIN entries_fts ON entries.rowid = entries_fts.rowid"

		conditions = append(conditions, "entries_fts MATCH ?")
		args = append(args, escapeFTS(opts.TextSearch))
	}

	filtered, filteredArgs := filterConditions(opts.Filters, opts.DateFrom, opts.DateTo)
	conditions = append(conditions, filtered...)
	args = append(args, filteredArgs...)

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY " + orderClause(opts)

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	return ix.queryRows(ctx, query, args...)
}

// filterConditions turns allow-listed exact-match filters and an inclusive
// date range into WHERE conditions. Filters naming unknown columns are
// dropped. Query and Aggregate share this so a filter set selects the same
// rows in both.
func filterConditions(filters map[string]any, dateFrom, dateTo string) ([]string, []any) {
	var (
		conditions []string
		args       []any
	)

	for column, value := range filters {
		if !filterColumns[column] {
			continue
		}

		conditions = append(conditions, "entries."+column+" = ?")
		args = append(args, value)
	}

	if dateFrom != "" {
		conditions = append(conditions, "entries.date >= ?")
		args = append(args, dateFrom)
	}

	if dateTo != "" {
		conditions = append(conditions, "entries.date <= ?")
		args = append(args, dateTo)
	}

	return conditions, args
}

func orderClause(opts QueryOptions) string {
	column := "timestamp"
	if orderColumns[opts.OrderBy] {
		column = opts.OrderBy
	}

	direction := "DESC"
	if opts.OrderBy != "" && !opts.Descending {
		direction = "ASC"
	}

	return "entries." + column + " " + direction
}

// ActiveOperations returns entries that look like still-running or
// long-running tool invocations: either missing an outcome while naming a
// tool, or exceeding thresholdMS. tool narrows the result when non-empty.
func (ix *Index) ActiveOperations(ctx context.Context, thresholdMS int64, tool string) ([]*Row, error) {
	query := "SELECT " + entryColumns + ` FROM entries
		WHERE (duration_ms > ?` + filterByTool(tool) + `)
			OR (outcome IS NULL AND tool IS NOT NULL)
		ORDER BY timestamp DESC LIMIT 50`

	args := []any{thresholdMS}
	if tool != "" {
		args = append(args, tool)
	}

	return ix.queryRows(ctx, query, args...)
}

func filterByTool(tool string) string {
	if tool == "" {
		return ""
	}

	return " AND tool = ?"
}

func (ix *Index) queryRows(ctx context.Context, query string, args ...any) ([]*Row, error) {
	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Row

	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}

		result = append(result, r)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate index rows: %w", err)
	}

	return result, nil
}

// escapeFTS prepares caller text for FTS5 MATCH. Plain multi-word input is
// wrapped as a quoted phrase; input that already uses FTS operators is
// passed through so AND/OR/NOT and prefix queries keep working.
func escapeFTS(text string) string {
	if usesFTSOperators(text) {
		return text
	}

	if !strings.ContainsAny(text, " \t") {
		return text
	}

	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

func usesFTSOperators(text string) bool {
	if strings.ContainsAny(text, `"*`) {
		return true
	}

	for _, token := range strings.Fields(text) {
		switch token {
		case "AND", "OR", "NOT", "NEAR":
			return true
		}
	}

	return false
}
