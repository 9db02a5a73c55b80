package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// groupColumns is the allow-list for GROUP BY.
var groupColumns = map[string]bool{
	"tool":       true,
	"outcome":    true,
	"author":     true,
	"entry_type": true,
	"date":       true,
	"template":   true,
	"error_type": true,
}

// aggregateFuncs is the allow-list of SQL aggregate functions usable in
// "func:field" aggregation specs.
var aggregateFuncs = map[string]bool{
	"avg": true,
	"sum": true,
	"min": true,
	"max": true,
}

// numericColumns is the allow-list of fields that func aggregations may
// target.
var numericColumns = map[string]bool{
	"duration_ms": true,
	"exit_code":   true,
}

// Group is one GROUP BY bucket with its computed aggregate values, keyed by
// the aggregation spec that produced them ("count", "avg:duration_ms", ...).
type Group struct {
	Key    string
	Values map[string]float64
}

// AggregateResult is the outcome of one Aggregate call.
type AggregateResult struct {
	GroupBy string
	Groups  []Group
	Totals  map[string]float64
}

// AggregateOptions selects the rows to aggregate and how to bucket them.
// Filters and the date range use the same allow-lists and semantics as
// [QueryOptions], so an aggregation covers exactly the rows a Query with
// the same constraints would return.
type AggregateOptions struct {
	// GroupBy must name an allow-listed column.
	GroupBy string

	// Aggregations are "count" or "func:field" specs with func in
	// avg/sum/min/max and field a numeric column; anything else is skipped.
	// When no spec survives, a plain count is computed.
	Aggregations []string

	// Filters maps allow-listed column names to exact-match values.
	Filters map[string]any

	// DateFrom and DateTo bound the entry date (inclusive, YYYY-MM-DD).
	DateFrom string
	DateTo   string
}

// Aggregate groups the selected entries by an allow-listed column and
// computes the requested aggregations. Totals come from a second ungrouped
// pass over the same rows, so avg and min/max totals are computed over all
// matching entries rather than over per-group results. NULL group keys are
// reported under "-".
func (ix *Index) Aggregate(ctx context.Context, opts AggregateOptions) (*AggregateResult, error) {
	if !groupColumns[opts.GroupBy] {
		return nil, fmt.Errorf("aggregate: cannot group by %q", opts.GroupBy)
	}

	specs, selects := aggregateSelects(opts.Aggregations)

	conditions, args := filterConditions(opts.Filters, opts.DateFrom, opts.DateTo)

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(
		"SELECT COALESCE(%s, '-') AS grp, %s FROM entries%s GROUP BY grp ORDER BY grp",
		opts.GroupBy, strings.Join(selects, ", "), where)

	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by %s: %w", opts.GroupBy, err)
	}
	defer func() { _ = rows.Close() }()

	result := &AggregateResult{GroupBy: opts.GroupBy}

	for rows.Next() {
		group := Group{Values: make(map[string]float64, len(specs))}

		dest := make([]any, 0, len(specs)+1)
		dest = append(dest, &group.Key)

		values := make([]sql.NullFloat64, len(specs))
		for i := range values {
			dest = append(dest, &values[i])
		}

		err = rows.Scan(dest...)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}

		for i, spec := range specs {
			if !values[i].Valid {
				continue
			}

			group.Values[spec] = values[i].Float64
		}

		result.Groups = append(result.Groups, group)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}

	result.Totals, err = ix.aggregateTotals(ctx, specs, selects, where, args)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// aggregateTotals runs the aggregations once more without grouping.
func (ix *Index) aggregateTotals(ctx context.Context, specs, selects []string, where string, args []any) (map[string]float64, error) {
	query := "SELECT " + strings.Join(selects, ", ") + " FROM entries" + where

	values := make([]sql.NullFloat64, len(specs))

	dest := make([]any, len(specs))
	for i := range values {
		dest[i] = &values[i]
	}

	err := ix.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	if err != nil {
		return nil, fmt.Errorf("aggregate totals: %w", err)
	}

	totals := make(map[string]float64, len(specs))

	for i, spec := range specs {
		if !values[i].Valid {
			continue
		}

		totals[spec] = values[i].Float64
	}

	return totals, nil
}

// aggregateSelects maps aggregation specs to SELECT expressions, dropping
// specs that fail the allow-lists. Both slices share one index space.
func aggregateSelects(aggregations []string) ([]string, []string) {
	var (
		specs   []string
		selects []string
	)

	for _, spec := range aggregations {
		if spec == "count" {
			specs = append(specs, spec)
			selects = append(selects, "COUNT(*)")

			continue
		}

		fn, field, ok := strings.Cut(spec, ":")
		if !ok || !aggregateFuncs[fn] || !numericColumns[field] {
			continue
		}

		specs = append(specs, spec)
		selects = append(selects, strings.ToUpper(fn)+"("+field+")")
	}

	if len(specs) == 0 {
		specs = append(specs, "count")
		selects = append(selects, "COUNT(*)")
	}

	return specs, selects
}

// Stats summarizes the whole index.
type Stats struct {
	TotalEntries int64
	ByType       map[string]int64
	ByOutcome    map[string]int64
	FirstDate    string
	LastDate     string
	TopAuthors   []NamedCount
	TopTools     []NamedCount
}

// NamedCount pairs a group value with its entry count.
type NamedCount struct {
	Name  string
	Count int64
}

// Stats computes summary statistics over all indexed entries.
func (ix *Index) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByType:    make(map[string]int64),
		ByOutcome: make(map[string]int64),
	}

	row := ix.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MIN(date), ''), COALESCE(MAX(date), '') FROM entries")

	err := row.Scan(&stats.TotalEntries, &stats.FirstDate, &stats.LastDate)
	if err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}

	err = ix.countInto(ctx, "entry_type", stats.ByType)
	if err != nil {
		return nil, err
	}

	err = ix.countInto(ctx, "outcome", stats.ByOutcome)
	if err != nil {
		return nil, err
	}

	stats.TopAuthors, err = ix.topCounts(ctx, "author")
	if err != nil {
		return nil, err
	}

	stats.TopTools, err = ix.topCounts(ctx, "tool")
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (ix *Index) countInto(ctx context.Context, column string, out map[string]int64) error {
	rows, err := ix.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT COALESCE(%s, '-'), COUNT(*) FROM entries GROUP BY 1", column))
	if err != nil {
		return fmt.Errorf("stats by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key   string
			count int64
		)

		err = rows.Scan(&key, &count)
		if err != nil {
			return fmt.Errorf("scan stats by %s: %w", column, err)
		}

		out[key] = count
	}

	return rows.Err()
}

func (ix *Index) topCounts(ctx context.Context, column string) ([]NamedCount, error) {
	rows, err := ix.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s, COUNT(*) AS n FROM entries WHERE %s IS NOT NULL GROUP BY 1 ORDER BY n DESC, 1 ASC LIMIT 5",
		column, column))
	if err != nil {
		return nil, fmt.Errorf("stats top %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	var result []NamedCount

	for rows.Next() {
		var nc NamedCount

		err = rows.Scan(&nc.Name, &nc.Count)
		if err != nil {
			return nil, fmt.Errorf("scan top %s: %w", column, err)
		}

		result = append(result, nc)
	}

	return result, rows.Err()
}
