package engine

import (
	"context"
	"fmt"

	"github.com/calvinalkan/agent-journal/internal/index"
)

// Query runs a structured query against the SQLite index.
func (e *Engine) Query(ctx context.Context, opts index.QueryOptions) ([]*index.Row, error) {
	ix, err := e.indexHandle(ctx)
	if err != nil {
		return nil, err
	}

	return ix.Query(ctx, opts)
}

// Aggregate groups and aggregates indexed entries.
func (e *Engine) Aggregate(ctx context.Context, opts index.AggregateOptions) (*index.AggregateResult, error) {
	ix, err := e.indexHandle(ctx)
	if err != nil {
		return nil, err
	}

	return ix.Aggregate(ctx, opts)
}

// ActiveOperations lists entries that look like running or long-running tool
// invocations.
func (e *Engine) ActiveOperations(ctx context.Context, thresholdMS int64, tool string) ([]*index.Row, error) {
	ix, err := e.indexHandle(ctx)
	if err != nil {
		return nil, err
	}

	return ix.ActiveOperations(ctx, thresholdMS, tool)
}

// Stats summarizes the indexed journal.
func (e *Engine) Stats(ctx context.Context) (*index.Stats, error) {
	ix, err := e.indexHandle(ctx)
	if err != nil {
		return nil, err
	}

	return ix.Stats(ctx)
}

// RebuildIndex reconstructs the SQLite index from the day files. This is the
// recovery path for a deleted, corrupted, or out-of-date index; the log is
// never touched. Parse failures are reported through Warn and counted in the
// returned stats.
func (e *Engine) RebuildIndex(ctx context.Context) (*index.RebuildStats, error) {
	ix, err := e.indexHandle(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := ix.Rebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}

	for _, pe := range stats.ParseErrors {
		e.warn("rebuild skipped unparseable block", pe)
	}

	return stats, nil
}
