package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// RebuildStats reports what a rebuild did.
type RebuildStats struct {
	FilesScanned   int
	EntriesIndexed int

	// ParseErrors lists blocks that could not be indexed. They stay in the
	// day files untouched; a rebuild never repairs or drops log content.
	ParseErrors []*journal.ParseError
}

// Rebuild drops every index row and re-populates the index from the day
// files in the journal directory. The whole rebuild runs as one transaction,
// so readers either see the old index or the complete new one. Rebuilding an
// already-consistent index is a no-op apart from row churn.
func (ix *Index) Rebuild(ctx context.Context) (*RebuildStats, error) {
	names, err := dayFileNames(ix.dir)
	if err != nil {
		return nil, err
	}

	stats := &RebuildStats{}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rebuild: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM entries")
	if err != nil {
		_ = tx.Rollback()

		return nil, fmt.Errorf("clear index: %w", err)
	}

	for _, name := range names {
		path := filepath.Join(ix.dir, name)

		content, err := os.ReadFile(path)
		if err != nil {
			_ = tx.Rollback()

			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		stats.FilesScanned++

		entries, parseErrs := journal.ParseFile(path, content)
		stats.ParseErrors = append(stats.ParseErrors, parseErrs...)

		for i := range entries {
			err = upsertTx(ctx, tx, &entries[i], path)
			if err != nil {
				_ = tx.Rollback()

				return nil, err
			}

			stats.EntriesIndexed++
		}
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("commit rebuild: %w", err)
	}

	return stats, nil
}

// dayFileNames lists the markdown day files in dir, sorted by name so entry
// rows are inserted in date order. Non-journal files (directory indexes,
// lock litter, temp files) are skipped.
func dayFileNames(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}

	var names []string

	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}

		name := de.Name()
		if !strings.HasSuffix(name, ".md") ||
			name == "INDEX.md" ||
			strings.Contains(name, ".lock") ||
			strings.Contains(name, ".tmp") {
			continue
		}

		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}
