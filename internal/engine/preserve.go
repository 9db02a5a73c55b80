package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// PreserveOptions carries the optional metadata of a log preservation.
type PreserveOptions struct {
	// Category groups related logs in the preserved name ("build",
	// "test", ...).
	Category string

	// Timestamp overrides time.Now. Zero means now.
	Timestamp time.Time
}

// PreserveLog moves the log file at path into the logs directory under a
// name encoding category, timestamp, and outcome, and records it in the logs
// INDEX.md. The source is moved, not copied: afterwards it exists only in
// the logs directory.
func (e *Engine) PreserveLog(ctx context.Context, path string, outcome journal.LogOutcome, opts PreserveOptions) (*journal.LogPreservation, error) {
	source := e.abs(path)

	exists, err := e.fs.Exists(source)
	if err != nil {
		return nil, fmt.Errorf("preserve log %s: %w", path, err)
	}

	if !exists {
		return nil, fmt.Errorf("preserve log %s: %w", path, ErrResourceNotFound)
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	record := &journal.LogPreservation{
		OriginalPath: e.rel(source),
		Timestamp:    ts.UTC(),
		Category:     opts.Category,
		Outcome:      journal.ParseLogOutcome(string(outcome)),
	}

	indexPath := filepath.Join(e.logsDir(), "INDEX.md")

	err = e.withLockedFile(indexPath, func() error {
		target, err := e.freePreservedPath(record)
		if err != nil {
			return err
		}

		err = e.moveFile(source, target)
		if err != nil {
			return fmt.Errorf("preserve log %s: %w", path, err)
		}

		record.PreservedPath = e.rel(target)

		return e.appendIndexLine(e.logsDir(), journal.LogIndexHeader, record.IndexLine())
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// freePreservedPath returns the first non-colliding target name. Two logs
// preserved within the same second get numeric suffixes instead of
// clobbering each other.
func (e *Engine) freePreservedPath(record *journal.LogPreservation) (string, error) {
	base := preservedName(record.Category, record.Timestamp, record.Outcome)

	for attempt := 0; attempt < 100; attempt++ {
		name := base
		if attempt > 0 {
			name = base[:len(base)-len(".log")] + "-" + strconv.Itoa(attempt+1) + ".log"
		}

		target := filepath.Join(e.logsDir(), name)

		exists, err := e.fs.Exists(target)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", target, err)
		}

		if !exists {
			return target, nil
		}
	}

	return "", fmt.Errorf("preserve log: no free name for %s", base)
}

// preservedName builds "[{category}.]{timestamp}.{outcome}.log".
func preservedName(category string, ts time.Time, outcome journal.LogOutcome) string {
	name := journal.ArchiveTimestamp(ts) + "." + string(outcome) + ".log"
	if category != "" {
		name = category + "." + name
	}

	return name
}

// moveFile renames source to target, falling back to copy-and-remove when
// the rename crosses filesystems.
func (e *Engine) moveFile(source, target string) error {
	err := e.fs.Rename(source, target)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	in, err := e.fs.Open(source)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := e.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, filePerm)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		_ = e.fs.Remove(target)

		return err
	}

	err = out.Close()
	if err != nil {
		return err
	}

	return e.fs.Remove(source)
}
