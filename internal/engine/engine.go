// Package engine implements the journal engine: an append-only markdown log
// as ground truth, with a rebuildable SQLite index layered on top, plus
// config archiving, log preservation, and state snapshots.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/calvinalkan/agent-journal/internal/fs"
	"github.com/calvinalkan/agent-journal/internal/index"
	"github.com/calvinalkan/agent-journal/internal/journal"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// VersionCommand describes one tool whose version a snapshot records.
type VersionCommand struct {
	// Name keys the captured version in the snapshot.
	Name string

	// Command is run through the shell with a short timeout.
	Command string

	// ParseRegex optionally extracts the version from the command output.
	// The first capture group is used when present, otherwise the whole
	// match. Empty means the trimmed output is taken as-is.
	ParseRegex string
}

// Options configures an [Engine]. Root is required; everything else has a
// usable default.
type Options struct {
	// Root is the project root. All relative paths resolve against it.
	Root string

	// Subdirectory names under Root.
	JournalDir   string // default "journal"
	ConfigsDir   string // default "configs"
	LogsDir      string // default "logs"
	SnapshotsDir string // default "snapshots"

	// LockTimeout bounds how long operations wait for a file lock.
	LockTimeout time.Duration

	// Templates is the entry template registry. Nil means the built-in
	// defaults.
	Templates *journal.Templates

	// RequireTemplate makes appends without a template fail.
	RequireTemplate bool

	// ConfigPatterns are glob patterns (relative to Root) for the config
	// files a snapshot captures.
	ConfigPatterns []string

	// VersionCommands are run during snapshots to record tool versions.
	VersionCommands []VersionCommand

	// Hooks observe and influence operations. Nil means no hooks.
	Hooks Hooks

	// Warn receives non-fatal problems: index write failures, unparseable
	// blocks, failing version commands. Nil means warnings are dropped.
	Warn func(msg string, err error)
}

// Engine is the top-level handle. It is safe for concurrent use; cross-process
// coordination happens through per-file advisory locks, in-process index
// access is serialized by a mutex.
type Engine struct {
	opts      Options
	fs        fs.FS
	templates *journal.Templates
	hooks     Hooks

	mu sync.Mutex
	ix *index.Index
}

// New creates an engine rooted at opts.Root, creating the directory layout
// if needed. The SQLite index is opened lazily on first use so that pure log
// operations work even when the index cannot be opened.
func New(opts Options) (*Engine, error) {
	if opts.Root == "" {
		return nil, errors.New("engine: root is required")
	}

	if opts.JournalDir == "" {
		opts.JournalDir = "journal"
	}

	if opts.ConfigsDir == "" {
		opts.ConfigsDir = "configs"
	}

	if opts.LogsDir == "" {
		opts.LogsDir = "logs"
	}

	if opts.SnapshotsDir == "" {
		opts.SnapshotsDir = "snapshots"
	}

	if opts.LockTimeout <= 0 {
		opts.LockTimeout = fs.DefaultLockTimeout
	}

	e := &Engine{
		opts:      opts,
		fs:        fs.NewReal(),
		templates: opts.Templates,
		hooks:     opts.Hooks,
	}

	if e.templates == nil {
		e.templates = journal.DefaultTemplates()
	}

	if e.hooks == nil {
		e.hooks = NopHooks{}
	}

	for _, dir := range []string{
		e.journalDir(), e.configsDir(), e.logsDir(), e.snapshotsDir(),
	} {
		err := e.fs.MkdirAll(dir, dirPerm)
		if err != nil {
			return nil, fmt.Errorf("engine: create %s: %w", dir, err)
		}
	}

	return e, nil
}

// Close releases the index handle. The engine must not be used afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ix == nil {
		return nil
	}

	ix := e.ix
	e.ix = nil

	return ix.Close()
}

func (e *Engine) journalDir() string   { return filepath.Join(e.opts.Root, e.opts.JournalDir) }
func (e *Engine) configsDir() string   { return filepath.Join(e.opts.Root, e.opts.ConfigsDir) }
func (e *Engine) logsDir() string      { return filepath.Join(e.opts.Root, e.opts.LogsDir) }
func (e *Engine) snapshotsDir() string { return filepath.Join(e.opts.Root, e.opts.SnapshotsDir) }

func (e *Engine) dayFilePath(day time.Time) string {
	return filepath.Join(e.journalDir(), journal.DayFileName(day))
}

// abs resolves a possibly-relative path against the project root.
func (e *Engine) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(e.opts.Root, path)
}

// rel maps an absolute path back to a root-relative one where possible.
func (e *Engine) rel(path string) string {
	r, err := filepath.Rel(e.opts.Root, path)
	if err != nil || strings.HasPrefix(r, "..") {
		return path
	}

	return r
}

func (e *Engine) warn(msg string, err error) {
	if e.opts.Warn != nil {
		e.opts.Warn(msg, err)
	}
}

// indexHandle returns the lazily-opened index.
func (e *Engine) indexHandle(ctx context.Context) (*index.Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ix != nil {
		return e.ix, nil
	}

	ix, err := index.Open(ctx, e.journalDir())
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	e.ix = ix

	return ix, nil
}

// withLockedFile takes the advisory lock for path and runs fn.
func (e *Engine) withLockedFile(path string, fn func() error) error {
	return fs.WithLock(path, e.opts.LockTimeout, fn)
}

// appendIndexLine appends line to the INDEX.md in dir, writing header first
// when the file does not exist. Callers hold the directory's index lock.
func (e *Engine) appendIndexLine(dir, header, line string) error {
	path := filepath.Join(dir, "INDEX.md")

	f, err := e.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return fmt.Errorf("stat %s: %w", path, err)
	}

	content := line + "\n"
	if info.Size() == 0 {
		content = header + content
	}

	_, err = f.Write([]byte(content))
	if err != nil {
		_ = f.Close()

		return fmt.Errorf("append to %s: %w", path, err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}
