package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// supersededSuffix marks archives of a config that was replaced by
// activating an older archive.
const supersededSuffix = ".superseded"

// ArchiveOptions carries the optional metadata of an archive.
type ArchiveOptions struct {
	// Stage tags the archive with a build stage.
	Stage string

	// JournalEntry links the archive to an entry ID.
	JournalEntry string

	// Timestamp overrides time.Now. Zero means now.
	Timestamp time.Time
}

// ArchiveConfig copies the config file at path (relative to the project
// root or absolute) into the configs directory under a timestamped name and
// records it in the configs INDEX.md.
//
// Archiving bytes already stored for the same logical file fails with
// [ErrDuplicateContent]: identical content means nothing changed, and a
// second copy would only blur which archive an entry refers to.
func (e *Engine) ArchiveConfig(ctx context.Context, path, reason string, opts ArchiveOptions) (*journal.ConfigArchive, error) {
	if reason == "" {
		return nil, errors.New("archive config: reason is required")
	}

	source := e.abs(path)

	content, err := e.fs.ReadFile(source)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("archive config %s: %w", path, ErrResourceNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("archive config %s: %w", path, err)
	}

	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	hash := sha256.Sum256(content)

	record := &journal.ConfigArchive{
		OriginalPath: e.rel(source),
		Timestamp:    ts.UTC(),
		Reason:       reason,
		Stage:        opts.Stage,
		JournalEntry: opts.JournalEntry,
		ContentHash:  hex.EncodeToString(hash[:]),
	}

	base := filepath.Base(source)
	name := archiveName(base, record.Timestamp, opts.Stage)
	target := filepath.Join(e.configsDir(), name)
	record.ArchivePath = e.rel(target)

	indexPath := filepath.Join(e.configsDir(), "INDEX.md")

	err = e.withLockedFile(indexPath, func() error {
		dup, err := e.findDuplicateArchive(base, record.ContentHash)
		if err != nil {
			return err
		}

		if dup != "" {
			return fmt.Errorf("archive config %s: content already archived as %s: %w",
				path, dup, ErrDuplicateContent)
		}

		err = e.fs.WriteFileAtomic(target, content, filePerm)
		if err != nil {
			return fmt.Errorf("write archive %s: %w", target, err)
		}

		return e.appendIndexLine(e.configsDir(), journal.ConfigIndexHeader, record.IndexLine())
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// archiveName builds "{base}.{timestamp}[.{stage}]".
func archiveName(base string, ts time.Time, stage string) string {
	name := base + "." + journal.ArchiveTimestamp(ts)
	if stage != "" {
		name += "." + stage
	}

	return name
}

// findDuplicateArchive scans existing archives of the same logical file for
// matching content. Returns the archive file name on a hit.
func (e *Engine) findDuplicateArchive(base, contentHash string) (string, error) {
	dirEntries, err := e.fs.ReadDir(e.configsDir())
	if err != nil {
		return "", fmt.Errorf("read configs dir: %w", err)
	}

	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, base+".") {
			continue
		}

		if strings.Contains(name, ".lock") || strings.Contains(name, ".tmp") {
			continue
		}

		content, err := e.fs.ReadFile(filepath.Join(e.configsDir(), name))
		if err != nil {
			return "", fmt.Errorf("read archive %s: %w", name, err)
		}

		hash := sha256.Sum256(content)
		if hex.EncodeToString(hash[:]) == contentHash {
			return name, nil
		}
	}

	return "", nil
}

// Activation reports what ActivateConfig did.
type Activation struct {
	// ArchivePath is the activated archive.
	ArchivePath string

	// TargetPath is the live config file that now carries the archived
	// content.
	TargetPath string

	// Superseded records the archive taken of the previous live content,
	// nil when the target did not exist or its content was already
	// archived.
	Superseded *journal.ConfigArchive
}

// ActivateOptions carries the optional metadata of an activation.
type ActivateOptions struct {
	// Reason is recorded on the archive of the replaced live content.
	// Empty means a default naming the activated archive.
	Reason string

	// JournalEntry links the superseding archive to an entry ID.
	JournalEntry string
}

// ActivateConfig restores an archived config to targetPath. The previous
// live content is archived first under the given reason (defaulted when
// empty) and its archive renamed with a ".superseded" marker, so the
// replaced state stays recoverable and recognizable.
func (e *Engine) ActivateConfig(ctx context.Context, archivePath, targetPath string, opts ActivateOptions) (*Activation, error) {
	source := e.abs(archivePath)

	content, err := e.fs.ReadFile(source)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("activate %s: %w", archivePath, ErrResourceNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("activate %s: %w", archivePath, err)
	}

	target := e.abs(targetPath)

	result := &Activation{
		ArchivePath: e.rel(source),
		TargetPath:  e.rel(target),
	}

	exists, err := e.fs.Exists(target)
	if err != nil {
		return nil, fmt.Errorf("activate %s: %w", archivePath, err)
	}

	if exists {
		reason := opts.Reason
		if reason == "" {
			reason = "superseded by activation of " + result.ArchivePath
		}

		superseded, err := e.ArchiveConfig(ctx, targetPath, reason, ArchiveOptions{
			JournalEntry: opts.JournalEntry,
		})

		switch {
		case errors.Is(err, ErrDuplicateContent):
			// The live content is already archived somewhere; nothing is
			// lost by overwriting it.
		case err != nil:
			return nil, err
		default:
			marked := e.abs(superseded.ArchivePath) + supersededSuffix

			err = e.fs.Rename(e.abs(superseded.ArchivePath), marked)
			if err != nil {
				return nil, fmt.Errorf("mark superseded: %w", err)
			}

			superseded.ArchivePath = e.rel(marked)
			result.Superseded = superseded
		}
	}

	err = e.fs.WriteFileAtomic(target, content, filePerm)
	if err != nil {
		return nil, fmt.Errorf("activate %s: %w", archivePath, err)
	}

	return result, nil
}

// Diff is the comparison of two config files.
type Diff struct {
	PathA string
	PathB string

	Identical bool
	Additions int
	Deletions int

	// Unified is the unified diff text, empty when identical.
	Unified string
}

// currentPrefix marks a diff path as referring to the live config file
// rather than an archive.
const currentPrefix = "current:"

// DiffConfigs compares two config files, live or archived. A "current:"
// prefix on either path resolves to the live file relative to the project
// root. Paths outside the configs directory are labeled "current:" in the
// diff header to keep live vs archived obvious.
func (e *Engine) DiffConfigs(pathA, pathB string) (*Diff, error) {
	pathA = strings.TrimPrefix(pathA, currentPrefix)
	pathB = strings.TrimPrefix(pathB, currentPrefix)

	contentA, err := e.fs.ReadFile(e.abs(pathA))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("diff %s: %w", pathA, ErrResourceNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", pathA, err)
	}

	contentB, err := e.fs.ReadFile(e.abs(pathB))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("diff %s: %w", pathB, ErrResourceNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", pathB, err)
	}

	result := &Diff{
		PathA:     e.rel(e.abs(pathA)),
		PathB:     e.rel(e.abs(pathB)),
		Identical: string(contentA) == string(contentB),
	}

	if result.Identical {
		return result, nil
	}

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(contentA)),
		B:        difflib.SplitLines(string(contentB)),
		FromFile: e.diffLabel(pathA),
		ToFile:   e.diffLabel(pathB),
		Context:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("diff %s %s: %w", pathA, pathB, err)
	}

	result.Unified = unified

	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			result.Additions++
		case strings.HasPrefix(line, "-"):
			result.Deletions++
		}
	}

	return result, nil
}

func (e *Engine) diffLabel(path string) string {
	rel := e.rel(e.abs(path))
	if strings.HasPrefix(rel, e.opts.ConfigsDir+string(filepath.Separator)) {
		return rel
	}

	return "current: " + rel
}
