// Package fs provides the filesystem primitives the journal engine builds on:
// a small [FS] abstraction over the [os] package, atomic temp-then-rename
// writes, and cross-process advisory locking with a bounded acquisition
// timeout.
//
// Every mutating journal operation is expected to run inside [WithLock] on the
// file it targets and to publish replaced files through
// [FS.WriteFileAtomic]. Appends go through [FS.OpenFile] with [os.O_APPEND]
// while the lock is held.
package fs

import (
	"io"
	"os"
)

// File represents an open file descriptor.
//
// The interface is satisfied by [os.File] and works with all standard library
// functions that accept [io.Reader], [io.Writer], or [io.Closer].
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor, see [os.File.Fd].
	// Used for low-level operations like flock(2).
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file, see [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk, see [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations the engine needs.
//
// [Real] is the production implementation. All methods mirror their [os]
// package equivalents so callers keep stdlib error semantics
// ([os.ErrNotExist] and friends).
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with the given flags and permissions. See
	// [os.OpenFile]. Used for append-mode writes to day files.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic writes data to path via a sibling temp file and a
	// rename. On failure before the rename the target is untouched.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// ReadDir reads a directory, entries sorted by name. See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// Rename moves a file. Atomic on the same filesystem. See [os.Rename].
	Rename(oldpath, newpath string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
