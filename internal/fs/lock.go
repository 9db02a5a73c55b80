package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// locksDirName is the subdirectory for sidecar lock files.
// Using a subdirectory keeps lock churn from touching the data directory's
// mtime and keeps lock artifacts out of directory scans.
const locksDirName = ".locks"

// DefaultLockTimeout bounds lock acquisition when the caller does not
// configure one.
const DefaultLockTimeout = 10 * time.Second

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o750
)

// ErrLockTimeout is returned when an exclusive lock cannot be acquired
// within the timeout. Callers decide whether to retry; WithLock never
// retries on its own.
var ErrLockTimeout = errors.New("lock timeout")

// WithLock runs fn while holding an exclusive cross-process lock scoped to
// path. The lock is taken on a sidecar file (".locks/<base>.lock" next to
// path), not on path itself, so locking works for files that do not exist
// yet and survives atomic replacement of the target.
//
// flock(2) is advisory: all cooperating writers must go through WithLock for
// the exclusion to hold. The unit of exclusion is the target file; unrelated
// paths never contend.
//
// Returns an error satisfying errors.Is(err, ErrLockTimeout) if the lock is
// not acquired within timeout. Errors from fn are returned unchanged.
func WithLock(path string, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	lock, err := acquireLock(path, timeout)
	if err != nil {
		return err
	}

	defer lock.release()

	return fn()
}

// fileLock represents a held lock on a sidecar lock file.
type fileLock struct {
	path string
	file *os.File
}

// release releases the lock and removes the lock file.
// Order matters: remove while holding the lock, then unlock, then close.
func (l *fileLock) release() {
	if l.file != nil {
		_ = os.Remove(l.path)
		_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		_ = l.file.Close()
		l.file = nil
	}
}

// acquireLock takes an exclusive flock on the sidecar lock file for path,
// retrying until the deadline.
//
// flock applies to an inode, not a pathname, and release deletes the lock
// file. A waiter can therefore acquire the lock on an inode that is no
// longer the file at the lock path. The inode is re-checked after each
// successful flock; on mismatch the acquisition is retried on the current
// file.
func acquireLock(path string, timeout time.Duration) (*fileLock, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	locksDir := filepath.Join(dir, locksDirName)
	lockPath := filepath.Join(locksDir, base+".lock")

	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s (after %s)", ErrLockTimeout, path, timeout)
		}

		err := os.MkdirAll(locksDir, lockDirPerm)
		if err != nil {
			return nil, fmt.Errorf("creating locks dir: %w", err)
		}

		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, lockFilePerm)
		if err != nil {
			return nil, fmt.Errorf("opening lock file: %w", err)
		}

		var openStat unix.Stat_t

		err = unix.Fstat(int(file.Fd()), &openStat)
		if err != nil {
			_ = file.Close()

			return nil, fmt.Errorf("fstat lock file: %w", err)
		}

		fd := int(file.Fd())
		done := make(chan error, 1)

		go func() {
			done <- flockRetryEINTR(fd, unix.LOCK_EX)
		}()

		select {
		case err := <-done:
			if err != nil {
				_ = file.Close()

				return nil, fmt.Errorf("flock: %w", err)
			}

			// Verify the lock path still refers to the inode we locked.
			// If not, a concurrent release deleted it; retry on the new file.
			var pathStat unix.Stat_t

			statErr := unix.Stat(lockPath, &pathStat)
			if statErr != nil || pathStat.Ino != openStat.Ino || pathStat.Dev != openStat.Dev {
				_ = unix.Flock(fd, unix.LOCK_UN)
				_ = file.Close()

				continue
			}

			return &fileLock{path: lockPath, file: file}, nil

		case <-time.After(remaining):
			// The goroutine may still acquire the lock after we give up;
			// closing the fd releases it in that case.
			go func(f *os.File) {
				<-done
				_ = f.Close()
			}(file)

			return nil, fmt.Errorf("%w: %s (after %s)", ErrLockTimeout, path, timeout)
		}
	}
}

// flockRetryEINTR wraps flock, retrying when the syscall is interrupted by a
// signal. Retries are capped to avoid spinning under a signal storm.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for i := 0; i < maxEINTRRetries; i++ {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
