package fs_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/calvinalkan/agent-journal/internal/fs"
)

// Contract: WithLock serializes concurrent critical sections on the same path.
func Test_WithLock_Serializes_Concurrent_Writers_On_Same_Path(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "2026-01-05.md")

	const workers = 8

	var (
		wg      sync.WaitGroup
		active  int
		maxSeen int
		mu      sync.Mutex
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := fs.WithLock(target, 5*time.Second, func() error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()

				return nil
			})
			if err != nil {
				t.Errorf("with lock: %v", err)
			}
		}()
	}

	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("max concurrent lock holders = %d, want 1", maxSeen)
	}
}

// Contract: a caller that cannot acquire the lock in time gets a
// distinguishable timeout error and the holder is unaffected.
func Test_WithLock_Returns_ErrLockTimeout_When_Lock_Is_Held(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "index.md")

	holding := make(chan struct{})
	release := make(chan struct{})
	holderDone := make(chan error, 1)

	go func() {
		holderDone <- fs.WithLock(target, time.Second, func() error {
			close(holding)
			<-release

			return nil
		})
	}()

	<-holding

	err := fs.WithLock(target, 50*time.Millisecond, func() error {
		t.Error("critical section ran while lock was held elsewhere")

		return nil
	})
	if !errors.Is(err, fs.ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}

	close(release)

	if err := <-holderDone; err != nil {
		t.Fatalf("holder: %v", err)
	}
}

// Contract: fn errors pass through unchanged and the lock file is cleaned up.
func Test_WithLock_Propagates_Fn_Error_And_Removes_Lock_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "build.toml")
	sentinel := errors.New("boom")

	err := fs.WithLock(target, time.Second, func() error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel passthrough", err)
	}

	lockPath := filepath.Join(dir, ".locks", "build.toml.lock")
	if _, statErr := os.Stat(lockPath); !os.IsNotExist(statErr) {
		t.Fatalf("lock file still present after release: %v", statErr)
	}
}

// Contract: locks on unrelated paths never contend.
func Test_WithLock_Allows_Concurrent_Holders_On_Different_Paths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	aHeld := make(chan struct{})
	releaseA := make(chan struct{})
	aDone := make(chan error, 1)

	go func() {
		aDone <- fs.WithLock(filepath.Join(dir, "a.md"), time.Second, func() error {
			close(aHeld)
			<-releaseA

			return nil
		})
	}()

	<-aHeld

	err := fs.WithLock(filepath.Join(dir, "b.md"), 200*time.Millisecond, func() error {
		return nil
	})
	if err != nil {
		t.Fatalf("lock on unrelated path: %v", err)
	}

	close(releaseA)

	if err := <-aDone; err != nil {
		t.Fatalf("holder a: %v", err)
	}
}
