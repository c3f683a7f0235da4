//go:build !windows

// Package singleinstance enforces that only one agtmuxd process runs
// against a given state directory at a time. On Windows the teacher used
// a named mutex; a supervised Unix daemon gets the equivalent guarantee
// from an exclusive flock on a lock file inside the state directory.
package singleinstance

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by TryLock when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Lock holds an open, flock'd file descriptor for the process lifetime.
type Lock struct {
	file *os.File
}

// TryLock acquires an exclusive, non-blocking flock on a lock file at
// path. The file is created if absent and never removed by Release —
// only the lock is released — so a crashed process's stale file does
// not itself block the next instance from acquiring the lock.
func TryLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("flock lock file: %w", err)
	}
	return &Lock{file: f}, nil
}

// Release drops the flock and closes the file descriptor.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	return l.file.Close()
}

// DefaultMutexName returns an empty string; Unix callers pass a lock file
// path to TryLock instead.
func DefaultMutexName() string { return "" }
