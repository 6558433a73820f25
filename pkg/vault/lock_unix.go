//go:build !windows

package vault

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// acquireFileLock attempts to acquire an exclusive, non-blocking lock on the
// given file. Returns ErrWouldBlock when another holder owns it.
var acquireFileLock = func(path string) (*os.File, error) {
	lockFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	err = unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		lockFile.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}

	return lockFile, nil
}

// releaseFileLock releases the lock. The lock file itself stays on disk: removing
// it would let a waiter that already opened the old inode lock it alongside a
// newcomer that created a fresh one.
func releaseFileLock(lockFile *os.File) error {
	if lockFile == nil {
		return nil
	}
	err1 := unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	err2 := lockFile.Close()
	return errors.Join(err1, err2)
}
