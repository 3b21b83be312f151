//go:build windows

package daemonrunner

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// flockExclusive takes an exclusive, non-blocking LockFileEx lock on the
// first byte of the file; the lock is released when the file is closed.
func flockExclusive(f *os.File) error {
	err := windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, new(windows.Overlapped))
	if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
		return ErrLocked
	}
	return err
}
