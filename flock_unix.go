//go:build linux || darwin

package kdb

import (
	"os"

	"golang.org/x/sys/unix"
)

// flockExclusive takes a non-blocking advisory exclusive lock on the
// open file, enforcing single-writer access across OS processes.
func flockExclusive(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return ErrLockHeld
	}
	return nil
}

func funlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
