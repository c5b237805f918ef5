//go:build !linux && !darwin

package kdb

import "os"

// flockExclusive is a no-op on platforms without an advisory flock
// syscall; the single-writer contract is then documentary only, as it
// is for the rest of this engine's concurrency model.
func flockExclusive(f *os.File) error { return nil }

func funlock(f *os.File) error { return nil }
