//go:build !windows

package storage

import "golang.org/x/sys/unix"

// flockLock acquires an exclusive advisory lock (Unix implementation).
func flockLock(fd uintptr) error {
	return unix.Flock(int(fd), unix.LOCK_EX)
}

// flockUnlock releases the advisory lock (Unix implementation).
func flockUnlock(fd uintptr) error {
	return unix.Flock(int(fd), unix.LOCK_UN)
}
