//go:build !windows

package ops

import (
	"errors"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

func deleteResolvedPath(parentPath, baseName string) error {
	parentFD, err := unix.Open(parentPath, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return mapErrno(err)
	}
	defer unix.Close(parentFD)

	return deleteAt(parentFD, baseName)
}

// deleteAt removes name relative to parentFD without following symlinks.
// Children that disappear while the subtree is being removed are ignored.
func deleteAt(parentFD int, name string) error {
	// Fast path for files/symlinks.
	if err := unix.Unlinkat(parentFD, name, 0); err == nil {
		return nil
	} else if !errors.Is(err, unix.EISDIR) && !errors.Is(err, unix.EPERM) {
		return mapErrno(err)
	}

	childFD, err := unix.Openat(parentFD, name, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		// Entry may have changed type concurrently. Retry file/symlink unlink once.
		if errors.Is(err, unix.ENOTDIR) {
			return mapErrno(unix.Unlinkat(parentFD, name, 0))
		}
		return mapErrno(err)
	}

	childDir := os.NewFile(uintptr(childFD), name)
	entries, readErr := childDir.ReadDir(-1)
	if readErr != nil {
		_ = childDir.Close()
		return readErr
	}

	for _, entry := range entries {
		if err := deleteAt(childFD, entry.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			_ = childDir.Close()
			return err
		}
	}

	if err := childDir.Close(); err != nil {
		return err
	}

	return mapErrno(unix.Unlinkat(parentFD, name, unix.AT_REMOVEDIR))
}

// mapErrno turns ENOENT into fs.ErrNotExist so callers can use errors.Is
// without importing unix. Permission errnos already match fs.ErrPermission.
func mapErrno(err error) error {
	if errors.Is(err, unix.ENOENT) {
		return fs.ErrNotExist
	}
	return err
}
