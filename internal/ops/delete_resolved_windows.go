//go:build windows

package ops

import (
	"os"
	"path/filepath"
)

func deleteResolvedPath(parentPath, baseName string) error {
	realPath := filepath.Join(parentPath, baseName)
	if _, err := os.Lstat(realPath); err != nil {
		return err
	}
	// RemoveAll does not follow symlinks or junctions and ignores a missing path.
	return os.RemoveAll(realPath)
}
