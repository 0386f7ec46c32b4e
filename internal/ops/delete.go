package ops

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Delete removes a file or directory at the given path, including its whole
// subtree. Symlinks are removed, never followed. rootPath constrains deletion
// to strict descendants of the cleanup root, also after resolving symlinks in
// the parent directory. A path that no longer exists yields an error
// matching fs.ErrNotExist.
func Delete(path string, rootPath string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return fmt.Errorf("cannot resolve root %s: %w", rootPath, err)
	}

	if !isStrictlyWithin(absRoot, absPath) {
		return fmt.Errorf("refusing to delete %s: outside cleanup root %s", absPath, absRoot)
	}

	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return fmt.Errorf("cannot resolve root %s: %w", absRoot, err)
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(absPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &fs.PathError{Op: "remove", Path: absPath, Err: fs.ErrNotExist}
		}
		return fmt.Errorf("cannot resolve parent of %s: %w", absPath, err)
	}
	if parent != resolvedRoot && !isStrictlyWithin(resolvedRoot, parent) {
		return fmt.Errorf("refusing to delete %s: parent resolves outside cleanup root %s", absPath, resolvedRoot)
	}

	if err := deleteResolvedPath(parent, filepath.Base(absPath)); err != nil {
		return &fs.PathError{Op: "remove", Path: absPath, Err: err}
	}
	return nil
}

func isStrictlyWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
