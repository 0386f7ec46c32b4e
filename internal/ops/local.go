package ops

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalFS is the local-disk filesystem for the cleaner. Removals are
// constrained to Root by Delete.
type LocalFS struct {
	Root string
}

// NewLocalFS returns a LocalFS rooted at root.
func NewLocalFS(root string) *LocalFS {
	return &LocalFS{Root: root}
}

func (l *LocalFS) ReadDir(_ context.Context, dir string) ([]fs.DirEntry, error) {
	return os.ReadDir(dir)
}

func (l *LocalFS) RemoveAll(_ context.Context, path string) error {
	return Delete(path, l.Root)
}

func (l *LocalFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}
