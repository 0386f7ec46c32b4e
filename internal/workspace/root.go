package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoRoot is returned when no ancestor directory holds the marker file.
var ErrNoRoot = errors.New("workspace root not found")

// FindRoot walks up from start to the nearest directory containing a regular
// file named marker (usually the workspace lock file) and returns it.
func FindRoot(start, marker string) (string, error) {
	if marker == "" {
		return "", fmt.Errorf("workspace marker file name is required")
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("cannot resolve %s: %w", start, err)
	}

	for {
		info, err := os.Stat(filepath.Join(dir, marker))
		if err == nil && info.Mode().IsRegular() {
			return dir, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("cannot check %s: %w", dir, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: no %s above %s", ErrNoRoot, marker, start)
		}
		dir = parent
	}
}
