// Package config holds the cleanup defaults and the environment overrides
// read from WSCLEAN_* variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Default configuration values for wsclean.
const (
	// DefaultLockFile is the workspace lock file removed with --del-lock.
	DefaultLockFile = "pnpm-lock.yaml"

	// DefaultEnvFile is the dotenv file read from the working directory.
	DefaultEnvFile = ".env"
)

// Environment variables understood by Load.
const (
	EnvLockFile     = "WSCLEAN_LOCK_FILE"
	EnvExtraTargets = "WSCLEAN_EXTRA_TARGETS"
	EnvExtraSkip    = "WSCLEAN_EXTRA_SKIP"
)

// DefaultTargets are always deleted wherever found.
var DefaultTargets = []string{"node_modules", "dist", ".turbo", "dist.zip"}

// DefaultSkip are never deleted and never entered.
var DefaultSkip = []string{".DS_Store", ".git", ".idea", ".vscode"}

// Config is the resolved cleanup configuration.
type Config struct {
	LockFile     string
	ExtraTargets []string
	ExtraSkip    []string
}

// Default returns the configuration with no overrides applied.
func Default() Config {
	return Config{LockFile: DefaultLockFile}
}

// Load reads envFile (if present) into the process environment without
// overriding variables already set, then applies WSCLEAN_* overrides.
// A missing envFile is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("cannot load %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv), nil
}

// FromEnv builds a Config from a getenv-style lookup.
func FromEnv(getenv func(string) string) Config {
	cfg := Default()
	if lock := strings.TrimSpace(getenv(EnvLockFile)); lock != "" {
		cfg.LockFile = lock
	}
	cfg.ExtraTargets = SplitList(getenv(EnvExtraTargets))
	cfg.ExtraSkip = SplitList(getenv(EnvExtraSkip))
	return cfg
}

// Targets returns the resolved target list: the defaults, any extra
// targets, and the lock file when delLock is set. Duplicates are dropped.
func (c Config) Targets(delLock bool) []string {
	targets := appendUnique(nil, DefaultTargets...)
	targets = appendUnique(targets, c.ExtraTargets...)
	if delLock && c.LockFile != "" {
		targets = appendUnique(targets, c.LockFile)
	}
	return targets
}

// Skip returns the default skip set plus any extra names.
func (c Config) Skip() []string {
	skip := appendUnique(nil, DefaultSkip...)
	return appendUnique(skip, c.ExtraSkip...)
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		dup := false
		for _, have := range dst {
			if have == n {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, n)
		}
	}
	return dst
}
