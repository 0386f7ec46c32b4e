package cleaner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxDepth is the deepest level cleanLevel descends to. The root
	// is depth 0.
	DefaultMaxDepth = 10
	// DefaultConcurrency is the number of sibling entries processed at once.
	DefaultConcurrency = 10

	// recentLimit caps Progress.Recent.
	recentLimit = 8
)

// FS is the filesystem a Cleaner walks. Listing must not follow symlinks:
// an entry reports IsDir only for a real directory.
type FS interface {
	ReadDir(ctx context.Context, dir string) ([]fs.DirEntry, error)
	// RemoveAll removes path and everything below it. If path itself is
	// already gone the error matches fs.ErrNotExist; children vanishing
	// mid-removal are ignored.
	RemoveAll(ctx context.Context, path string) error
	Join(elem ...string) string
}

// Options configures the traversal.
type Options struct {
	// Skip lists basenames that are never matched or entered.
	Skip []string
	// MaxDepth bounds recursion (0 = DefaultMaxDepth).
	MaxDepth int
	// Concurrency bounds the batch size within one directory
	// (0 = DefaultConcurrency).
	Concurrency int
	// DryRun reports matches without removing them.
	DryRun bool
}

// DefaultOptions returns the workspace defaults.
func DefaultOptions() Options {
	return Options{
		Skip:        []string{".DS_Store", ".git", ".idea", ".vscode"},
		MaxDepth:    DefaultMaxDepth,
		Concurrency: DefaultConcurrency,
	}
}

// Cleaner removes every entry whose basename is a target, recursing into the
// remaining directories in bounded batches.
type Cleaner struct {
	fsys FS
	opts Options
	rep  Reporter
	log  *zap.Logger
}

// New creates a Cleaner. A nil Reporter or Logger is replaced with a no-op.
func New(fsys FS, opts Options, rep Reporter, log *zap.Logger) *Cleaner {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if rep == nil {
		rep = NopReporter{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{fsys: fsys, opts: opts, rep: rep, log: log}
}

// run holds the state shared by every cleanLevel call of one Clean.
type run struct {
	targets map[string]bool
	skip    map[string]bool
	rec     *recorder

	dirsListed, deleted, warnings atomic.Int64

	pathMu      sync.Mutex
	currentPath string
	recent      []string
}

func (r *run) setCurrent(path string) {
	r.pathMu.Lock()
	r.currentPath = path
	r.pathMu.Unlock()
}

func (r *run) noteDeleted(path string) {
	r.pathMu.Lock()
	r.recent = append(r.recent, path)
	if len(r.recent) > recentLimit {
		r.recent = r.recent[len(r.recent)-recentLimit:]
	}
	r.pathMu.Unlock()
}

// Clean walks root and removes every entry whose basename is in targets.
// Per-entry failures are recorded as warnings in the Result and never
// returned; the error is reserved for failures of the run as a whole.
// Progress snapshots are sent on progress if it is non-nil.
func (c *Cleaner) Clean(ctx context.Context, root string, targets []string, progress chan<- Progress) (*Result, error) {
	if c.fsys == nil {
		return nil, errors.New("cleaner: no filesystem configured")
	}
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("cleaner: root path is required")
	}

	r := &run{
		targets: make(map[string]bool, len(targets)),
		skip:    make(map[string]bool, len(c.opts.Skip)),
		rec:     &recorder{rep: c.rep, dryRun: c.opts.DryRun},
	}
	for _, t := range targets {
		r.targets[t] = true
	}
	for _, s := range c.opts.Skip {
		r.skip[s] = true
	}

	startTime := time.Now()
	c.rep.Started(root, targets, c.opts.DryRun)
	c.log.Debug("cleanup started",
		zap.String("root", root),
		zap.Strings("targets", targets),
		zap.Bool("dry_run", c.opts.DryRun))

	var progressWg sync.WaitGroup
	progressDone := make(chan struct{})
	if progress != nil {
		progressWg.Add(1)
		go func() {
			defer progressWg.Done()
			ticker := time.NewTicker(50 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					select {
					case progress <- r.snapshot(startTime, false):
					default:
						// Drop if channel full
					}
				case <-progressDone:
					return
				}
			}
		}()
	}

	c.cleanLevel(ctx, r, root, 0)

	if progress != nil {
		close(progressDone)
		progressWg.Wait()
		select {
		case progress <- r.snapshot(startTime, true):
		default:
		}
	}

	res := &Result{
		Root:       root,
		Targets:    append([]string(nil), targets...),
		DryRun:     c.opts.DryRun,
		DirsListed: r.dirsListed.Load(),
		StartTime:  startTime,
		Elapsed:    time.Since(startTime),
	}
	r.rec.fill(res)

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("cleanup interrupted: %w", err)
	}

	c.rep.Finished(res)
	c.log.Debug("cleanup finished",
		zap.Int("deleted", len(res.Deleted)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

func (r *run) snapshot(start time.Time, done bool) Progress {
	r.pathMu.Lock()
	current := r.currentPath
	recent := append([]string(nil), r.recent...)
	r.pathMu.Unlock()

	return Progress{
		CurrentPath: current,
		Recent:      recent,
		DirsListed:  r.dirsListed.Load(),
		Deleted:     r.deleted.Load(),
		Warnings:    r.warnings.Load(),
		Done:        done,
		StartTime:   start,
		Duration:    time.Since(start),
	}
}

func (c *Cleaner) cleanLevel(ctx context.Context, r *run, dir string, depth int) {
	if depth > c.opts.MaxDepth {
		c.warn(r, Warning{Category: CategoryDepth, Path: dir})
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	entries, err := c.fsys.ReadDir(ctx, dir)
	if err != nil {
		c.fail(r, OpList, dir, err)
		return
	}
	r.dirsListed.Add(1)
	r.setCurrent(dir)
	c.log.Debug("listed directory", zap.String("dir", dir), zap.Int("entries", len(entries)), zap.Int("depth", depth))

	limit := c.opts.Concurrency
	for start := 0; start < len(entries); start += limit {
		end := min(start+limit, len(entries))
		batch := entries[start:end]

		var wg sync.WaitGroup
		var failed atomic.Int64
		for _, entry := range batch {
			wg.Add(1)
			go func(entry fs.DirEntry) {
				defer wg.Done()
				defer func() {
					if p := recover(); p != nil {
						failed.Add(1)
						c.log.Error("batch task panicked",
							zap.String("dir", dir),
							zap.String("entry", entry.Name()),
							zap.Any("panic", p))
					}
				}()
				c.processEntry(ctx, r, dir, entry, depth)
			}(entry)
		}
		wg.Wait()

		if n := failed.Load(); n > 0 {
			c.warn(r, Warning{
				Category: CategoryBatch,
				Path:     dir,
				Message:  fmt.Sprintf("%d tasks failed in batch starting at index %d", n, start),
			})
		}
	}
}

func (c *Cleaner) processEntry(ctx context.Context, r *run, dir string, entry fs.DirEntry, depth int) {
	name := entry.Name()
	if r.skip[name] {
		return
	}

	path := c.fsys.Join(dir, name)
	if r.targets[name] {
		if !c.opts.DryRun {
			if err := c.fsys.RemoveAll(ctx, path); err != nil {
				c.fail(r, OpRemove, path, err)
				return
			}
		}
		r.deleted.Add(1)
		r.noteDeleted(path)
		r.rec.deletedPath(path)
		c.log.Debug("removed", zap.String("path", path), zap.Bool("dry_run", c.opts.DryRun))
		return
	}

	if entry.IsDir() {
		c.cleanLevel(ctx, r, path, depth+1)
	}
}

// fail classifies err and records the matching warning. A missing entry is
// benign: a sibling branch or an earlier batch got there first. A cancelled
// run is reported once by Clean, not per entry.
func (c *Cleaner) fail(r *run, op, path string, err error) {
	switch Classify(err) {
	case "":
		c.log.Debug("entry skipped", zap.String("op", op), zap.String("path", path), zap.Error(err))
	case CategoryPermission:
		c.warn(r, Warning{Category: CategoryPermission, Op: op, Path: path, Message: err.Error()})
	default:
		c.warn(r, Warning{Category: CategoryError, Op: op, Path: path, Message: err.Error()})
	}
}

func (c *Cleaner) warn(r *run, w Warning) {
	r.warnings.Add(1)
	r.rec.warn(w)
	c.log.Warn(w.String(), zap.String("category", string(w.Category)))
}

// Classify maps a filesystem error to a warning category. It returns the
// empty category for nil, not-found and context errors, which are not
// reported.
func Classify(err error) Category {
	switch {
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ""
	case errors.Is(err, fs.ErrPermission):
		return CategoryPermission
	default:
		return CategoryError
	}
}
