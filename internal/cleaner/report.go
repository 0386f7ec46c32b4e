package cleaner

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maruel/natural"
)

// Category classifies a warning produced during a run.
type Category string

const (
	// CategoryPermission marks an access or permission failure.
	CategoryPermission Category = "permission"
	// CategoryError marks any other filesystem failure.
	CategoryError Category = "error"
	// CategoryDepth marks a subtree abandoned by the depth guard.
	CategoryDepth Category = "depth"
	// CategoryBatch marks a batch in which some tasks did not settle normally.
	CategoryBatch Category = "batch"
)

// Operation names attached to permission and error warnings.
const (
	OpList   = "list"
	OpRemove = "remove"
)

// Warning is a recovered, non-fatal problem. The path it names was abandoned;
// the rest of the run continued.
type Warning struct {
	Category Category `json:"category"`
	Op       string   `json:"op,omitempty"`
	Path     string   `json:"path"`
	Message  string   `json:"message,omitempty"`
}

func (w Warning) String() string {
	switch w.Category {
	case CategoryPermission:
		if w.Op == OpList {
			return fmt.Sprintf("Permission denied: cannot read directory %s", w.Path)
		}
		return fmt.Sprintf("Permission denied: %s", w.Path)
	case CategoryDepth:
		return fmt.Sprintf("Max recursion depth reached at: %s", w.Path)
	case CategoryBatch:
		return fmt.Sprintf("%s in directory: %s", w.Message, w.Path)
	default:
		if w.Op == OpList {
			return fmt.Sprintf("Cannot read directory %s: %s", w.Path, w.Message)
		}
		return fmt.Sprintf("Error handling %s: %s", w.Path, w.Message)
	}
}

// Reporter receives the observable events of a run. Implementations must be
// safe for concurrent use: Deleted and Warned are called from batch workers.
type Reporter interface {
	Started(root string, targets []string, dryRun bool)
	Deleted(path string, dryRun bool)
	Warned(w Warning)
	Finished(res *Result)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) Started(string, []string, bool) {}
func (NopReporter) Deleted(string, bool)           {}
func (NopReporter) Warned(Warning)                 {}
func (NopReporter) Finished(*Result)               {}

// Result summarizes a completed run.
type Result struct {
	Root       string        `json:"root"`
	Targets    []string      `json:"targets"`
	DryRun     bool          `json:"dry_run,omitempty"`
	Deleted    []string      `json:"deleted"`
	Warnings   []Warning     `json:"warnings"`
	DirsListed int64         `json:"dirs_listed"`
	StartTime  time.Time     `json:"start_time"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// WarningCount returns the number of warnings in the given category.
func (r *Result) WarningCount(c Category) int {
	n := 0
	for _, w := range r.Warnings {
		if w.Category == c {
			n++
		}
	}
	return n
}

// recorder accumulates a Result from concurrent batch workers and forwards
// each event to the Reporter.
type recorder struct {
	mu       sync.Mutex
	rep      Reporter
	dryRun   bool
	deleted  []string
	warnings []Warning
}

func (r *recorder) deletedPath(path string) {
	r.mu.Lock()
	r.deleted = append(r.deleted, path)
	r.mu.Unlock()
	r.rep.Deleted(path, r.dryRun)
}

func (r *recorder) warn(w Warning) {
	r.mu.Lock()
	r.warnings = append(r.warnings, w)
	r.mu.Unlock()
	r.rep.Warned(w)
}

func (r *recorder) fill(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res.Deleted = append([]string(nil), r.deleted...)
	sort.Slice(res.Deleted, func(i, j int) bool {
		return natural.Less(strings.ToLower(res.Deleted[i]), strings.ToLower(res.Deleted[j]))
	})
	res.Warnings = append([]Warning(nil), r.warnings...)
}
