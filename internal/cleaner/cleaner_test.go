package cleaner_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sadopc/wsclean/internal/cleaner"
	"github.com/sadopc/wsclean/internal/ops"
)

var defaultTargets = []string{"node_modules", "dist", ".turbo", "dist.zip"}

// hookFS wraps the local filesystem, recording listings and letting tests
// inject failures.
type hookFS struct {
	*ops.LocalFS

	onRead   func(dir string) error
	onRemove func(path string) error

	mu     sync.Mutex
	listed []string
}

func newHookFS(root string) *hookFS {
	return &hookFS{LocalFS: ops.NewLocalFS(root)}
}

func (h *hookFS) ReadDir(ctx context.Context, dir string) ([]fs.DirEntry, error) {
	h.mu.Lock()
	h.listed = append(h.listed, dir)
	h.mu.Unlock()
	if h.onRead != nil {
		if err := h.onRead(dir); err != nil {
			return nil, err
		}
	}
	return h.LocalFS.ReadDir(ctx, dir)
}

func (h *hookFS) RemoveAll(ctx context.Context, path string) error {
	if h.onRemove != nil {
		if err := h.onRemove(path); err != nil {
			return err
		}
	}
	return h.LocalFS.RemoveAll(ctx, path)
}

func (h *hookFS) wasListed(dir string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.listed {
		if d == dir {
			return true
		}
	}
	return false
}

type recordingReporter struct {
	mu       sync.Mutex
	started  int
	deleted  []string
	warnings []cleaner.Warning
	finished *cleaner.Result
}

func (r *recordingReporter) Started(string, []string, bool) {
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
}

func (r *recordingReporter) Deleted(path string, _ bool) {
	r.mu.Lock()
	r.deleted = append(r.deleted, path)
	r.mu.Unlock()
}

func (r *recordingReporter) Warned(w cleaner.Warning) {
	r.mu.Lock()
	r.warnings = append(r.warnings, w)
	r.mu.Unlock()
}

func (r *recordingReporter) Finished(res *cleaner.Result) {
	r.mu.Lock()
	r.finished = res
	r.mu.Unlock()
}

func mkfile(t *testing.T, root string, rel ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{root}, rel...)...)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Lstat(path)
	if err == nil {
		return true
	}
	if !os.IsNotExist(err) {
		t.Fatalf("lstat %s: %v", path, err)
	}
	return false
}

func clean(t *testing.T, fsys cleaner.FS, root string, targets []string, opts cleaner.Options, rep cleaner.Reporter) *cleaner.Result {
	t.Helper()
	res, err := cleaner.New(fsys, opts, rep, nil).Clean(context.Background(), root, targets, nil)
	if err != nil {
		t.Fatalf("Clean returned error: %v", err)
	}
	return res
}

func TestClean_SkipsGitAndKeepsSources(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "node_modules", "react", "index.js")
	nested := mkfile(t, root, ".git", "node_modules", "fake.js")
	app := mkfile(t, root, "src", "app.ts")

	fsys := newHookFS(root)
	res := clean(t, fsys, root, defaultTargets, cleaner.DefaultOptions(), nil)

	if exists(t, filepath.Join(root, "node_modules")) {
		t.Fatal("root node_modules should be deleted")
	}
	if !exists(t, nested) {
		t.Fatal(".git/node_modules should be untouched")
	}
	if !exists(t, app) {
		t.Fatal("src/app.ts should be untouched")
	}
	if fsys.wasListed(filepath.Join(root, ".git")) {
		t.Fatal(".git must never be listed")
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", res.Warnings)
	}
	if len(res.Deleted) != 1 {
		t.Fatalf("expected 1 deletion, got %v", res.Deleted)
	}
}

func TestClean_SkipSetWinsOverTargets(t *testing.T) {
	root := t.TempDir()
	ide := mkfile(t, root, ".idea", "workspace.xml")

	clean(t, newHookFS(root), root, append([]string{".idea"}, defaultTargets...), cleaner.DefaultOptions(), nil)

	if !exists(t, ide) {
		t.Fatal("a name in both sets must be skipped, not deleted")
	}
}

func TestClean_MatchedDirectoriesAreNeverListed(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "apps", "web", "dist", "assets", "main.js")
	mkfile(t, root, "apps", "web", ".turbo", "turbo-build.log")
	zip := mkfile(t, root, "apps", "web", "dist.zip")
	keep := mkfile(t, root, "apps", "web", "package.json")

	fsys := newHookFS(root)
	clean(t, fsys, root, defaultTargets, cleaner.DefaultOptions(), nil)

	for _, name := range []string{"dist", ".turbo"} {
		dir := filepath.Join(root, "apps", "web", name)
		if fsys.wasListed(dir) {
			t.Fatalf("%s matched a target and must not be listed", dir)
		}
		if exists(t, dir) {
			t.Fatalf("%s should be deleted", dir)
		}
	}
	if exists(t, zip) {
		t.Fatal("dist.zip should be deleted")
	}
	if !exists(t, keep) {
		t.Fatal("package.json should be untouched")
	}
}

func TestClean_SecondRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "packages", "ui", "node_modules", "x.js")
	mkfile(t, root, "packages", "ui", "dist", "index.js")

	first := clean(t, newHookFS(root), root, defaultTargets, cleaner.DefaultOptions(), nil)
	if len(first.Deleted) != 2 {
		t.Fatalf("expected 2 deletions on first run, got %v", first.Deleted)
	}

	second := clean(t, newHookFS(root), root, defaultTargets, cleaner.DefaultOptions(), nil)
	if len(second.Deleted) != 0 {
		t.Fatalf("expected no deletions on second run, got %v", second.Deleted)
	}
	if len(second.Warnings) != 0 {
		t.Fatalf("expected no warnings on second run, got %v", second.Warnings)
	}
}

func TestClean_DepthGuardLeavesDeepTree(t *testing.T) {
	root := t.TempDir()
	parts := []string{}
	for i := 1; i <= 11; i++ {
		parts = append(parts, fmt.Sprintf("d%d", i))
	}
	deepDir := filepath.Join(append([]string{root}, parts...)...)
	deep := mkfile(t, deepDir, "node_modules", "deep.js")
	lastAllowed := mkfile(t, filepath.Dir(deepDir), "node_modules", "ok.js")
	shallow := mkfile(t, root, "d1", "node_modules", "shallow.js")

	rep := &recordingReporter{}
	res := clean(t, newHookFS(root), root, defaultTargets, cleaner.DefaultOptions(), rep)

	if !exists(t, deep) {
		t.Fatal("node_modules below the depth limit should be untouched")
	}
	if exists(t, lastAllowed) {
		t.Fatal("node_modules in the deepest allowed directory should be deleted")
	}
	if exists(t, shallow) {
		t.Fatal("shallow sibling should still be cleaned")
	}
	if res.WarningCount(cleaner.CategoryDepth) != 1 {
		t.Fatalf("expected one depth warning, got %v", res.Warnings)
	}
	if w := res.Warnings[0]; w.Path != deepDir {
		t.Fatalf("depth warning should name %s, got %s", deepDir, w.Path)
	}
	if !strings.Contains(res.Warnings[0].String(), "Max recursion depth reached at") {
		t.Fatalf("unexpected depth warning text: %s", res.Warnings[0])
	}
	if len(rep.warnings) != 1 {
		t.Fatalf("expected reporter to receive the depth warning, got %v", rep.warnings)
	}
}

func TestClean_LockFileOnlyWhenTargeted(t *testing.T) {
	root := t.TempDir()
	lock := mkfile(t, root, "pnpm-lock.yaml")

	clean(t, newHookFS(root), root, defaultTargets, cleaner.DefaultOptions(), nil)
	if !exists(t, lock) {
		t.Fatal("lock file should survive without it in the target set")
	}

	clean(t, newHookFS(root), root, append(defaultTargets, "pnpm-lock.yaml"), cleaner.DefaultOptions(), nil)
	if exists(t, lock) {
		t.Fatal("lock file should be deleted when targeted")
	}
}

func TestClean_PermissionDeniedListingIsIsolated(t *testing.T) {
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	hidden := mkfile(t, locked, "node_modules", "a.js")
	other := mkfile(t, root, "open", "dist", "b.js")

	fsys := newHookFS(root)
	fsys.onRead = func(dir string) error {
		if dir == locked {
			return &fs.PathError{Op: "open", Path: dir, Err: fs.ErrPermission}
		}
		return nil
	}

	res := clean(t, fsys, root, defaultTargets, cleaner.DefaultOptions(), nil)

	if res.WarningCount(cleaner.CategoryPermission) != 1 {
		t.Fatalf("expected one permission warning, got %v", res.Warnings)
	}
	w := res.Warnings[0]
	if w.Path != locked || w.Op != cleaner.OpList {
		t.Fatalf("unexpected warning: %+v", w)
	}
	if !exists(t, hidden) {
		t.Fatal("subtree of unreadable directory should be skipped")
	}
	if exists(t, other) {
		t.Fatal("unrelated branch should still be cleaned")
	}
}

func TestClean_VanishedEntriesAreSilent(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "gone", "x.txt")
	mkfile(t, root, "dist", "y.js")

	fsys := newHookFS(root)
	fsys.onRead = func(dir string) error {
		if filepath.Base(dir) == "gone" {
			return &fs.PathError{Op: "open", Path: dir, Err: fs.ErrNotExist}
		}
		return nil
	}
	fsys.onRemove = func(path string) error {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}

	rep := &recordingReporter{}
	res := clean(t, fsys, root, defaultTargets, cleaner.DefaultOptions(), rep)
	if len(res.Warnings) != 0 || len(rep.warnings) != 0 {
		t.Fatalf("not-found must be silent, got %v", res.Warnings)
	}
	if len(res.Deleted) != 0 {
		t.Fatalf("vanished entry should not be reported as deleted, got %v", res.Deleted)
	}
}

func TestClean_TargetRemovedByOthersIsNotReported(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "dist", "x.js")
	kept := mkfile(t, root, "src", "main.ts")

	fsys := newHookFS(root)
	fsys.onRemove = func(path string) error {
		// Something else removes the entry between listing and removal.
		return os.RemoveAll(path)
	}

	rep := &recordingReporter{}
	res := clean(t, fsys, root, defaultTargets, cleaner.DefaultOptions(), rep)
	if len(res.Deleted) != 0 || len(rep.deleted) != 0 {
		t.Fatalf("entry removed by someone else must not be reported, got %v", res.Deleted)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", res.Warnings)
	}
	if !exists(t, kept) {
		t.Fatal("sources should be untouched")
	}
}

func TestClean_CanceledRemovalIsNotWarned(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "node_modules", "a.js")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fsys := newHookFS(root)
	fsys.onRemove = func(string) error {
		cancel()
		return ctx.Err()
	}

	rep := &recordingReporter{}
	res, err := cleaner.New(fsys, cleaner.DefaultOptions(), rep, nil).Clean(ctx, root, defaultTargets, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.Warnings) != 0 || len(rep.warnings) != 0 {
		t.Fatalf("cancellation must not produce per-entry warnings, got %v", res.Warnings)
	}
	if len(res.Deleted) != 0 {
		t.Fatalf("cancelled removal must not be reported as deleted, got %v", res.Deleted)
	}
}

func TestClean_GenericRemoveErrorIsLabelled(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "a", "dist", "x.js")
	okDist := mkfile(t, root, "b", "dist", "y.js")

	busy := filepath.Join(root, "a", "dist")
	fsys := newHookFS(root)
	fsys.onRemove = func(path string) error {
		if path == busy {
			return errors.New("device busy")
		}
		return nil
	}

	res := clean(t, fsys, root, defaultTargets, cleaner.DefaultOptions(), nil)
	if res.WarningCount(cleaner.CategoryError) != 1 {
		t.Fatalf("expected one generic warning, got %v", res.Warnings)
	}
	w := res.Warnings[0]
	if w.Op != cleaner.OpRemove || w.Message != "device busy" {
		t.Fatalf("unexpected warning: %+v", w)
	}
	if !strings.HasPrefix(w.String(), "Error handling ") {
		t.Fatalf("unexpected warning text: %s", w)
	}
	if exists(t, okDist) {
		t.Fatal("sibling branch should still be cleaned")
	}
}

func TestClean_PanickingTaskIsCountedPerBatch(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "boom", "x.txt")
	dist := mkfile(t, root, "dist", "x.js")

	fsys := newHookFS(root)
	fsys.onRead = func(dir string) error {
		if filepath.Base(dir) == "boom" {
			panic("listing exploded")
		}
		return nil
	}

	res := clean(t, fsys, root, defaultTargets, cleaner.DefaultOptions(), nil)
	if res.WarningCount(cleaner.CategoryBatch) != 1 {
		t.Fatalf("expected one batch warning, got %v", res.Warnings)
	}
	w := res.Warnings[0]
	if w.Path != root || !strings.HasPrefix(w.Message, "1 tasks failed in batch starting at index 0") {
		t.Fatalf("unexpected batch warning: %+v", w)
	}
	if exists(t, dist) {
		t.Fatal("other tasks of the batch should complete")
	}
}

func TestClean_BatchesAreBoundedAndOrdered(t *testing.T) {
	root := t.TempDir()
	var targets []string
	for i := 0; i < 25; i++ {
		name := fmt.Sprintf("t%02d", i)
		targets = append(targets, name)
		mkfile(t, root, name)
	}

	var mu sync.Mutex
	inFlight, maxInFlight, completed := 0, 0, 0
	var orderViolation error

	fsys := newHookFS(root)
	fsys.onRemove = func(path string) error {
		var idx int
		if _, err := fmt.Sscanf(filepath.Base(path), "t%02d", &idx); err != nil {
			return err
		}
		mu.Lock()
		if completed < (idx/10)*10 && orderViolation == nil {
			orderViolation = fmt.Errorf("%s started before its previous batch settled (%d done)", path, completed)
		}
		inFlight++
		maxInFlight = max(maxInFlight, inFlight)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		completed++
		mu.Unlock()
		return nil
	}

	res := clean(t, fsys, root, targets, cleaner.DefaultOptions(), nil)
	if orderViolation != nil {
		t.Fatal(orderViolation)
	}
	if maxInFlight > cleaner.DefaultConcurrency {
		t.Fatalf("expected at most %d concurrent removals, saw %d", cleaner.DefaultConcurrency, maxInFlight)
	}
	if len(res.Deleted) != 25 {
		t.Fatalf("expected 25 deletions, got %d", len(res.Deleted))
	}
}

func TestClean_RecentDeletionsAreCapped(t *testing.T) {
	root := t.TempDir()
	var targets []string
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("t%02d", i)
		targets = append(targets, name)
		mkfile(t, root, name)
	}

	progress := make(chan cleaner.Progress, 64)
	if _, err := cleaner.New(newHookFS(root), cleaner.DefaultOptions(), nil, nil).
		Clean(context.Background(), root, targets, progress); err != nil {
		t.Fatalf("Clean returned error: %v", err)
	}
	close(progress)

	var last cleaner.Progress
	for p := range progress {
		last = p
	}
	if len(last.Recent) != 8 {
		t.Fatalf("expected the last 8 deletions, got %d: %v", len(last.Recent), last.Recent)
	}
}

func TestClean_DryRunKeepsFiles(t *testing.T) {
	root := t.TempDir()
	mods := mkfile(t, root, "node_modules", "a.js")

	opts := cleaner.DefaultOptions()
	opts.DryRun = true
	rep := &recordingReporter{}
	res := clean(t, newHookFS(root), root, defaultTargets, opts, rep)

	if !exists(t, mods) {
		t.Fatal("dry run must not delete anything")
	}
	if !res.DryRun || len(res.Deleted) != 1 || len(rep.deleted) != 1 {
		t.Fatalf("expected one reported match, got %+v", res)
	}
	if rep.started != 1 || rep.finished != res {
		t.Fatal("reporter should see start and finish events")
	}
}

func TestClean_DeletedPathsInNaturalOrder(t *testing.T) {
	root := t.TempDir()
	for _, app := range []string{"app10", "app2", "app1"} {
		mkfile(t, root, app, "dist", "x.js")
	}

	res := clean(t, newHookFS(root), root, defaultTargets, cleaner.DefaultOptions(), nil)
	want := []string{
		filepath.Join(root, "app1", "dist"),
		filepath.Join(root, "app2", "dist"),
		filepath.Join(root, "app10", "dist"),
	}
	if len(res.Deleted) != len(want) {
		t.Fatalf("expected %v, got %v", want, res.Deleted)
	}
	for i := range want {
		if res.Deleted[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, res.Deleted)
		}
	}
}

func TestClean_ProgressEndsWithDoneSnapshot(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "dist", "x.js")

	progress := make(chan cleaner.Progress, 64)
	res, err := cleaner.New(newHookFS(root), cleaner.DefaultOptions(), nil, nil).
		Clean(context.Background(), root, defaultTargets, progress)
	if err != nil {
		t.Fatalf("Clean returned error: %v", err)
	}
	close(progress)

	var last cleaner.Progress
	for p := range progress {
		last = p
	}
	if !last.Done {
		t.Fatal("expected final progress snapshot to be marked done")
	}
	if last.Deleted != int64(len(res.Deleted)) || last.DirsListed != res.DirsListed {
		t.Fatalf("final snapshot %+v does not match result %+v", last, res)
	}
	if len(last.Recent) != 1 || last.Recent[0] != filepath.Join(root, "dist") {
		t.Fatalf("expected recent deletions to name dist, got %v", last.Recent)
	}
}

func TestClean_CanceledContextReturnsError(t *testing.T) {
	root := t.TempDir()
	mods := mkfile(t, root, "node_modules", "a.js")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := cleaner.New(newHookFS(root), cleaner.DefaultOptions(), nil, nil).Clean(ctx, root, defaultTargets, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res == nil {
		t.Fatal("expected partial result even on cancellation")
	}
	if !exists(t, mods) {
		t.Fatal("nothing should be removed after cancellation")
	}
}

func TestClean_RequiresRoot(t *testing.T) {
	_, err := cleaner.New(newHookFS("/"), cleaner.DefaultOptions(), nil, nil).Clean(context.Background(), " ", defaultTargets, nil)
	if err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want cleaner.Category
	}{
		{nil, ""},
		{fmt.Errorf("wrapped: %w", fs.ErrNotExist), ""},
		{&fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, cleaner.CategoryPermission},
		{fmt.Errorf("remove: %w", context.Canceled), ""},
		{context.DeadlineExceeded, ""},
		{errors.New("disk on fire"), cleaner.CategoryError},
	}
	for _, tc := range cases {
		if got := cleaner.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestProgress_DirsPerSecond(t *testing.T) {
	if (cleaner.Progress{DirsListed: 10}).DirsPerSecond() != 0 {
		t.Fatal("zero duration should yield zero rate")
	}
	p := cleaner.Progress{DirsListed: 50, Duration: 2 * time.Second}
	if got := p.DirsPerSecond(); got != 25 {
		t.Fatalf("expected 25 dirs/s, got %v", got)
	}
}
