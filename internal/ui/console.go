package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/wsclean/internal/cleaner"
	"github.com/sadopc/wsclean/internal/ui/style"
	"github.com/sadopc/wsclean/internal/util"
)

// ConsoleReporter prints run events as lines. Deletions and the summary go
// to out; warnings and failures go to errOut. It is safe for concurrent use.
type ConsoleReporter struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	theme  style.Theme
	color  bool
}

// NewConsoleReporter creates a reporter. With color false every line is
// plain text with ASCII prefixes.
func NewConsoleReporter(out, errOut io.Writer, color bool) *ConsoleReporter {
	return &ConsoleReporter{
		out:    out,
		errOut: errOut,
		theme:  style.DefaultTheme(),
		color:  color,
	}
}

func (r *ConsoleReporter) Started(root string, targets []string, dryRun bool) {
	banner := "Starting cleanup of targets: "
	if dryRun {
		banner = "Starting dry run for targets: "
	}
	if r.color {
		banner = r.theme.GradientText(strings.TrimSuffix(banner, " ")) + " "
	}
	r.line(r.out, util.GlyphStart, banner+
		r.paint(r.theme.Label, strings.Join(targets, ", "))+
		" from root: "+
		r.paint(r.theme.PathText, root))
	r.line(r.out, util.GlyphScan, r.paint(r.theme.MutedText, "Scanning for cleanup targets..."))
}

func (r *ConsoleReporter) Deleted(path string, dryRun bool) {
	if dryRun {
		r.line(r.out, util.GlyphDryRun, r.paint(r.theme.DryRunText, "Would delete: ")+path)
		return
	}
	r.line(r.out, util.GlyphDeleted, r.paint(r.theme.DeletedText, "Deleted: ")+path)
}

func (r *ConsoleReporter) Warned(w cleaner.Warning) {
	switch w.Category {
	case cleaner.CategoryPermission:
		r.line(r.errOut, util.GlyphPermission, r.paint(r.theme.ErrorText, w.String()))
	case cleaner.CategoryError:
		r.line(r.errOut, util.GlyphError, r.paint(r.theme.ErrorText, w.String()))
	default:
		r.line(r.errOut, util.GlyphWarning, r.paint(r.theme.WarningText, w.String()))
	}
}

func (r *ConsoleReporter) Finished(res *cleaner.Result) {
	if res.DryRun {
		r.line(r.out, util.GlyphDryRun, r.paint(r.theme.MutedText,
			fmt.Sprintf("Dry run: %d entries would be deleted, nothing was removed", len(res.Deleted))))
	}
	if n := len(res.Warnings); n > 0 {
		r.line(r.errOut, util.GlyphWarning, r.paint(r.theme.WarningText,
			fmt.Sprintf("%d warnings, see above", n)))
	}
	r.line(r.out, util.GlyphDone, r.paint(r.theme.Title,
		"Cleanup completed in "+util.FormatSeconds(res.Elapsed)))
}

// Failed reports an error that ended the run.
func (r *ConsoleReporter) Failed(err error) {
	r.line(r.errOut, util.GlyphFatal, r.paint(r.theme.ErrorText,
		"Unexpected error during cleanup: "+err.Error()))
}

// Replay prints a finished Result as if it had been reported live. The
// progress view uses it once the terminal is released.
func (r *ConsoleReporter) Replay(res *cleaner.Result) {
	for _, p := range res.Deleted {
		r.Deleted(p, res.DryRun)
	}
	for _, w := range res.Warnings {
		r.Warned(w)
	}
	r.Finished(res)
}

func (r *ConsoleReporter) paint(st lipgloss.Style, s string) string {
	if !r.color {
		return s
	}
	return st.Render(s)
}

func (r *ConsoleReporter) line(w io.Writer, kind util.GlyphKind, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(w, "%s %s\n", util.Glyph(kind, !r.color), msg)
}
