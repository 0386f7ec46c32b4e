package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/sadopc/wsclean/internal/cleaner"
	"github.com/sadopc/wsclean/internal/ui/style"
	"github.com/sadopc/wsclean/internal/util"
)

// AppState represents the progress view state.
type AppState int

const (
	StateCleaning AppState = iota
	StateStopping
	StateDone
)

// DoneMsg is sent when the run finishes.
type DoneMsg struct {
	Result *cleaner.Result
	Err    error
}

type tickMsg time.Time

// Runner performs one cleanup, sending snapshots on progress.
type Runner func(ctx context.Context, progress chan<- cleaner.Progress) (*cleaner.Result, error)

// App is the Bubble Tea model of the live progress view.
type App struct {
	Root    string
	Targets []string
	DryRun  bool

	run    Runner
	ctx    context.Context
	cancel context.CancelFunc

	state  AppState
	width  int
	height int

	progress       cleaner.Progress
	progressMu     sync.Mutex
	latestProgress cleaner.Progress

	spinner spinner.Model
	theme   style.Theme
	keys    KeyMap
	layout  style.Layout

	finished chan struct{}
	result   *cleaner.Result
	err      error
}

// NewApp creates the progress model. Cancelling ctx, or pressing a quit key,
// stops the run from listing further directories.
func NewApp(ctx context.Context, root string, targets []string, dryRun bool, run Runner) *App {
	ctx, cancel := context.WithCancel(ctx)
	theme := style.DefaultTheme()
	return &App{
		Root:     root,
		Targets:  targets,
		DryRun:   dryRun,
		run:      run,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateCleaning,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.SpinnerDot)),
		theme:    theme,
		keys:     DefaultKeyMap(),
		layout:   style.NewLayout(80, 24),
		finished: make(chan struct{}),
	}
}

// Run shows the progress view on out while run executes and returns its
// outcome once the run has settled, even if the view is closed early.
func Run(ctx context.Context, out io.Writer, root string, targets []string, dryRun bool, run Runner) (*cleaner.Result, error) {
	app := NewApp(ctx, root, targets, dryRun, run)
	defer app.cancel()

	p := tea.NewProgram(app, tea.WithOutput(out))
	app.start(p.Send)

	if _, err := p.Run(); err != nil {
		app.cancel()
		<-app.finished
		return app.result, fmt.Errorf("progress view: %w", err)
	}
	<-app.finished
	return app.result, app.err
}

// start launches the run in the background. Progress is communicated via
// a.latestProgress (mutex-protected); completion via send.
func (a *App) start(send func(tea.Msg)) {
	go func() {
		progressCh := make(chan cleaner.Progress, 10)
		relayDone := make(chan struct{})

		// Relay progress updates to shared state (read by tickMsg handler)
		go func() {
			defer close(relayDone)
			for p := range progressCh {
				a.progressMu.Lock()
				a.latestProgress = p
				a.progressMu.Unlock()
			}
		}()

		res, err := a.run(a.ctx, progressCh)
		close(progressCh)
		<-relayDone

		a.result, a.err = res, err
		close(a.finished)
		send(DoneMsg{Result: res, Err: err})
	}()
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.tickCmd(), a.spinner.Tick)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout = style.NewLayout(msg.Width, msg.Height)
		return a, nil

	case DoneMsg:
		a.state = StateDone
		a.syncProgress()
		return a, tea.Quit

	case tickMsg:
		if a.state == StateDone {
			return a, nil
		}
		a.syncProgress()
		return a, a.tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.ForceQuit):
		a.cancel()
		a.state = StateStopping
		return a, tea.Quit
	case key.Matches(msg, a.keys.Quit):
		// Wait for DoneMsg so the final snapshot is shown.
		a.cancel()
		if a.state == StateCleaning {
			a.state = StateStopping
		}
		return a, nil
	}
	return a, nil
}

func (a *App) syncProgress() {
	a.progressMu.Lock()
	a.progress = a.latestProgress
	a.progressMu.Unlock()
}

func (a *App) View() string {
	if a.state == StateDone {
		return ""
	}

	title := "Cleaning"
	switch {
	case a.state == StateStopping:
		title = "Stopping"
	case a.DryRun:
		title = "Dry run"
	}

	deletedLabel := "Deleted"
	if a.DryRun {
		deletedLabel = "Matched"
	}

	p := a.progress
	lines := []string{
		a.spinner.View() + " " + a.theme.Title.Render(title) + " " +
			a.theme.MutedText.Render(strings.Join(a.Targets, ", ")),
		"",
		a.theme.StatText.Render(label("Dirs") + util.FormatCount(p.DirsListed)),
		a.theme.StatText.Render(label(deletedLabel) + util.FormatCount(p.Deleted)),
		a.theme.StatText.Render(label("Speed") + util.FormatCount(int64(p.DirsPerSecond())) + " dirs/s"),
	}
	if p.Warnings > 0 {
		lines = append(lines, a.theme.WarningText.Render(label("Warnings")+fmt.Sprint(p.Warnings)))
	}

	current := p.CurrentPath
	if current == "" {
		current = a.Root
	}
	pathWidth := a.layout.PathWidth(labelWidth)
	lines = append(lines,
		"",
		a.theme.MutedText.Render(label("Current"))+a.theme.PathText.Render(TruncatePath(current, pathWidth)),
		a.theme.MutedText.Render(label("Elapsed")+util.FormatSeconds(p.Duration)),
	)

	if recent := tail(p.Recent, a.layout.RecentLines()); len(recent) > 0 {
		pathStyle := a.theme.DeletedText
		if a.DryRun {
			pathStyle = a.theme.DryRunText
		}
		lines = append(lines, "")
		for i, path := range recent {
			name := ""
			if i == 0 {
				name = "Recent"
			}
			lines = append(lines, a.theme.MutedText.Render(label(name))+
				pathStyle.Render(TruncatePath(path, pathWidth)))
		}
	}

	lines = append(lines, "", a.helpLine())

	box := a.theme.BoxStyle.Width(a.layout.BoxWidth()).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, box)
}

// labelWidth is the fixed column of the counter labels.
const labelWidth = 12

// label renders "  Name:" padded to labelWidth; an empty name yields blanks.
func label(name string) string {
	if name == "" {
		return style.FullWidth("", labelWidth)
	}
	return style.FullWidth("  "+name+":", labelWidth)
}

// tail returns the last n elements of s.
func tail(s []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

func (a *App) helpLine() string {
	var parts []string
	for _, b := range []key.Binding{a.keys.Quit, a.keys.ForceQuit} {
		h := b.Help()
		parts = append(parts, a.theme.HelpKey.Render(h.Key)+" "+a.theme.HelpDesc.Render(h.Desc))
	}
	return "  " + strings.Join(parts, "  ")
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// TruncatePath shortens p to width cells, keeping the tail, which names the
// directory actually being listed.
func TruncatePath(p string, width int) string {
	if width <= 0 {
		return ""
	}
	if ansi.StringWidth(p) <= width {
		return p
	}
	if width == 1 {
		return "…"
	}
	return "…" + ansi.TruncateLeft(p, ansi.StringWidth(p)-(width-1), "")
}
