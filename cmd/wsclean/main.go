package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sadopc/wsclean/internal/cleaner"
	"github.com/sadopc/wsclean/internal/config"
	"github.com/sadopc/wsclean/internal/ops"
	"github.com/sadopc/wsclean/internal/remote"
	"github.com/sadopc/wsclean/internal/ui"
	"github.com/sadopc/wsclean/internal/workspace"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev"
)

const defaultSSHPort = 22

// errReported marks a failure the console reporter has already printed.
var errReported = errors.New("cleanup failed")

type options struct {
	delLock    bool
	dryRun     bool
	progress   bool
	findRoot   bool
	report     string
	envFile    string
	ssh        string
	sshPort    int
	sshBatch   bool
	sshTimeout int
	remotePath string
	debug      bool
	noColor    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "wsclean",
		Short: "Remove build artifacts from a workspace tree",
		Long: `wsclean walks the current directory and deletes every node_modules,
dist, .turbo and dist.zip it finds, without entering .git, .idea,
.vscode or .DS_Store. Matched directories are removed whole and never
descended into. Problems with single entries are reported as warnings and
do not stop the run.`,
		Example: `  wsclean                         Clean the current directory
  wsclean --del-lock              Also delete the workspace lock file
  wsclean --dry-run --report -    List matches as JSON without deleting
  wsclean --find-root --progress  Clean the enclosing workspace with a live view
  wsclean --ssh ci@build01 --remote-path /srv/app`,
		Args:          cobra.NoArgs,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate("wsclean {{.Version}}\n")
	cmd.AddCommand(newShowCmd(stdout, stderr))

	f := cmd.Flags()
	f.BoolVar(&opts.delLock, "del-lock", false, "Also delete the workspace lock file ("+config.DefaultLockFile+" unless "+config.EnvLockFile+" is set)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Report what would be deleted without removing anything")
	f.BoolVar(&opts.progress, "progress", false, "Show a live progress view while cleaning (terminal only)")
	f.BoolVar(&opts.findRoot, "find-root", false, "Clean the nearest ancestor directory containing the lock file")
	f.StringVar(&opts.report, "report", "", "Write a JSON run report to `FILE` ('-' for stdout)")
	f.StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "Optional dotenv file with "+"WSCLEAN_* settings")
	f.StringVar(&opts.ssh, "ssh", "", "Clean a remote tree over SFTP on `user@host`")
	f.IntVar(&opts.sshPort, "ssh-port", defaultSSHPort, "SSH port for remote cleanup")
	f.BoolVar(&opts.sshBatch, "ssh-batch", false, "Disable SSH password and host-key prompts (key/agent auth only)")
	f.IntVar(&opts.sshTimeout, "ssh-timeout", 15, "SSH connection timeout in seconds")
	f.StringVar(&opts.remotePath, "remote-path", ".", "Remote directory to clean (with --ssh)")
	f.BoolVar(&opts.debug, "debug", false, "Log traversal details to stderr")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colors and emoji")

	return cmd
}

func run(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	if err := validateOptions(opts); err != nil {
		return err
	}

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}

	log := newLogger(opts.debug, stderr)
	defer func() { _ = log.Sync() }()

	// Keep stdout clean for a JSON report.
	consoleOut := stdout
	if opts.report == "-" {
		consoleOut = stderr
	}
	rep := ui.NewConsoleReporter(consoleOut, stderr, !opts.noColor && isTerminal(consoleOut))

	fsys, root, closeFS, err := openFS(ctx, opts, cfg)
	if err != nil {
		rep.Failed(err)
		return errReported
	}
	defer func() {
		if err := closeFS(); err != nil {
			log.Debug("closing filesystem", zap.Error(err))
		}
	}()

	copts := cleaner.DefaultOptions()
	copts.Skip = cfg.Skip()
	copts.DryRun = opts.dryRun
	targets := cfg.Targets(opts.delLock)

	var res *cleaner.Result
	if opts.progress && isTerminal(stderr) {
		c := cleaner.New(fsys, copts, nil, log)
		rep.Started(root, targets, opts.dryRun)
		res, err = ui.Run(ctx, stderr, root, targets, opts.dryRun,
			func(ctx context.Context, progress chan<- cleaner.Progress) (*cleaner.Result, error) {
				return c.Clean(ctx, root, targets, progress)
			})
		if err == nil {
			rep.Replay(res)
		}
	} else {
		res, err = cleaner.New(fsys, copts, rep, log).Clean(ctx, root, targets, nil)
	}
	if err != nil {
		rep.Failed(err)
		return errReported
	}

	if opts.report != "" {
		if err := ops.ExportReport(res, opts.report, version); err != nil {
			return fmt.Errorf("cannot write report: %w", err)
		}
		if opts.report != "-" {
			log.Debug("report written", zap.String("path", opts.report))
		}
	}
	return nil
}

func validateOptions(opts *options) error {
	if opts.sshPort < 1 || opts.sshPort > 65535 {
		return fmt.Errorf("ssh-port must be between 1 and 65535")
	}
	if opts.sshTimeout < 1 {
		return fmt.Errorf("ssh-timeout must be at least 1 second")
	}
	if opts.ssh == "" {
		return nil
	}
	if opts.findRoot {
		return fmt.Errorf("--find-root cannot be used with --ssh")
	}
	return validateRemoteTarget(opts.ssh)
}

// openFS returns the filesystem to clean, its root and a closer.
func openFS(ctx context.Context, opts *options, cfg config.Config) (cleaner.FS, string, func() error, error) {
	if opts.ssh != "" {
		s, err := remote.Dial(ctx, remote.Config{
			Target:    opts.ssh,
			Port:      opts.sshPort,
			BatchMode: opts.sshBatch,
			Timeout:   time.Duration(opts.sshTimeout) * time.Second,
		}, opts.remotePath)
		if err != nil {
			return nil, "", nil, err
		}
		return s, s.Root(), s.Close, nil
	}

	root, err := resolveLocalRoot(opts.findRoot, cfg.LockFile)
	if err != nil {
		return nil, "", nil, err
	}
	return ops.NewLocalFS(root), root, func() error { return nil }, nil
}

func resolveLocalRoot(findRoot bool, lockFile string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("cannot determine working directory: %w", err)
	}
	root := cwd
	if findRoot {
		if root, err = workspace.FindRoot(cwd, lockFile); err != nil {
			return "", err
		}
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}
	return root, nil
}

func newLogger(debug bool, w io.Writer) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zapcore.DebugLevel)
	return zap.New(core, zap.Development())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// validateRemoteTarget checks a user@host destination before any network
// activity. Ports belong in --ssh-port.
func validateRemoteTarget(raw string) error {
	if strings.ContainsAny(raw, `/\`) || strings.Count(raw, "@") != 1 {
		return fmt.Errorf("invalid remote target %q: expected user@host", raw)
	}

	user, host, _ := strings.Cut(raw, "@")
	if user == "" || host == "" {
		return fmt.Errorf("invalid remote target %q: expected user@host", raw)
	}
	if strings.HasPrefix(user, "-") || strings.HasPrefix(host, "-") {
		return fmt.Errorf("invalid remote target %q", raw)
	}
	if strings.ContainsAny(raw, " \t\n\r") {
		return fmt.Errorf("invalid remote target %q: spaces are not allowed", raw)
	}
	if strings.HasPrefix(host, "[") {
		end := strings.Index(host, "]")
		switch {
		case end == -1:
			return fmt.Errorf("invalid remote target %q: malformed bracketed host", raw)
		case end == 1:
			return fmt.Errorf("invalid remote target %q: empty host", raw)
		case end != len(host)-1:
			rest := host[end+1:]
			if strings.HasPrefix(rest, ":") && isAllDigits(rest[1:]) {
				return fmt.Errorf("remote target %q must not include :port; use --ssh-port", raw)
			}
			return fmt.Errorf("invalid remote target %q: malformed bracketed host", raw)
		}
		return nil
	}
	if strings.Contains(host, "]") {
		return fmt.Errorf("invalid remote target %q: malformed bracketed host", raw)
	}
	if _, port, ok := strings.Cut(host, ":"); ok && strings.Count(host, ":") == 1 && isAllDigits(port) {
		return fmt.Errorf("remote target %q must not include :port; use --ssh-port", raw)
	}
	return nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
