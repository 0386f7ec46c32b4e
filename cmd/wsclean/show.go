package main

import (
	"io"

	"github.com/sadopc/wsclean/internal/ops"
	"github.com/sadopc/wsclean/internal/ui"
	"github.com/spf13/cobra"
)

func newShowCmd(stdout, stderr io.Writer) *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "show REPORT",
		Short: "Print a saved JSON run report as console output",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			report, err := ops.ReadReport(args[0])
			if err != nil {
				return err
			}
			rep := ui.NewConsoleReporter(stdout, stderr, !noColor && isTerminal(stdout))
			rep.Started(report.Result.Root, report.Result.Targets, report.Result.DryRun)
			rep.Replay(report.Result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors and emoji")
	return cmd
}
