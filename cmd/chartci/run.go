package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chartci/internal/core"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	ev := &eventFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for one event",
		Long: `Evaluates the event, resolves the execution plan and runs it to completion.
The exit status is 0 when no job failed and 1 otherwise.`,
		Example: `  chartci run --event push --branch main
  chartci run --event pull_request --branch feature/x
  chartci run --event schedule`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			event, err := ev.payload().ToEvent(a.cfg.MainBranch)
			if err != nil {
				return err
			}
			runner, err := a.newRunner()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			run, err := runner.Run(ctx, a.pipeline, event)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), run.Summary())
			if code := run.ExitCode(); code != 0 {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}
	addEventFlags(cmd, ev)
	return cmd
}

func addEventFlags(cmd *cobra.Command, ev *eventFlags) {
	cmd.Flags().StringVarP(&ev.eventType, "event", "e", "", "Event type: push, pull_request or schedule")
	cmd.Flags().StringVarP(&ev.branch, "branch", "b", "", "Branch the event refers to")
	cmd.Flags().BoolVar(&ev.pullRequest, "pull-request", false, "Mark the event as a pull request")
}

func printSummary(w io.Writer, s core.Summary) {
	fmt.Fprintf(w, "run %s (%s", s.ID, s.Event.Type)
	if s.Event.Branch != "" {
		fmt.Fprintf(w, " %s", s.Event.Branch)
	}
	fmt.Fprintf(w, "): %s", s.Status)
	if s.Cancelled {
		fmt.Fprint(w, " (cancelled)")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range s.Plan {
		res := s.Jobs[name]
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", name, res.Status, res.Reason)
	}
	_ = tw.Flush()
}
