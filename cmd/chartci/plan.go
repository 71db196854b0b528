package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chartci/internal/core"
)

func newPlanCmd(opts *rootOptions) *cobra.Command {
	ev := &eventFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which jobs an event starts, without running them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			event, err := ev.payload().ToEvent(a.cfg.MainBranch)
			if err != nil {
				return err
			}
			elig, err := core.Evaluate(a.pipeline, event)
			if err != nil {
				return err
			}
			order, err := core.Resolve(a.pipeline.Jobs, elig.Jobs)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for i, j := range order {
				cond := "runs"
				if !elig.Conditions[j.Name] {
					cond = "skipped: condition not met"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, j.Name, cond)
			}
			return tw.Flush()
		},
	}
	addEventFlags(cmd, ev)
	return cmd
}
