package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chartci/internal/config"
	"chartci/internal/ledger"
)

func newLedgerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or verify the signed run ledger",
	}

	open := func() (*ledger.Ledger, error) {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		if cfg.LedgerPath == "" {
			return nil, fmt.Errorf("config error: 'ledger_path' is not set")
		}
		return ledger.Open(cfg.LedgerPath, nil)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := open()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tTIME\tRUN\tEVENT\tBRANCH\tSTATUS\tHASH")
			for _, b := range l.Blocks() {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					b.Index, b.Timestamp, b.RunID, b.Event.Type, b.Event.Branch, b.Status, short(b.Hash))
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check hashes, links and signatures",
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := open()
			if err != nil {
				return err
			}
			if err := l.VerifyChain(); err != nil {
				return fmt.Errorf("ledger verification failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger OK: %d blocks\n", l.Len())
			return nil
		},
	})
	return cmd
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
