// Command chartci runs the chart repository pipeline locally, serves it
// behind a webhook endpoint and manages the signed run ledger.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath   string
	pipelinePath string
	verbose      bool
}

// exitCodeError carries a process exit code without printing anything.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "chartci",
		Short:         "Pipeline runner for the chart repository",
		Long:          "chartci decides which jobs an event starts, runs them in dependency order, hands the coverage artifact to the badge job and invokes the upgrade bot.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to chartci.yaml (defaults plus environment when empty)")
	root.PersistentFlags().StringVar(&opts.pipelinePath, "pipeline", "", "Pipeline file; overrides the config and the built-in pipeline")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print debug logs")

	root.AddCommand(
		newRunCmd(opts),
		newPlanCmd(opts),
		newServeCmd(opts),
		newTriggerCmd(opts),
		newLedgerCmd(opts),
		newKeygenCmd(),
	)
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		var exit *exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
