// sqsworker serves an application behind the worker-tier daemon interceptor.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set by ldflags at build time.
var version = "dev"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("sqsworker exited")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sqsworker",
		Short:         "Run periodic tasks and signed jobs delivered by the worker-tier daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSignCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func configPathFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", os.Getenv("SQSWORKER_CONFIG"), "path to YAML config (env: SQSWORKER_CONFIG)")
}
