package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hunt-dashboard",
		Short: "Alert dashboard API backed by the analytics REST API",
		Long: `hunt-dashboard serves chart-ready timeline, trend and panel data for the
alert dashboard.

Commands:
  serve     Run the HTTP API
  align     Align a saved timeline answer offline`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newAlignCommand())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hunt-dashboard %s\n", version)
		},
	}
}
