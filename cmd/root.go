package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "j3",
	Short: "Serve stored records as hypermedia resources",
	Long: `j3 exposes stored records as HAL documents over HTTP, with content
negotiation, conditional requests and optimistic concurrency.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits with a non-zero status on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
