// Package cli implements the sovictl command-line interface using
// Cobra. Each subcommand maps to a process-boundary entry point from
// spec.md §6.4.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sovictl",
	Short: "sovictl — Device Orchestration Core control plane",
	Long: `sovictl runs and manages the Device Orchestration Core: the
scheduler, session runner, warming engine, and event log that operate
a fleet of physical devices (spec.md §1).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
