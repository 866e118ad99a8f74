// Package cli implements the Janus command-line interface using Cobra.
// Each subcommand maps to a governance capability (serve, polls, params,
// consensus, actions).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "janus",
	Short: "Janus — dual-identity governance engine",
	Long: `Janus is the governance engine for dual-identity communities.
Every verified human votes twice: once as their public self, once as an
anonymous shadow. Janus runs the polls, weighs the votes, settles the
stakes, and keeps the rollback protocol honest.`,
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
