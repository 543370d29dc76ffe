// Package cli implements the dadbase command-line interface using Cobra.
// Every command except serve works directly against the local store.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "dadbase",
	Short: "dadbase: progression engine for the dad network",
	Long: `dadbase turns dad activity into XP, levels, streaks, badges, titles,
leaderboards and daily quests.

Run 'dadbase serve' for the HTTP API, or use the subcommands to inspect and
adjust progression directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
