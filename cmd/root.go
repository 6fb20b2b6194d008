package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the support-case bot.
var rootCmd = &cobra.Command{
	Use:   "tgsheetsbot",
	Short: "Telegram support-case bot backed by Google Sheets",
	Long: "Groups forwarded Telegram messages into support cases, captures the " +
		"operator name, and records completed cases as rows of a Google Sheet.",
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
