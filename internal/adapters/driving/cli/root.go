// Package cli implements the teamsenum command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/teamsenum/internal/logger"
)

var (
	// Version is set by goreleaser ldflags.
	version = "dev"

	// Verbose enables debug logging.
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "teamsenum",
	Short: "Enumerate Microsoft Teams users and their presence",
	Long: `teamsenum checks whether email addresses belong to Microsoft Teams users
and records their presence and out of office notes.

Probes run with your own Teams tokens against the corporate or personal
backends. Results can be written to a JSONL file and logged to SQLite or
PostgreSQL.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("teamsenum %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string for the CLI.
func SetVersion(v string) {
	version = v
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose debug output")
	rootCmd.AddCommand(versionCmd)

	// Use PersistentPreRunE to set verbose mode before any command executes
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		return nil
	}
}
