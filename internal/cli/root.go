package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string // overrides GIGRANK_DB
	EnvFile  string // .env file to load; ".env" when empty
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the gigrank CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gigrank",
		Short: "gigrank - rank freelance marketplace opportunities",
		Long: `gigrank ingests marketplace export files and crawler runs into one
SQLite store and keeps keyword and job opportunity scores up to date.

Settings come from the environment (optionally a .env file); flags override.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $GIGRANK_DB or gigrank.db)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "path to .env file (default .env)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewKeywordsCommand(opts))
	cmd.AddCommand(NewOpportunitiesCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
