package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dbPath     string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cutover",
		Short: "Cutover - Migration Execution State Engine",
		Long: `Cutover tracks the execution state of complex migration events across a
fixed hierarchy: migrations, iterations, plans, sequences, phases, steps,
instructions, and phase-level controls.

Features:
  - Authored plan templates instantiated into per-iteration execution graphs
  - Category-based status machine with predecessor and completion gating
  - Configurable per-kind status registry
  - Immutable audit trail for every transition
  - Policy enforcement via OPA/rego
  - Denormalized progress views for dashboards`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/cutover.db", "SQLite database path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newLoadCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newPoliciesCommand())

	return rootCmd
}
