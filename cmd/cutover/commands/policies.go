package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cutoverhq/cutover/pkg/policy"
)

func newPoliciesCommand() *cobra.Command {
	var (
		paths []string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List and reload transition policies",
		Long: `List the built-in transition policies plus any custom Rego policies loaded
from the given paths.

With --watch, the command keeps running and recompiles policies whenever a
watched file changes.`,
		Example: `  # List the built-in policies
  cutover policies

  # Load custom policies from a directory
  cutover policies --path /etc/cutover/policies

  # Hot-reload on changes until interrupted
  cutover policies --path /etc/cutover/policies --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			eng, err := policy.NewEngine(log.Logger)
			if err != nil {
				return fmt.Errorf("failed to initialize policy engine: %w", err)
			}
			if len(paths) > 0 {
				if err := eng.LoadPolicies(ctx, paths); err != nil {
					return fmt.Errorf("failed to load policies: %w", err)
				}
			}

			printPolicies := func() error {
				policies := eng.ListPolicies()
				if jsonOutput {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(policies)
				}
				fmt.Printf("%-28s %-10s %-8s %s\n", "NAME", "SEVERITY", "ENABLED", "DESCRIPTION")
				for _, p := range policies {
					fmt.Printf("%-28s %-10s %-8v %s\n", p.Name, p.Severity, p.Enabled, p.Description)
				}
				return nil
			}

			if err := printPolicies(); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			log.Info().Strs("paths", paths).Msg("Watching policy paths for changes")
			loader := policy.NewLoader(log.Logger)
			return loader.Watch(ctx, paths, func([]policy.Policy) error {
				if err := eng.LoadPolicies(ctx, paths); err != nil {
					return err
				}
				log.Info().Msg("Policies reloaded")
				return printPolicies()
			})
		},
	}

	cmd.Flags().StringSliceVar(&paths, "path", nil, "policy file or directory to load")
	cmd.Flags().BoolVar(&watch, "watch", false, "watch paths and reload on change")

	return cmd
}
