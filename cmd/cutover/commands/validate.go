package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cutoverhq/cutover/pkg/engine"
	"github.com/cutoverhq/cutover/pkg/planfile"
)

func newValidateCommand() *cobra.Command {
	var (
		teams []string
	)

	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a YAML plan file",
		Long: `Validate a YAML plan file without touching the database.

This command checks:
  - YAML syntax and required fields
  - Hierarchy shape (plan > sequence > phase > step > instruction, controls
    under phases)
  - Predecessor references (same level, no forward references, no cycles)
  - Team references against the --team list`,
		Example: `  # Validate a plan file
  cutover validate ./plan.yaml

  # Validate with known team names
  cutover validate ./plan.yaml --team network --team storage`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			log.Info().Str("path", path).Msg("Validating plan file")

			doc, err := planfile.ParseFile(path)
			if err != nil {
				return fmt.Errorf("plan file is invalid: %w", err)
			}

			// Compile into a throwaway catalog: compilation applies the full
			// structural validation (parent kinds, predecessors, cycles).
			teamIDs := make(map[string]string, len(teams))
			for _, name := range teams {
				teamIDs[name] = "validate-" + name
			}
			catalog := engine.NewTemplateCatalog()
			plan, err := planfile.NewCompiler(catalog, teamIDs).Compile(doc)
			if err != nil {
				return fmt.Errorf("plan structure is invalid: %w", err)
			}

			counts := map[engine.EntityKind]int{}
			if err := catalog.Walk(plan.ID, func(n *engine.TemplateNode) error {
				counts[n.Kind]++
				return nil
			}); err != nil {
				return err
			}

			fmt.Printf("✅ Plan %q is valid\n\n", doc.Name)
			fmt.Printf("  Sequences:    %d\n", counts[engine.KindSequence])
			fmt.Printf("  Phases:       %d\n", counts[engine.KindPhase])
			fmt.Printf("  Steps:        %d\n", counts[engine.KindStep])
			fmt.Printf("  Instructions: %d\n", counts[engine.KindInstruction])
			fmt.Printf("  Controls:     %d\n", counts[engine.KindControl])

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&teams, "team", nil, "team names the plan may reference")

	return cmd
}
