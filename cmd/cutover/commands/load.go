package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cutoverhq/cutover/pkg/engine"
	"github.com/cutoverhq/cutover/pkg/planfile"
	"github.com/cutoverhq/cutover/pkg/stores"
)

func newLoadCommand() *cobra.Command {
	var (
		teams []string
	)

	cmd := &cobra.Command{
		Use:   "load <plan-file>",
		Short: "Load a plan template into the database",
		Long: `Compile a YAML plan file and persist the resulting template nodes.

Teams referenced by the plan are created as part of the load. Pass each team
as name=email; the plan's owner fields must match the names.`,
		Example: `  # Load a plan with its owning teams
  cutover load ./plan.yaml --team network=net@example.com --team storage=sto@example.com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			doc, err := planfile.ParseFile(path)
			if err != nil {
				return fmt.Errorf("plan file is invalid: %w", err)
			}

			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			defer store.Close()
			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}

			registry := engine.NewStatusRegistry()
			if err := registry.SeedDefaults(); err != nil {
				return fmt.Errorf("failed to seed statuses: %w", err)
			}
			catalog := engine.NewTemplateCatalog()
			eng := engine.New(registry, catalog, engine.WithPersister(store))

			// Create the owning teams first so the compiler can resolve names.
			teamIDs := make(map[string]string, len(teams))
			for _, spec := range teams {
				name, email, ok := strings.Cut(spec, "=")
				if !ok {
					return fmt.Errorf("invalid team spec %q, want name=email", spec)
				}
				team, err := eng.CreateTeam(ctx, name, email)
				if err != nil {
					return fmt.Errorf("failed to create team %q: %w", name, err)
				}
				teamIDs[name] = team.ID
			}

			plan, err := planfile.NewCompiler(catalog, teamIDs).Compile(doc)
			if err != nil {
				return fmt.Errorf("plan structure is invalid: %w", err)
			}

			// Persist the compiled template subtree, parents first.
			nodes := 0
			if err := catalog.Walk(plan.ID, func(n *engine.TemplateNode) error {
				if err := store.SaveTemplateNode(ctx, n); err != nil {
					return fmt.Errorf("failed to persist template node %q: %w", n.Name, err)
				}
				nodes++
				return nil
			}); err != nil {
				return err
			}

			log.Info().
				Str("plan_id", plan.ID).
				Str("name", doc.Name).
				Int("nodes", nodes).
				Msg("Plan template loaded")

			fmt.Printf("✅ Loaded plan %q (%d template nodes)\n", doc.Name, nodes)
			fmt.Printf("   Plan template ID: %s\n", plan.ID)

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&teams, "team", nil, "owning teams as name=email")

	return cmd
}
