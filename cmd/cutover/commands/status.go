package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cutoverhq/cutover/pkg/engine"
	"github.com/cutoverhq/cutover/pkg/stores"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <graph-id>",
		Short: "Show the execution state of an instance graph",
		Long: `Read the persisted instance nodes of a graph and print their current
statuses with per-level progress.`,
		Example: `  # Show a graph's state
  cutover status 6a1f...

  # Machine-readable output
  cutover status 6a1f... --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			graphID := args[0]

			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			defer store.Close()
			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}

			nodes, err := store.ListInstanceNodes(ctx, graphID)
			if err != nil {
				return fmt.Errorf("failed to read graph: %w", err)
			}
			if len(nodes) == 0 {
				return fmt.Errorf("no instance nodes for graph %s", graphID)
			}

			statuses, err := store.ListStatuses(ctx)
			if err != nil {
				return fmt.Errorf("failed to read statuses: %w", err)
			}
			statusName := make(map[string]string, len(statuses))
			for _, s := range statuses {
				statusName[s.ID] = s.Name
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(nodes)
			}

			fmt.Printf("Graph %s (%d nodes)\n\n", graphID, len(nodes))
			fmt.Printf("%-14s %-30s %-14s %-12s\n", "KIND", "NAME", "STATUS", "CATEGORY")
			totals := map[engine.EntityKind][2]int{}
			for _, n := range nodes {
				fmt.Printf("%-14s %-30s %-14s %-12s\n",
					n.Kind, n.Name, statusName[n.StatusID], n.Category)
				t := totals[n.Kind]
				t[0]++
				if n.Category.IsTerminal() {
					t[1]++
				}
				totals[n.Kind] = t
			}

			fmt.Printf("\nProgress by level:\n")
			for _, kind := range engine.EntityKinds() {
				if t, ok := totals[kind]; ok {
					fmt.Printf("  %-14s %d/%d terminal\n", kind, t[1], t[0])
				}
			}
			return nil
		},
	}

	return cmd
}
