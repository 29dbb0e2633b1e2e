package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cutoverhq/cutover/pkg/stores"
)

func newAuditCommand() *cobra.Command {
	var (
		nodeID string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "audit <graph-id>",
		Short: "Show the audit trail of an instance graph",
		Long: `Read the persisted audit events for a graph in application order. The
trail is append-only: every applied transition is one immutable event.`,
		Example: `  # Full trail for a graph
  cutover audit 6a1f...

  # Trail for one node, paginated
  cutover audit 6a1f... --node 9c2e... --limit 20 --offset 40`,
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

			var nodeFilter *string
			if nodeID != "" {
				nodeFilter = &nodeID
			}
			events, err := store.ListAuditEvents(ctx, &graphID, nodeFilter, limit, offset)
			if err != nil {
				return fmt.Errorf("failed to read audit trail: %w", err)
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			if len(events) == 0 {
				fmt.Println("No audit events found")
				return nil
			}

			fmt.Printf("%-24s %-36s %-13s %-13s %s\n", "TIMESTAMP", "NODE", "FROM", "TO", "ACTOR")
			for _, ev := range events {
				fmt.Printf("%-24s %-36s %-13s %-13s %s\n",
					ev.Timestamp.Format(time.RFC3339), ev.NodeID, ev.From, ev.To, ev.Actor)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&nodeID, "node", "", "restrict to one instance node")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "events to skip")

	return cmd
}
