package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cutoverhq/cutover/pkg/engine"
	"github.com/cutoverhq/cutover/pkg/planfile"
	"github.com/cutoverhq/cutover/pkg/policy"
	"github.com/cutoverhq/cutover/pkg/projection"
	"github.com/cutoverhq/cutover/pkg/stores"
	"github.com/cutoverhq/cutover/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		iterationType string
		migrationName string
		actor         string
		actorTeams    []string
		environment   string
		teams         []string
		execute       bool
	)

	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Instantiate and execute a plan",
		Long: `Compile a plan file, create a migration and iteration, and instantiate the
execution graph. Every write goes through the database.

With --execute, the command walks the graph to completion: each node starts
once its predecessor completes and completes once all of its children are
terminal. Every transition is gated by the policy engine and recorded in the
audit trail.`,
		Example: `  # Instantiate a rehearsal run and show the projection
  cutover run ./plan.yaml --type run

  # Execute the full graph as the network team
  cutover run ./plan.yaml --type run --execute --actor alice --actor-team network

  # Production cutover window
  cutover run ./plan.yaml --type cutover --environment production --execute`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			typ := engine.IterationType(strings.ToUpper(iterationType))
			if err := typ.Validate(); err != nil {
				return err
			}

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

			telCfg := telemetry.DefaultConfig()
			telCfg.Logging.Output = "stderr"
			telCfg.Tracing.Exporter = "none"
			if verbose {
				telCfg.Logging.Level = "debug"
			}
			tel, err := telemetry.NewTelemetry(telCfg)
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			defer tel.Shutdown(context.Background())

			registry := engine.NewStatusRegistry()
			if err := registry.SeedDefaults(); err != nil {
				return fmt.Errorf("failed to seed statuses: %w", err)
			}
			catalog := engine.NewTemplateCatalog()
			eng := engine.New(registry, catalog,
				engine.WithPersister(store),
				engine.WithObserver(telemetry.NewObserver(tel)),
				engine.WithLogger(tel.Logger.Zerolog()))

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

			if migrationName == "" {
				migrationName = doc.Name
			}
			migration, err := eng.CreateMigration(ctx, migrationName, actor,
				time.Now().UTC(), time.Now().UTC().Add(30*24*time.Hour))
			if err != nil {
				return fmt.Errorf("failed to create migration: %w", err)
			}
			iteration, err := eng.CreateIteration(ctx, migration.ID, typ,
				fmt.Sprintf("%s-%s", strings.ToLower(string(typ)), time.Now().UTC().Format("20060102-150405")))
			if err != nil {
				return fmt.Errorf("failed to create iteration: %w", err)
			}

			graph, err := eng.Instantiate(ctx, iteration.ID, plan.ID)
			if err != nil {
				return fmt.Errorf("failed to instantiate: %w", err)
			}
			fmt.Printf("✓ Instantiated graph %s for iteration %s\n", graph.ID, iteration.ID)

			if execute {
				policies, err := policy.NewEngine(tel.Logger.Zerolog())
				if err != nil {
					return fmt.Errorf("failed to initialize policy engine: %w", err)
				}
				runner := &graphRunner{
					eng:      eng,
					policies: policies,
					actor:    actor,
					polCtx: &policy.Context{
						Actor:       actor,
						ActorTeams:  actorTeams,
						Environment: environment,
					},
					iteration: iteration,
				}
				if err := runner.run(ctx, graph.RootID); err != nil {
					return fmt.Errorf("execution halted: %w", err)
				}
				fmt.Printf("✓ Graph executed to completion\n")
			}

			return printProjection(eng, graph.ID)
		},
	}

	cmd.Flags().StringVar(&iterationType, "type", "run", "iteration type: run, dr, or cutover")
	cmd.Flags().StringVar(&migrationName, "migration", "", "migration name (defaults to the plan name)")
	cmd.Flags().StringVar(&actor, "actor", "operator", "actor recorded in the audit trail")
	cmd.Flags().StringSliceVar(&actorTeams, "actor-team", nil, "team names the actor belongs to")
	cmd.Flags().StringVar(&environment, "environment", "staging", "environment for policy evaluation")
	cmd.Flags().StringSliceVar(&teams, "team", nil, "owning teams as name=email")
	cmd.Flags().BoolVar(&execute, "execute", false, "walk the graph to completion")

	return cmd
}

// graphRunner drives one instance graph to completion, respecting the
// predecessor and children-completion gates and consulting the policy engine
// before every transition.
type graphRunner struct {
	eng       *engine.Engine
	policies  *policy.Engine
	actor     string
	polCtx    *policy.Context
	iteration *engine.Iteration
}

// run starts the node, executes its children until all are terminal, then
// completes it. Children are picked in display order among those whose
// predecessor gate is already open.
func (r *graphRunner) run(ctx context.Context, nodeID string) error {
	if err := r.transition(ctx, nodeID, engine.CategoryInProgress); err != nil {
		return err
	}

	for {
		children, err := r.eng.Children(nodeID)
		if err != nil {
			return err
		}

		progressed := false
		done := true
		for _, child := range children {
			if child.Category.IsTerminal() {
				continue
			}
			done = false
			if !r.ready(children, child) {
				continue
			}
			if err := r.run(ctx, child.ID); err != nil {
				return err
			}
			progressed = true
		}
		if done {
			break
		}
		if !progressed {
			return fmt.Errorf("no runnable child under node %s", nodeID)
		}
	}

	return r.transition(ctx, nodeID, engine.CategoryCompleted)
}

// ready reports whether the child's predecessor, if any, has completed.
func (r *graphRunner) ready(siblings []*engine.InstanceNode, child *engine.InstanceNode) bool {
	if child.PredecessorID == "" {
		return true
	}
	for _, s := range siblings {
		if s.ID == child.PredecessorID {
			return s.Category == engine.CategoryCompleted
		}
	}
	return false
}

func (r *graphRunner) transition(ctx context.Context, nodeID string, target engine.StatusCategory) error {
	node, err := r.eng.Node(nodeID)
	if err != nil {
		return err
	}

	ownerTeam := ""
	if tpl, err := r.eng.Catalog().Get(node.TemplateID); err == nil && tpl.OwnerTeamID != "" {
		if team := r.eng.Team(tpl.OwnerTeamID); team != nil {
			ownerTeam = team.Name
		}
	}
	children, err := r.eng.Children(nodeID)
	if err != nil {
		return err
	}

	result, err := r.policies.EvaluateTransition(ctx, &policy.Input{
		Node:      policy.NewNodeInput(node, ownerTeam, children),
		Target:    string(target),
		Iteration: policy.NewIterationInput(r.iteration, nil, nil),
		Context:   r.polCtx,
	})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	if !result.Allowed {
		for _, v := range result.Violations {
			log.Warn().
				Str("policy", v.Policy).
				Str("node_id", nodeID).
				Str("severity", string(v.Severity)).
				Msg(v.Message)
		}
		return fmt.Errorf("policy denied %s -> %s on node %s", node.Category, target, node.Name)
	}

	_, err = r.eng.Transition(ctx, nodeID, target, r.actor)
	return err
}

// printProjection renders the graph's flat view as a table or JSON.
func printProjection(eng *engine.Engine, graphID string) error {
	snap, err := projection.Capture(eng, graphID)
	if err != nil {
		return err
	}
	view, err := projection.NewProjector(eng).Project(snap)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	fmt.Printf("\nGraph %s (iteration %s)\n\n", view.GraphID, view.IterationID)
	fmt.Printf("%-14s %-30s %-14s %-12s %s\n", "KIND", "NAME", "STATUS", "CATEGORY", "OWNER")
	for _, row := range view.Rows {
		fmt.Printf("%-14s %-30s %-14s %-12s %s\n",
			row.Kind, row.Name, row.StatusName, row.Category, row.OwnerTeam)
	}

	fmt.Printf("\nProgress by level:\n")
	for _, sum := range view.Summaries {
		fmt.Printf("  %-14s %3d nodes, %.0f%% complete\n", sum.Kind, sum.Total, sum.PercentComplete)
	}
	return nil
}
