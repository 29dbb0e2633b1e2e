package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cutoverhq/cutover/pkg/engine"
	"github.com/cutoverhq/cutover/pkg/stores"
)

func newInitCommand() *cobra.Command {
	var (
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a cutover workspace",
		Long: `Initialize a new cutover workspace: database, schema migrations, and the
default status catalog for every hierarchy level.

The default catalog seeds one status per canonical category per entity kind.
The first status seeded per kind becomes that kind's initial status at
instantiation time.`,
		Example: `  # Initialize with the default database path
  cutover init

  # Initialize into a custom database
  cutover init --db /var/lib/cutover/cutover.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().Str("db", dbPath).Msg("Initializing workspace")

			dataDir := filepath.Dir(dbPath)
			if err := os.MkdirAll(dataDir, 0700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dataDir, err)
			}
			fmt.Printf("✓ Created directory: %s\n", dataDir)

			store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			defer store.Close()

			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Printf("✓ Initialized SQLite database: %s\n", dbPath)

			// Seed the default status catalog and persist it.
			registry := engine.NewStatusRegistry()
			if err := registry.SeedDefaults(); err != nil {
				return fmt.Errorf("failed to seed statuses: %w", err)
			}
			seeded := 0
			for _, kind := range engine.EntityKinds() {
				for _, status := range registry.ListForKind(kind) {
					if err := store.SaveStatus(ctx, status); err != nil {
						return fmt.Errorf("failed to persist status %s/%s: %w", kind, status.Name, err)
					}
					seeded++
				}
			}
			fmt.Printf("✓ Seeded %d default statuses\n", seeded)

			// Write a default config file unless one already exists.
			if configPath == "" {
				configPath = "./cutover.yaml"
			}
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				defaultConfig := `# Cutover Configuration

# Database settings
database:
  path: %s

# Telemetry settings
telemetry:
  enabled: true
  log_level: info

# Policy settings
policies:
  paths: []
`
				content := fmt.Sprintf(defaultConfig, dbPath)
				if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
					return fmt.Errorf("failed to write config file: %w", err)
				}
				fmt.Printf("✓ Created config file: %s\n", configPath)
			} else {
				fmt.Printf("✓ Config file already exists: %s\n", configPath)
			}

			fmt.Printf("\n✅ Workspace initialized successfully!\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Validate a plan file:\n")
			fmt.Printf("     cutover validate ./plan.yaml\n\n")
			fmt.Printf("  2. Execute a rehearsal run:\n")
			fmt.Printf("     cutover run ./plan.yaml --type run --execute\n\n")

			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file path (default ./cutover.yaml)")

	return cmd
}
