package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/cutoverhq/cutover/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists engine state in SQLite. It implements
// engine.Persister plus the read surface the CLI needs.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Connection-level setting; the DSN flag alone does not cover pooled
	// connections on every driver version.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// SaveStatus upserts a registered status.
func (s *SQLiteStore) SaveStatus(ctx context.Context, st *engine.Status) error {
	query := `
		INSERT INTO statuses (id, name, kind, category, color, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		st.ID, st.Name, string(st.Kind), string(st.Category), st.Color, st.Position,
		st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// ListStatuses returns all persisted statuses ordered by kind and position.
func (s *SQLiteStore) ListStatuses(ctx context.Context) ([]*engine.Status, error) {
	query := `
		SELECT id, name, kind, category, color, position, created_at, updated_at
		FROM statuses
		ORDER BY kind, position
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}
	defer rows.Close()

	statuses := []*engine.Status{}
	for rows.Next() {
		st := &engine.Status{}
		var kind, category string
		if err := rows.Scan(&st.ID, &st.Name, &kind, &category, &st.Color, &st.Position,
			&st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		st.Kind = engine.EntityKind(kind)
		st.Category = engine.StatusCategory(category)
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statuses: %w", err)
	}
	return statuses, nil
}

// SaveTeam upserts a team.
func (s *SQLiteStore) SaveTeam(ctx context.Context, team *engine.Team) error {
	query := `
		INSERT INTO teams (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email
	`
	_, err := s.db.ExecContext(ctx, query, team.ID, team.Name, team.Email, team.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save team: %w", err)
	}
	return nil
}

// SaveMigration upserts a migration container.
func (s *SQLiteStore) SaveMigration(ctx context.Context, m *engine.Migration) error {
	query := `
		INSERT INTO migrations_tbl (id, name, owner_user_id, status_id, start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status_id = excluded.status_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.Name, m.OwnerUserID, m.StatusID, m.StartDate, m.EndDate,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save migration: %w", err)
	}
	return nil
}

// SaveIteration upserts an iteration, including graph binding and close marks.
func (s *SQLiteStore) SaveIteration(ctx context.Context, it *engine.Iteration) error {
	query := `
		INSERT INTO iterations (id, migration_id, type, name, status_id, graph_id, closed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status_id = excluded.status_id,
			graph_id = excluded.graph_id,
			closed = excluded.closed,
			updated_at = excluded.updated_at
	`
	var graphID *string
	if it.GraphID != "" {
		graphID = &it.GraphID
	}
	_, err := s.db.ExecContext(ctx, query,
		it.ID, it.MigrationID, string(it.Type), it.Name, it.StatusID, graphID,
		boolToInt(it.Closed), it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save iteration: %w", err)
	}
	return nil
}

// SaveTemplateNode upserts an authored template node.
func (s *SQLiteStore) SaveTemplateNode(ctx context.Context, n *engine.TemplateNode) error {
	query := `
		INSERT INTO template_nodes (id, kind, parent_id, predecessor_id, display_order,
			name, description, duration_seconds, owner_team_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			predecessor_id = excluded.predecessor_id,
			display_order = excluded.display_order,
			name = excluded.name,
			description = excluded.description,
			duration_seconds = excluded.duration_seconds,
			owner_team_id = excluded.owner_team_id,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID, string(n.Kind), nullable(n.ParentID), nullable(n.PredecessorID), n.Order,
		n.Name, n.Description, int64(n.Duration.Seconds()), nullable(n.OwnerTeamID),
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template node: %w", err)
	}
	return nil
}

// SaveInstanceGraph persists a graph header and all its nodes in one
// transaction, so a partially written graph never survives a crash.
func (s *SQLiteStore) SaveInstanceGraph(ctx context.Context, g *engine.InstanceGraph, nodes []*engine.InstanceNode) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	graphQuery := `
		INSERT INTO instance_graphs (id, iteration_id, plan_template_id, root_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, graphQuery,
		g.ID, g.IterationID, g.PlanTemplateID, g.RootID, g.CreatedAt); err != nil {
		return fmt.Errorf("failed to save instance graph: %w", err)
	}

	nodeQuery := `
		INSERT INTO instance_nodes (id, graph_id, template_id, kind, parent_id, predecessor_id,
			display_order, name, description, duration_seconds, status_id, category,
			start_time, end_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, n := range nodes {
		if _, err := tx.ExecContext(ctx, nodeQuery,
			n.ID, n.GraphID, n.TemplateID, string(n.Kind), nullable(n.ParentID), nullable(n.PredecessorID),
			n.Order, n.Name, n.Description, int64(n.Duration.Seconds()), n.StatusID, string(n.Category),
			n.StartTime, n.EndTime, n.CreatedAt, n.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to save instance node %s: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit instance graph: %w", err)
	}
	return nil
}

// UpdateInstanceNode persists a status change on one instance node.
func (s *SQLiteStore) UpdateInstanceNode(ctx context.Context, n *engine.InstanceNode) error {
	query := `
		UPDATE instance_nodes
		SET status_id = ?, category = ?, name = ?, description = ?,
			start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		n.StatusID, string(n.Category), n.Name, n.Description,
		n.StartTime, n.EndTime, n.UpdatedAt, n.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance node: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("instance node not found: %s", n.ID)
	}
	return nil
}

// ListInstanceNodes lists all instance nodes for a graph.
func (s *SQLiteStore) ListInstanceNodes(ctx context.Context, graphID string) ([]*engine.InstanceNode, error) {
	query := `
		SELECT id, graph_id, template_id, kind, parent_id, predecessor_id,
			display_order, name, description, duration_seconds, status_id, category,
			start_time, end_time, created_at, updated_at
		FROM instance_nodes
		WHERE graph_id = ?
		ORDER BY display_order, created_at
	`
	rows, err := s.db.QueryContext(ctx, query, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instance nodes: %w", err)
	}
	defer rows.Close()

	nodes := []*engine.InstanceNode{}
	for rows.Next() {
		n := &engine.InstanceNode{}
		var kind, category string
		var parentID, predecessorID sql.NullString
		var durationSeconds int64
		if err := rows.Scan(
			&n.ID, &n.GraphID, &n.TemplateID, &kind, &parentID, &predecessorID,
			&n.Order, &n.Name, &n.Description, &durationSeconds, &n.StatusID, &category,
			&n.StartTime, &n.EndTime, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan instance node: %w", err)
		}
		n.Kind = engine.EntityKind(kind)
		n.Category = engine.StatusCategory(category)
		n.ParentID = parentID.String
		n.PredecessorID = predecessorID.String
		n.Duration = time.Duration(durationSeconds) * time.Second
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instance nodes: %w", err)
	}
	return nodes, nil
}

// AppendAuditEvent persists one immutable audit event. Audit rows are never
// updated or deleted.
func (s *SQLiteStore) AppendAuditEvent(ctx context.Context, ev *engine.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, graph_id, node_id, from_category, to_category, actor, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.GraphID, ev.NodeID, string(ev.From), string(ev.To), ev.Actor, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// ListAuditEvents lists audit events with optional node and graph filters.
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, graphID, nodeID *string, limit, offset int) ([]*engine.AuditEvent, error) {
	query := `
		SELECT id, graph_id, node_id, from_category, to_category, actor, timestamp
		FROM audit_events
		WHERE (? IS NULL OR graph_id = ?)
		  AND (? IS NULL OR node_id = ?)
		ORDER BY timestamp ASC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, graphID, graphID, nodeID, nodeID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := []*engine.AuditEvent{}
	for rows.Next() {
		ev := &engine.AuditEvent{}
		var from, to string
		if err := rows.Scan(&ev.ID, &ev.GraphID, &ev.NodeID, &from, &to, &ev.Actor, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.From = engine.StatusCategory(from)
		ev.To = engine.StatusCategory(to)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// nullable converts an empty string to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// boolToInt converts a bool to SQLite's integer representation.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
