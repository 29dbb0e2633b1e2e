package stores

import (
	"context"
	"testing"
	"time"

	"github.com/cutoverhq/cutover/pkg/engine"
)

var _ engine.Persister = (*SQLiteStore)(nil)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

// seedStatus persists one status row so FK-bearing rows can reference it.
func seedStatus(t *testing.T, store *SQLiteStore, id, name string, kind engine.EntityKind, cat engine.StatusCategory) *engine.Status {
	t.Helper()

	now := time.Now().UTC()
	st := &engine.Status{
		ID:        id,
		Name:      name,
		Kind:      kind,
		Category:  cat,
		Color:     "#808080",
		Position:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.SaveStatus(context.Background(), st); err != nil {
		t.Fatalf("failed to seed status: %v", err)
	}
	return st
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tables := []string{
		"statuses", "teams", "migrations_tbl", "iterations",
		"template_nodes", "instance_graphs", "instance_nodes", "audit_events",
	}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestStatusSaveAndList tests status persistence and the unique (name, kind) rule
func TestStatusSaveAndList(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	seedStatus(t, store, "st-1", "PENDING", engine.KindStep, engine.CategoryPending)
	seedStatus(t, store, "st-2", "IN_PROGRESS", engine.KindStep, engine.CategoryInProgress)

	// Same name on a different kind is allowed.
	seedStatus(t, store, "st-3", "PENDING", engine.KindPhase, engine.CategoryPending)

	// Same (name, kind) under a new ID violates the uniqueness constraint.
	dup := &engine.Status{
		ID: "st-4", Name: "PENDING", Kind: engine.KindStep,
		Category: engine.CategoryPending,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := store.SaveStatus(ctx, dup); err == nil {
		t.Error("expected unique constraint violation for duplicate (name, kind)")
	}

	statuses, err := store.ListStatuses(ctx)
	if err != nil {
		t.Fatalf("failed to list statuses: %v", err)
	}
	if len(statuses) != 3 {
		t.Errorf("expected 3 statuses, got %d", len(statuses))
	}

	// Rename via upsert on the same ID.
	renamed := *statuses[0]
	renamed.Name = "NOT_STARTED"
	renamed.UpdatedAt = time.Now().UTC()
	if err := store.SaveStatus(ctx, &renamed); err != nil {
		t.Fatalf("failed to rename status: %v", err)
	}
}

// TestMigrationAndIterationSave tests container persistence
func TestMigrationAndIterationSave(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	migStatus := seedStatus(t, store, "st-mig", "PLANNING", engine.KindMigration, engine.CategoryPending)
	itStatus := seedStatus(t, store, "st-it", "PLANNING", engine.KindIteration, engine.CategoryPending)

	now := time.Now().UTC()
	m := &engine.Migration{
		ID:          "mig-1",
		Name:        "datacenter-exit",
		OwnerUserID: "user-1",
		StatusID:    migStatus.ID,
		StartDate:   now,
		EndDate:     now.Add(30 * 24 * time.Hour),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.SaveMigration(ctx, m); err != nil {
		t.Fatalf("failed to save migration: %v", err)
	}

	it := &engine.Iteration{
		ID:          "it-1",
		MigrationID: m.ID,
		Type:        engine.IterationTypeRun,
		Name:        "run-1",
		StatusID:    itStatus.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.SaveIteration(ctx, it); err != nil {
		t.Fatalf("failed to save iteration: %v", err)
	}

	// Closing the iteration upserts the closed flag.
	it.Closed = true
	it.UpdatedAt = time.Now().UTC()
	if err := store.SaveIteration(ctx, it); err != nil {
		t.Fatalf("failed to close iteration: %v", err)
	}

	var closed int
	if err := store.db.QueryRowContext(ctx,
		"SELECT closed FROM iterations WHERE id = ?", it.ID).Scan(&closed); err != nil {
		t.Fatalf("failed to read iteration: %v", err)
	}
	if closed != 1 {
		t.Errorf("expected closed = 1, got %d", closed)
	}
}

// TestInstanceGraphRoundTrip tests transactional graph persistence and node updates
func TestInstanceGraphRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	migStatus := seedStatus(t, store, "st-mig", "PLANNING", engine.KindMigration, engine.CategoryPending)
	itStatus := seedStatus(t, store, "st-it", "PLANNING", engine.KindIteration, engine.CategoryPending)
	pending := seedStatus(t, store, "st-pending", "PENDING", engine.KindPlan, engine.CategoryPending)
	inProgress := seedStatus(t, store, "st-prog", "IN_PROGRESS", engine.KindPlan, engine.CategoryInProgress)

	m := &engine.Migration{
		ID: "mig-1", Name: "dc-exit", StatusID: migStatus.ID,
		StartDate: now, EndDate: now, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.SaveMigration(ctx, m); err != nil {
		t.Fatalf("failed to save migration: %v", err)
	}

	it := &engine.Iteration{
		ID: "it-1", MigrationID: m.ID, Type: engine.IterationTypeRun,
		Name: "run-1", StatusID: itStatus.ID, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.SaveIteration(ctx, it); err != nil {
		t.Fatalf("failed to save iteration: %v", err)
	}

	planTpl := &engine.TemplateNode{
		ID: "tpl-plan", Kind: engine.KindPlan, Order: 0,
		Name: "cutover-plan", CreatedAt: now, UpdatedAt: now,
	}
	seqTpl := &engine.TemplateNode{
		ID: "tpl-seq", Kind: engine.KindSequence, ParentID: planTpl.ID,
		Order: 0, Name: "shutdown", Duration: 30 * time.Minute,
		CreatedAt: now, UpdatedAt: now,
	}
	for _, tpl := range []*engine.TemplateNode{planTpl, seqTpl} {
		if err := store.SaveTemplateNode(ctx, tpl); err != nil {
			t.Fatalf("failed to save template node %s: %v", tpl.ID, err)
		}
	}

	graph := &engine.InstanceGraph{
		ID: "graph-1", IterationID: it.ID, PlanTemplateID: planTpl.ID,
		RootID: "node-plan", CreatedAt: now,
	}
	nodes := []*engine.InstanceNode{
		{
			ID: "node-plan", GraphID: graph.ID, TemplateID: planTpl.ID,
			Kind: engine.KindPlan, Order: 0, Name: planTpl.Name,
			StatusID: pending.ID, Category: engine.CategoryPending,
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "node-seq", GraphID: graph.ID, TemplateID: seqTpl.ID,
			Kind: engine.KindSequence, ParentID: "node-plan", Order: 0,
			Name: seqTpl.Name, Duration: seqTpl.Duration,
			StatusID: pending.ID, Category: engine.CategoryPending,
			CreatedAt: now, UpdatedAt: now,
		},
	}
	if err := store.SaveInstanceGraph(ctx, graph, nodes); err != nil {
		t.Fatalf("failed to save instance graph: %v", err)
	}

	// A second graph for the same iteration violates the one-graph rule.
	dupGraph := &engine.InstanceGraph{
		ID: "graph-2", IterationID: it.ID, PlanTemplateID: planTpl.ID,
		RootID: "node-x", CreatedAt: now,
	}
	if err := store.SaveInstanceGraph(ctx, dupGraph, nil); err == nil {
		t.Error("expected unique constraint violation for second graph on one iteration")
	}

	loaded, err := store.ListInstanceNodes(ctx, graph.ID)
	if err != nil {
		t.Fatalf("failed to list instance nodes: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 instance nodes, got %d", len(loaded))
	}
	if loaded[1].Duration != 30*time.Minute {
		t.Errorf("expected duration round-trip of 30m, got %v", loaded[1].Duration)
	}
	if loaded[1].ParentID != "node-plan" {
		t.Errorf("expected parent node-plan, got %q", loaded[1].ParentID)
	}

	// Status change write-through.
	start := time.Now().UTC()
	updated := loaded[0]
	updated.StatusID = inProgress.ID
	updated.Category = engine.CategoryInProgress
	updated.StartTime = &start
	updated.UpdatedAt = start
	if err := store.UpdateInstanceNode(ctx, updated); err != nil {
		t.Fatalf("failed to update instance node: %v", err)
	}

	missing := &engine.InstanceNode{ID: "node-missing", UpdatedAt: start}
	if err := store.UpdateInstanceNode(ctx, missing); err == nil {
		t.Error("expected error updating nonexistent node")
	}
}

// TestAuditEventsAppendAndFilter tests the append-only audit trail
func TestAuditEventsAppendAndFilter(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC()

	events := []*engine.AuditEvent{
		{ID: "ev-1", GraphID: "graph-1", NodeID: "node-a", From: engine.CategoryPending, To: engine.CategoryInProgress, Actor: "alice", Timestamp: base},
		{ID: "ev-2", GraphID: "graph-1", NodeID: "node-a", From: engine.CategoryInProgress, To: engine.CategoryCompleted, Actor: "alice", Timestamp: base.Add(time.Minute)},
		{ID: "ev-3", GraphID: "graph-2", NodeID: "node-b", From: engine.CategoryPending, To: engine.CategoryInProgress, Actor: "bob", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		if err := store.AppendAuditEvent(ctx, ev); err != nil {
			t.Fatalf("failed to append audit event %s: %v", ev.ID, err)
		}
	}

	all, err := store.ListAuditEvents(ctx, nil, nil, 100, 0)
	if err != nil {
		t.Fatalf("failed to list audit events: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 events, got %d", len(all))
	}

	graphID := "graph-1"
	byGraph, err := store.ListAuditEvents(ctx, &graphID, nil, 100, 0)
	if err != nil {
		t.Fatalf("failed to list by graph: %v", err)
	}
	if len(byGraph) != 2 {
		t.Errorf("expected 2 events for graph-1, got %d", len(byGraph))
	}
	if byGraph[0].ID != "ev-1" || byGraph[1].ID != "ev-2" {
		t.Error("expected events ordered by timestamp ascending")
	}

	nodeID := "node-b"
	byNode, err := store.ListAuditEvents(ctx, nil, &nodeID, 100, 0)
	if err != nil {
		t.Fatalf("failed to list by node: %v", err)
	}
	if len(byNode) != 1 || byNode[0].Actor != "bob" {
		t.Errorf("expected single event by bob, got %d events", len(byNode))
	}

	page, err := store.ListAuditEvents(ctx, nil, nil, 1, 1)
	if err != nil {
		t.Fatalf("failed to page audit events: %v", err)
	}
	if len(page) != 1 || page[0].ID != "ev-2" {
		t.Error("expected pagination to return the second event")
	}
}

// TestTeamSave tests team persistence and upsert
func TestTeamSave(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	team := &engine.Team{
		ID: "team-1", Name: "network", Email: "net@example.com",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveTeam(ctx, team); err != nil {
		t.Fatalf("failed to save team: %v", err)
	}

	team.Email = "network@example.com"
	if err := store.SaveTeam(ctx, team); err != nil {
		t.Fatalf("failed to upsert team: %v", err)
	}

	var email string
	if err := store.db.QueryRowContext(ctx,
		"SELECT email FROM teams WHERE id = ?", team.ID).Scan(&email); err != nil {
		t.Fatalf("failed to read team: %v", err)
	}
	if email != "network@example.com" {
		t.Errorf("expected updated email, got %q", email)
	}
}
