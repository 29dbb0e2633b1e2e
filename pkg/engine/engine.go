package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine is the hierarchical execution-state engine. It owns the instance
// graphs, applies status transitions against the registry and the template
// structure, and appends the audit trail.
//
// The registry and catalog are injected; the engine never reaches for
// ambient global state.
type Engine struct {
	registry *StatusRegistry
	catalog  *TemplateCatalog

	persister Persister
	observer  TransitionObserver
	logger    zerolog.Logger

	mu sync.RWMutex

	// graphs maps graph ID to instance graph state.
	graphs map[string]*graphState

	// graphByIteration enforces the one-graph-per-iteration invariant.
	graphByIteration map[string]string

	// nodeIndex maps instance node ID to its graph ID.
	nodeIndex map[string]string

	// migrations and iterations are the top-level containers.
	migrations map[string]*Migration
	iterations map[string]*Iteration

	// teams own template nodes.
	teams map[string]*Team

	// audit is the in-memory append-only trail, ordered by application.
	audit []*AuditEvent
}

// graphState is the mutable runtime state of one instance graph.
type graphState struct {
	graph *InstanceGraph

	// nodes is the arena of instance nodes indexed by ID.
	nodes map[string]*InstanceNode

	// children maps parent instance ID to child IDs in display order.
	children map[string][]string

	// locks holds one mutex per node. A transition locks the parent first,
	// then the target; the containment tree makes that order deadlock-free.
	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithPersister sets the write-through persistence layer.
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithObserver sets the transition observer.
func WithObserver(o TransitionObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l.With().Str("component", "engine").Logger() }
}

// New creates an engine over a status registry and template catalog.
func New(registry *StatusRegistry, catalog *TemplateCatalog, opts ...Option) *Engine {
	e := &Engine{
		registry:         registry,
		catalog:          catalog,
		persister:        NopPersister{},
		observer:         NopObserver{},
		logger:           zerolog.Nop(),
		graphs:           make(map[string]*graphState),
		graphByIteration: make(map[string]string),
		nodeIndex:        make(map[string]string),
		migrations:       make(map[string]*Migration),
		iterations:       make(map[string]*Iteration),
		teams:            make(map[string]*Team),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the injected status registry.
func (e *Engine) Registry() *StatusRegistry { return e.registry }

// Catalog returns the injected template catalog.
func (e *Engine) Catalog() *TemplateCatalog { return e.catalog }

// CreateTeam registers a team that can own template nodes.
func (e *Engine) CreateTeam(ctx context.Context, name, email string) (*Team, error) {
	team := &Team{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	e.teams[team.ID] = team
	e.mu.Unlock()

	if err := e.persister.SaveTeam(ctx, team); err != nil {
		return nil, fmt.Errorf("persisting team: %w", err)
	}
	cp := *team
	return &cp, nil
}

// Team returns the team with the given ID, or nil if unknown.
func (e *Engine) Team(id string) *Team {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.teams[id]; ok {
		cp := *t
		return &cp
	}
	return nil
}

// CreateMigration creates a top-level migration container with the initial
// status for its kind.
func (e *Engine) CreateMigration(ctx context.Context, name, ownerUserID string, start, end time.Time) (*Migration, error) {
	initial, err := e.registry.InitialFor(KindMigration)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := &Migration{
		ID:          uuid.New().String(),
		Name:        name,
		OwnerUserID: ownerUserID,
		StatusID:    initial.ID,
		StartDate:   start,
		EndDate:     end,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	e.mu.Lock()
	e.migrations[m.ID] = m
	e.mu.Unlock()

	if err := e.persister.SaveMigration(ctx, m); err != nil {
		return nil, fmt.Errorf("persisting migration: %w", err)
	}

	e.logger.Info().Str("migration_id", m.ID).Str("name", name).Msg("migration created")
	cp := *m
	return &cp, nil
}

// CreateIteration creates an execution window under a migration.
func (e *Engine) CreateIteration(ctx context.Context, migrationID string, typ IterationType, name string) (*Iteration, error) {
	if err := typ.Validate(); err != nil {
		return nil, NewValidationError("invalid iteration type", err).WithCode(ErrCodeInvalidParent)
	}

	e.mu.Lock()
	if _, ok := e.migrations[migrationID]; !ok {
		e.mu.Unlock()
		return nil, NewValidationError(fmt.Sprintf("migration not found: %s", migrationID), nil).
			WithCode(ErrCodeNotFound)
	}

	initial, err := e.registry.InitialFor(KindIteration)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	now := time.Now().UTC()
	it := &Iteration{
		ID:          uuid.New().String(),
		MigrationID: migrationID,
		Type:        typ,
		Name:        name,
		StatusID:    initial.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.iterations[it.ID] = it
	e.mu.Unlock()

	if err := e.persister.SaveIteration(ctx, it); err != nil {
		return nil, fmt.Errorf("persisting iteration: %w", err)
	}

	e.logger.Info().
		Str("iteration_id", it.ID).
		Str("migration_id", migrationID).
		Str("type", string(typ)).
		Msg("iteration created")
	cp := *it
	return &cp, nil
}

// Iteration returns the iteration with the given ID.
func (e *Engine) Iteration(id string) (*Iteration, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	it, ok := e.iterations[id]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("iteration not found: %s", id), nil).
			WithCode(ErrCodeNotFound)
	}
	cp := *it
	return &cp, nil
}

// CloseIteration marks an iteration terminal. Once closed, every transition
// on its graph fails with ITERATION_CLOSED.
func (e *Engine) CloseIteration(ctx context.Context, id string) error {
	e.mu.Lock()
	it, ok := e.iterations[id]
	if !ok {
		e.mu.Unlock()
		return NewValidationError(fmt.Sprintf("iteration not found: %s", id), nil).
			WithCode(ErrCodeNotFound)
	}
	it.Closed = true
	it.UpdatedAt = time.Now().UTC()
	cp := *it
	e.mu.Unlock()

	if err := e.persister.SaveIteration(ctx, &cp); err != nil {
		return fmt.Errorf("persisting iteration close: %w", err)
	}

	e.logger.Info().Str("iteration_id", id).Msg("iteration closed")
	return nil
}

// Graph returns the instance graph header for a graph ID.
func (e *Engine) Graph(graphID string) (*InstanceGraph, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	gs, ok := e.graphs[graphID]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("instance graph not found: %s", graphID), nil).
			WithCode(ErrCodeNotFound)
	}
	cp := *gs.graph
	return &cp, nil
}

// Node returns a copy of the instance node with the given ID.
func (e *Engine) Node(nodeID string) (*InstanceNode, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nodeLocked(nodeID)
}

func (e *Engine) nodeLocked(nodeID string) (*InstanceNode, error) {
	graphID, ok := e.nodeIndex[nodeID]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("instance node not found: %s", nodeID), nil).
			WithCode(ErrCodeUnknownNode).WithNode(nodeID)
	}
	node := e.graphs[graphID].nodes[nodeID]
	cp := *node
	return &cp, nil
}

// Children returns copies of a node's children in display order.
func (e *Engine) Children(nodeID string) ([]*InstanceNode, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	graphID, ok := e.nodeIndex[nodeID]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("instance node not found: %s", nodeID), nil).
			WithCode(ErrCodeUnknownNode).WithNode(nodeID)
	}
	gs := e.graphs[graphID]
	ids := gs.children[nodeID]
	out := make([]*InstanceNode, 0, len(ids))
	for _, id := range ids {
		cp := *gs.nodes[id]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// Nodes returns copies of every node in a graph, parents before children.
func (e *Engine) Nodes(graphID string) ([]*InstanceNode, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	gs, ok := e.graphs[graphID]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("instance graph not found: %s", graphID), nil).
			WithCode(ErrCodeNotFound)
	}

	out := make([]*InstanceNode, 0, len(gs.nodes))
	queue := []string{gs.graph.RootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		cp := *gs.nodes[id]
		out = append(out, &cp)
		queue = append(queue, gs.children[id]...)
	}
	return out, nil
}

// AuditTrail returns the audit events for one node in application order.
func (e *Engine) AuditTrail(nodeID string) []*AuditEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*AuditEvent
	for _, ev := range e.audit {
		if ev.NodeID == nodeID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out
}

// GraphAudit returns the audit events for one graph in application order.
func (e *Engine) GraphAudit(graphID string) []*AuditEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*AuditEvent
	for _, ev := range e.audit {
		if ev.GraphID == graphID {
			cp := *ev
			out = append(out, &cp)
		}
	}
	return out
}
