package engine

import (
	"time"
)

// Status is a registered, presentable execution state for one entity kind.
// Unique per (Name, Kind). Immutable once referenced by an instance node
// except for renames.
type Status struct {
	// ID is the unique identifier for this status.
	ID string `json:"id"`

	// Name is the presentation name (e.g. "PLANNING", "IN_PROGRESS").
	Name string `json:"name"`

	// Kind is the entity kind this status applies to.
	Kind EntityKind `json:"kind"`

	// Category is the canonical category the engine reasons about.
	Category StatusCategory `json:"category"`

	// Color is the display color in #RRGGBB form.
	Color string `json:"color"`

	// Position is the registration order within the kind. The status with
	// the lowest position is the kind's initial status.
	Position int `json:"position"`

	// CreatedAt is when the status was registered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the status was last renamed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Team owns template nodes and is accountable for their execution.
type Team struct {
	// ID is the unique identifier for this team.
	ID string `json:"id"`

	// Name is the team's display name.
	Name string `json:"name"`

	// Email is the team's contact address.
	Email string `json:"email,omitempty"`

	// CreatedAt is when the team was created.
	CreatedAt time.Time `json:"created_at"`
}

// TemplateNode is an authored definition node in the master layer.
// Template nodes form a forest per level: each references its parent at the
// level above and optionally a same-level predecessor within the same parent.
// Execution never mutates a template node.
type TemplateNode struct {
	// ID is the unique identifier for this template node.
	ID string `json:"id"`

	// Kind is the hierarchy level of this node.
	Kind EntityKind `json:"kind"`

	// ParentID is the template node at the level above. Empty for plan roots.
	ParentID string `json:"parent_id,omitempty"`

	// PredecessorID is an optional same-level ordering edge within the same
	// parent. Independent of Order: Order is a display signal, the
	// predecessor chain is the execution gate.
	PredecessorID string `json:"predecessor_id,omitempty"`

	// Order is the explicit display order among siblings.
	Order int `json:"order"`

	// Name is the human-readable node name.
	Name string `json:"name"`

	// Description is the default description copied onto instances.
	Description string `json:"description,omitempty"`

	// Duration is the default expected duration copied onto instances.
	Duration time.Duration `json:"duration,omitempty"`

	// OwnerTeamID is the team accountable for this node.
	OwnerTeamID string `json:"owner_team_id,omitempty"`

	// CreatedAt is when the node was authored.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the node was last edited.
	UpdatedAt time.Time `json:"updated_at"`
}

// InstanceNode is a runtime copy of a template node within one iteration's
// instance graph. It carries its own status, timing, and override fields and
// links back to the template node it was derived from.
type InstanceNode struct {
	// ID is the unique identifier for this instance node.
	ID string `json:"id"`

	// GraphID is the instance graph this node belongs to.
	GraphID string `json:"graph_id"`

	// TemplateID is the template node this instance was derived from.
	TemplateID string `json:"template_id"`

	// Kind is the hierarchy level, mirrored from the template.
	Kind EntityKind `json:"kind"`

	// ParentID is the instance node corresponding to the template parent.
	ParentID string `json:"parent_id,omitempty"`

	// PredecessorID is the instance node corresponding to the template
	// predecessor, remapped structurally at instantiation.
	PredecessorID string `json:"predecessor_id,omitempty"`

	// Order is the display order, copied from the template as a starting value.
	Order int `json:"order"`

	// Name is the node name, copied from the template and overridable.
	Name string `json:"name"`

	// Description is overridable per instance.
	Description string `json:"description,omitempty"`

	// Duration is the expected duration, overridable per instance.
	Duration time.Duration `json:"duration,omitempty"`

	// StatusID is the current status in the registry.
	StatusID string `json:"status_id"`

	// Category is the canonical category of the current status.
	Category StatusCategory `json:"category"`

	// StartTime is stamped on the first transition into IN_PROGRESS.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is stamped on transition into a terminal category.
	EndTime *time.Time `json:"end_time,omitempty"`

	// CreatedAt is when the node was instantiated.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the node last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// InstanceGraph is the runtime copy of one plan template, owned by exactly
// one iteration.
type InstanceGraph struct {
	// ID is the unique identifier for this graph.
	ID string `json:"id"`

	// IterationID is the iteration this graph executes under.
	IterationID string `json:"iteration_id"`

	// PlanTemplateID is the plan template the graph was instantiated from.
	PlanTemplateID string `json:"plan_template_id"`

	// RootID is the plan instance node at the root of the graph.
	RootID string `json:"root_id"`

	// CreatedAt is when the graph was instantiated.
	CreatedAt time.Time `json:"created_at"`
}

// Migration is the top-level container for iterations.
type Migration struct {
	// ID is the unique identifier for this migration.
	ID string `json:"id"`

	// Name is the migration's display name.
	Name string `json:"name"`

	// OwnerUserID identifies the accountable owner.
	OwnerUserID string `json:"owner_user_id"`

	// StatusID is the migration's current status.
	StatusID string `json:"status_id"`

	// StartDate is the planned start of the migration.
	StartDate time.Time `json:"start_date"`

	// EndDate is the planned end of the migration.
	EndDate time.Time `json:"end_date"`

	// CreatedAt is when the migration was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the migration was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Iteration is a time-boxed execution window bound to exactly one plan
// template at instantiation time.
type Iteration struct {
	// ID is the unique identifier for this iteration.
	ID string `json:"id"`

	// MigrationID is the owning migration.
	MigrationID string `json:"migration_id"`

	// Type classifies the iteration (RUN, DR, CUTOVER).
	Type IterationType `json:"type"`

	// Name is the iteration's display name.
	Name string `json:"name"`

	// StatusID is the iteration's current status.
	StatusID string `json:"status_id"`

	// GraphID is set once the iteration's instance graph exists.
	GraphID string `json:"graph_id,omitempty"`

	// Closed marks the iteration terminal: no further status changes are
	// accepted on any node of its graph.
	Closed bool `json:"closed"`

	// CreatedAt is when the iteration was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the iteration was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditEvent records one applied transition. Append-only, never mutated.
type AuditEvent struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// GraphID is the instance graph the node belongs to.
	GraphID string `json:"graph_id"`

	// NodeID is the instance node that transitioned.
	NodeID string `json:"node_id"`

	// From is the category before the transition.
	From StatusCategory `json:"from"`

	// To is the category after the transition.
	To StatusCategory `json:"to"`

	// Actor identifies who requested the transition.
	Actor string `json:"actor"`

	// Timestamp is when the transition was applied.
	Timestamp time.Time `json:"timestamp"`
}
