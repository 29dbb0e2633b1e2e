package engine

import (
	"encoding/json"
	"fmt"
)

// StatusCategory is the canonical execution state of an instance node.
// The engine's transition rules operate on categories; the status registry
// maps them to per-kind presentation names and colors.
type StatusCategory string

const (
	// CategoryPending indicates the node has not started yet.
	CategoryPending StatusCategory = "PENDING"

	// CategoryInProgress indicates the node is actively being executed.
	CategoryInProgress StatusCategory = "IN_PROGRESS"

	// CategoryCompleted indicates the node finished successfully. Terminal.
	CategoryCompleted StatusCategory = "COMPLETED"

	// CategoryFailed indicates execution failed. Recoverable via retry.
	CategoryFailed StatusCategory = "FAILED"

	// CategoryBlocked indicates execution is blocked on an external
	// condition. Recoverable once the condition clears.
	CategoryBlocked StatusCategory = "BLOCKED"

	// CategoryCancelled indicates the node was abandoned. Terminal.
	CategoryCancelled StatusCategory = "CANCELLED"
)

// Categories lists all canonical categories in their seeding order.
// The first entry is the initial category for every entity kind.
func Categories() []StatusCategory {
	return []StatusCategory{
		CategoryPending,
		CategoryInProgress,
		CategoryCompleted,
		CategoryFailed,
		CategoryBlocked,
		CategoryCancelled,
	}
}

// IsTerminal returns true if the category represents a final state.
func (c StatusCategory) IsTerminal() bool {
	return c == CategoryCompleted || c == CategoryCancelled
}

// IsRecoverable returns true if the node can return to IN_PROGRESS.
func (c StatusCategory) IsRecoverable() bool {
	return c == CategoryFailed || c == CategoryBlocked
}

// Validate checks if the category is one of the canonical values.
func (c StatusCategory) Validate() error {
	switch c {
	case CategoryPending, CategoryInProgress, CategoryCompleted,
		CategoryFailed, CategoryBlocked, CategoryCancelled:
		return nil
	default:
		return fmt.Errorf("invalid status category: %s", c)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (c StatusCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (c *StatusCategory) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*c = StatusCategory(str)
	return c.Validate()
}

// allowedEdges is the transition table. Preconditions beyond the edge itself
// (predecessor gating, child completion) are checked by Transition.
var allowedEdges = map[StatusCategory][]StatusCategory{
	CategoryPending:    {CategoryInProgress, CategoryCancelled},
	CategoryInProgress: {CategoryCompleted, CategoryFailed, CategoryBlocked, CategoryCancelled},
	CategoryFailed:     {CategoryInProgress, CategoryCancelled},
	CategoryBlocked:    {CategoryInProgress, CategoryCancelled},
	CategoryCompleted:  {},
	CategoryCancelled:  {},
}

// CanTransition reports whether the edge from one category to another exists
// in the state machine, ignoring gating preconditions.
func CanTransition(from, to StatusCategory) bool {
	for _, t := range allowedEdges[from] {
		if t == to {
			return true
		}
	}
	return false
}

// EntityKind identifies a level of the plan hierarchy.
type EntityKind string

const (
	// KindMigration is the top-level container.
	KindMigration EntityKind = "MIGRATION"

	// KindIteration is a time-boxed execution window within a migration.
	KindIteration EntityKind = "ITERATION"

	// KindPlan is the root of a template or instance graph.
	KindPlan EntityKind = "PLAN"

	// KindSequence is an ordered group of phases within a plan.
	KindSequence EntityKind = "SEQUENCE"

	// KindPhase is an ordered group of steps within a sequence.
	KindPhase EntityKind = "PHASE"

	// KindStep is an executable unit of work within a phase.
	KindStep EntityKind = "STEP"

	// KindInstruction is an atomic action within a step.
	KindInstruction EntityKind = "INSTRUCTION"

	// KindControl is a quality checkpoint attached to a phase.
	KindControl EntityKind = "CONTROL"
)

// EntityKinds lists every kind the registry seeds statuses for.
func EntityKinds() []EntityKind {
	return []EntityKind{
		KindMigration, KindIteration, KindPlan, KindSequence,
		KindPhase, KindStep, KindInstruction, KindControl,
	}
}

// Validate checks if the entity kind is one of the known values.
func (k EntityKind) Validate() error {
	switch k {
	case KindMigration, KindIteration, KindPlan, KindSequence,
		KindPhase, KindStep, KindInstruction, KindControl:
		return nil
	default:
		return fmt.Errorf("invalid entity kind: %s", k)
	}
}

// parentKinds maps a graph-node kind to its required parent kind.
// Plan nodes are roots and have no entry.
var parentKinds = map[EntityKind]EntityKind{
	KindSequence:    KindPlan,
	KindPhase:       KindSequence,
	KindStep:        KindPhase,
	KindInstruction: KindStep,
	KindControl:     KindPhase,
}

// ParentKind returns the kind a node of the given kind must parent to,
// and false for root (plan) nodes.
func ParentKind(kind EntityKind) (EntityKind, bool) {
	p, ok := parentKinds[kind]
	return p, ok
}

// IsGraphKind returns true for kinds that appear as template or instance
// graph nodes (as opposed to the migration/iteration containers).
func IsGraphKind(kind EntityKind) bool {
	if kind == KindPlan {
		return true
	}
	_, ok := parentKinds[kind]
	return ok
}

// IterationType classifies an iteration's purpose.
type IterationType string

const (
	// IterationTypeRun is a rehearsal execution window.
	IterationTypeRun IterationType = "RUN"

	// IterationTypeDR is a disaster-recovery test window.
	IterationTypeDR IterationType = "DR"

	// IterationTypeCutover is the production cutover window.
	IterationTypeCutover IterationType = "CUTOVER"
)

// Validate checks if the iteration type is one of the known codes.
func (t IterationType) Validate() error {
	switch t {
	case IterationTypeRun, IterationTypeDR, IterationTypeCutover:
		return nil
	default:
		return fmt.Errorf("invalid iteration type: %s", t)
	}
}
