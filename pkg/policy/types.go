package policy

import (
	"time"

	"github.com/cutoverhq/cutover/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// NodeID is the instance node that violated the policy.
	NodeID string `json:"node_id,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Details contains additional violation details.
	Details map[string]interface{} `json:"details,omitempty"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed indicates if the operation is allowed.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation warnings that don't block operations.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// NodeInput is the node view passed to policies.
type NodeInput struct {
	// ID is the instance node ID.
	ID string `json:"id"`

	// Kind is the hierarchy level.
	Kind string `json:"kind"`

	// Name is the node display name.
	Name string `json:"name"`

	// Category is the node's current canonical category.
	Category string `json:"category"`

	// OwnerTeam is the name of the team accountable for the node.
	OwnerTeam string `json:"owner_team,omitempty"`

	// ChildCategories lists the current categories of the node's children.
	ChildCategories []string `json:"child_categories,omitempty"`
}

// IterationInput is the iteration view passed to policies.
type IterationInput struct {
	// ID is the iteration ID.
	ID string `json:"id"`

	// Type classifies the iteration (RUN, DR, CUTOVER).
	Type string `json:"type"`

	// Closed marks whether the iteration has been closed.
	Closed bool `json:"closed"`

	// WindowStart is the planned start of the execution window.
	WindowStart *time.Time `json:"window_start,omitempty"`

	// WindowEnd is the planned end of the execution window.
	WindowEnd *time.Time `json:"window_end,omitempty"`
}

// Input represents the input data for transition policy evaluation.
type Input struct {
	// Node is the instance node being transitioned.
	Node *NodeInput `json:"node,omitempty"`

	// Target is the requested canonical category.
	Target string `json:"target,omitempty"`

	// Iteration is the iteration the node's graph executes under.
	Iteration *IterationInput `json:"iteration,omitempty"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Actor is the user requesting the transition.
	Actor string `json:"actor,omitempty"`

	// ActorTeams lists team names the actor belongs to.
	ActorTeams []string `json:"actor_teams,omitempty"`

	// Environment is the environment (e.g., "production", "staging").
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// CascadeApproved marks that the actor explicitly acknowledged
	// cancelling a subtree with non-terminal children.
	CascadeApproved bool `json:"cascade_approved"`

	// DryRun indicates if this is a dry-run evaluation.
	DryRun bool `json:"dry_run"`

	// Metadata contains additional context metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`

	// CreatedAt is when the bundle was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewNodeInput builds a NodeInput from an instance node and its children.
func NewNodeInput(node *engine.InstanceNode, ownerTeam string, children []*engine.InstanceNode) *NodeInput {
	in := &NodeInput{
		ID:        node.ID,
		Kind:      string(node.Kind),
		Name:      node.Name,
		Category:  string(node.Category),
		OwnerTeam: ownerTeam,
	}
	for _, c := range children {
		in.ChildCategories = append(in.ChildCategories, string(c.Category))
	}
	return in
}

// NewIterationInput builds an IterationInput from an iteration.
func NewIterationInput(it *engine.Iteration, windowStart, windowEnd *time.Time) *IterationInput {
	return &IterationInput{
		ID:          it.ID,
		Type:        string(it.Type),
		Closed:      it.Closed,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
}
