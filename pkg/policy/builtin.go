package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		iterationWindowPolicy(),
		teamOwnershipPolicy(),
		cancellationCascadePolicy(),
		cutoverSafetyPolicy(),
	}
}

// iterationWindowPolicy blocks transitions outside the iteration's execution window.
func iterationWindowPolicy() Policy {
	return Policy{
		Name:        "iteration-window",
		Description: "Blocks status transitions on closed iterations or outside the planned execution window",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"iteration", "scheduling"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cutover.policies.window

import rego.v1

deny contains violation if {
	input.iteration
	input.iteration.closed

	violation := {
		"message": sprintf("Iteration %s is closed; no further transitions are accepted", [input.iteration.id]),
		"severity": "error",
		"node": input.node.id,
	}
}

deny contains violation if {
	input.iteration.window_start
	input.context.timestamp < input.iteration.window_start

	violation := {
		"message": sprintf("Transition requested before iteration %s opens its execution window", [input.iteration.id]),
		"severity": "error",
		"node": input.node.id,
	}
}

deny contains violation if {
	input.iteration.window_end
	input.context.timestamp > input.iteration.window_end

	# Recoveries out of FAILED/BLOCKED stay possible after the window
	not input.node.category in ["FAILED", "BLOCKED"]

	violation := {
		"message": sprintf("Transition requested after iteration %s closed its execution window", [input.iteration.id]),
		"severity": "error",
		"node": input.node.id,
	}
}`,
	}
}

// teamOwnershipPolicy requires the actor to belong to the owning team for
// step-level transitions.
func teamOwnershipPolicy() Policy {
	return Policy{
		Name:        "team-ownership",
		Description: "Requires the actor to belong to the owning team when transitioning steps and instructions",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"teams", "authorization"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cutover.policies.ownership

import rego.v1

owned_kinds := ["STEP", "INSTRUCTION"]

deny contains violation if {
	input.node.kind in owned_kinds
	input.node.owner_team != ""

	not input.node.owner_team in input.context.actor_teams

	violation := {
		"message": sprintf("Actor %s is not a member of owning team %s for node %s", [input.context.actor, input.node.owner_team, input.node.id]),
		"severity": "error",
		"node": input.node.id,
	}
}`,
	}
}

// cancellationCascadePolicy requires explicit acknowledgement before a parent
// with active children is cancelled. Children are never cancelled
// automatically; the acknowledgement only unblocks the parent itself.
func cancellationCascadePolicy() Policy {
	return Policy{
		Name:        "cancellation-cascade",
		Description: "Requires explicit acknowledgement before cancelling a node whose children are still active",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"cancellation", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cutover.policies.cascade

import rego.v1

active_categories := ["PENDING", "IN_PROGRESS", "FAILED", "BLOCKED"]

deny contains violation if {
	input.target == "CANCELLED"

	some cat in input.node.child_categories
	cat in active_categories

	not input.context.cascade_approved

	violation := {
		"message": sprintf("Cancelling node %s leaves active children untouched; set cascade_approved to acknowledge", [input.node.id]),
		"severity": "error",
		"node": input.node.id,
	}
}`,
	}
}

// cutoverSafetyPolicy warns about recoveries during CUTOVER iterations in
// production.
func cutoverSafetyPolicy() Policy {
	return Policy{
		Name:        "cutover-safety",
		Description: "Warns when failed nodes are retried during a production cutover iteration",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"cutover", "safety", "production"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package cutover.policies.safety

import rego.v1

deny contains violation if {
	input.iteration.type == "CUTOVER"
	input.context.environment == "production"

	input.node.category in ["FAILED", "BLOCKED"]
	input.target == "IN_PROGRESS"

	not input.context.dry_run

	violation := {
		"message": sprintf("Retrying node %s during a production cutover; verify the failure is understood before resuming", [input.node.id]),
		"severity": "warning",
		"node": input.node.id,
	}
}`,
	}
}
