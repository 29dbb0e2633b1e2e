// Package policy provides Open Policy Agent (OPA) integration for the
// cutover engine.
//
// This package gates status transitions with Rego policies. It includes
// built-in policies for common governance requirements and supports custom
// policy loading with hot reload.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads policies from files, directories, and bundles
//  3. Types - Data structures for policies, violations, and results
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine:
//
//	logger := zerolog.New(os.Stdout)
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Evaluating a transition request:
//
//	input := &policy.Input{
//	    Node:      policy.NewNodeInput(node, "network", children),
//	    Target:    "IN_PROGRESS",
//	    Iteration: policy.NewIterationInput(iteration, nil, nil),
//	    Context:   &policy.Context{Actor: "alice", ActorTeams: []string{"network"}},
//	}
//
//	result, err := eng.EvaluateTransition(ctx, input)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/cutover/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = eng.LoadPolicies(ctx, paths)
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. iteration-window - Blocks transitions on closed iterations or outside
//     the execution window
//  2. team-ownership - Requires the actor to belong to the owning team for
//     step and instruction transitions
//  3. cancellation-cascade - Requires explicit acknowledgement before
//     cancelling a node with active children; children are never cancelled
//     automatically
//  4. cutover-safety - Warns about retries during production cutovers
//
// # Custom Policies
//
// Custom policies are written in Rego against the transition input:
//
//	package custom.policies.freeze
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.context.environment == "production"
//	    input.context.metadata.change_freeze == true
//
//	    violation := {
//	        "message": "Change freeze is in effect",
//	        "severity": "error",
//	        "node": input.node.id,
//	    }
//	}
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that should be reviewed but don't block transitions
//   - error: Issues that block transitions
//   - critical: Severe issues requiring immediate attention
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading
// automatically:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return eng.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. The engine
// uses OPA's PreparedEvalQuery and caches loaded files.
package policy
