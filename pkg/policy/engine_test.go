package policy

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewEngine(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if eng == nil {
		t.Fatal("Engine is nil")
	}

	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"iteration-window",
		"team-ownership",
		"cancellation-cascade",
		"cutover-safety",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluateTransition_IterationWindow(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	now := time.Now()
	past := now.Add(-2 * time.Hour)
	future := now.Add(2 * time.Hour)

	tests := []struct {
		name          string
		input         *Input
		expectAllowed bool
	}{
		{
			name: "open iteration inside window",
			input: &Input{
				Node:   &NodeInput{ID: "node-1", Kind: "STEP", Name: "stop-app", Category: "PENDING"},
				Target: "IN_PROGRESS",
				Iteration: &IterationInput{
					ID: "it-1", Type: "RUN",
					WindowStart: &past, WindowEnd: &future,
				},
				Context: &Context{Actor: "alice", Timestamp: now},
			},
			expectAllowed: true,
		},
		{
			name: "closed iteration",
			input: &Input{
				Node:      &NodeInput{ID: "node-2", Kind: "STEP", Name: "stop-app", Category: "PENDING"},
				Target:    "IN_PROGRESS",
				Iteration: &IterationInput{ID: "it-2", Type: "RUN", Closed: true},
				Context:   &Context{Actor: "alice", Timestamp: now},
			},
			expectAllowed: false,
		},
		{
			name: "before window opens",
			input: &Input{
				Node:   &NodeInput{ID: "node-3", Kind: "STEP", Name: "stop-app", Category: "PENDING"},
				Target: "IN_PROGRESS",
				Iteration: &IterationInput{
					ID: "it-3", Type: "RUN",
					WindowStart: &future,
				},
				Context: &Context{Actor: "alice", Timestamp: now},
			},
			expectAllowed: false,
		},
		{
			name: "recovery from FAILED after window is still allowed",
			input: &Input{
				Node:   &NodeInput{ID: "node-4", Kind: "STEP", Name: "stop-app", Category: "FAILED"},
				Target: "IN_PROGRESS",
				Iteration: &IterationInput{
					ID: "it-4", Type: "RUN",
					WindowEnd: &past,
				},
				Context: &Context{Actor: "alice", Timestamp: now},
			},
			expectAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateTransition(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}
			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v (violations: %+v)",
					tt.expectAllowed, result.Allowed, result.Violations)
			}
		})
	}
}

func TestEvaluateTransition_TeamOwnership(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name          string
		node          *NodeInput
		actorTeams    []string
		expectAllowed bool
	}{
		{
			name:          "actor in owning team",
			node:          &NodeInput{ID: "node-1", Kind: "STEP", Name: "stop-app", Category: "PENDING", OwnerTeam: "network"},
			actorTeams:    []string{"network", "dba"},
			expectAllowed: true,
		},
		{
			name:          "actor not in owning team",
			node:          &NodeInput{ID: "node-2", Kind: "STEP", Name: "stop-app", Category: "PENDING", OwnerTeam: "network"},
			actorTeams:    []string{"dba"},
			expectAllowed: false,
		},
		{
			name:          "unowned step is open to anyone",
			node:          &NodeInput{ID: "node-3", Kind: "STEP", Name: "stop-app", Category: "PENDING"},
			actorTeams:    nil,
			expectAllowed: true,
		},
		{
			name:          "ownership not enforced above step level",
			node:          &NodeInput{ID: "node-4", Kind: "PHASE", Name: "shutdown", Category: "PENDING", OwnerTeam: "network"},
			actorTeams:    []string{"dba"},
			expectAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &Input{
				Node:      tt.node,
				Target:    "IN_PROGRESS",
				Iteration: &IterationInput{ID: "it-1", Type: "RUN"},
				Context:   &Context{Actor: "alice", ActorTeams: tt.actorTeams},
			}
			result, err := eng.EvaluateTransition(context.Background(), input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}
			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v (violations: %+v)",
					tt.expectAllowed, result.Allowed, result.Violations)
			}
		})
	}
}

func TestEvaluateTransition_CancellationCascade(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	node := &NodeInput{
		ID: "node-1", Kind: "PHASE", Name: "shutdown", Category: "IN_PROGRESS",
		ChildCategories: []string{"COMPLETED", "IN_PROGRESS"},
	}

	// Without acknowledgement the cancel is denied.
	result, err := eng.EvaluateTransition(context.Background(), &Input{
		Node:      node,
		Target:    "CANCELLED",
		Iteration: &IterationInput{ID: "it-1", Type: "RUN"},
		Context:   &Context{Actor: "alice"},
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected cancel with active children to be denied without acknowledgement")
	}

	// With acknowledgement it passes; children stay untouched.
	result, err = eng.EvaluateTransition(context.Background(), &Input{
		Node:      node,
		Target:    "CANCELLED",
		Iteration: &IterationInput{ID: "it-1", Type: "RUN"},
		Context:   &Context{Actor: "alice", CascadeApproved: true},
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected acknowledged cancel to be allowed, violations: %+v", result.Violations)
	}

	// All children terminal: no acknowledgement needed.
	result, err = eng.EvaluateTransition(context.Background(), &Input{
		Node: &NodeInput{
			ID: "node-2", Kind: "PHASE", Name: "shutdown", Category: "IN_PROGRESS",
			ChildCategories: []string{"COMPLETED", "CANCELLED"},
		},
		Target:    "CANCELLED",
		Iteration: &IterationInput{ID: "it-1", Type: "RUN"},
		Context:   &Context{Actor: "alice"},
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected cancel with terminal children to be allowed, violations: %+v", result.Violations)
	}
}

func TestEvaluateTransition_CutoverSafetyWarns(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	result, err := eng.EvaluateTransition(context.Background(), &Input{
		Node:      &NodeInput{ID: "node-1", Kind: "STEP", Name: "stop-app", Category: "FAILED"},
		Target:    "IN_PROGRESS",
		Iteration: &IterationInput{ID: "it-1", Type: "CUTOVER"},
		Context:   &Context{Actor: "alice", Environment: "production"},
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	// Warning severity never blocks.
	if !result.Allowed {
		t.Errorf("Expected warning-only result to be allowed, violations: %+v", result.Violations)
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "cutover-safety" && v.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Error("Expected a cutover-safety warning violation")
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if err := eng.DisablePolicy("team-ownership"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	// Disabled policy no longer denies.
	result, err := eng.EvaluateTransition(context.Background(), &Input{
		Node:      &NodeInput{ID: "node-1", Kind: "STEP", Name: "stop-app", Category: "PENDING", OwnerTeam: "network"},
		Target:    "IN_PROGRESS",
		Iteration: &IterationInput{ID: "it-1", Type: "RUN"},
		Context:   &Context{Actor: "alice", ActorTeams: []string{"dba"}},
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected transition allowed with ownership policy disabled, violations: %+v", result.Violations)
	}

	if err := eng.EnablePolicy("team-ownership"); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	if err := eng.DisablePolicy("no-such-policy"); err == nil {
		t.Error("Expected error disabling unknown policy")
	}
}

func TestGetPolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	p, err := eng.GetPolicy("iteration-window")
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}
	if p.Name != "iteration-window" {
		t.Errorf("Expected policy name 'iteration-window', got '%s'", p.Name)
	}

	if _, err := eng.GetPolicy("missing"); err == nil {
		t.Error("Expected error for missing policy")
	}
}

func TestLoadPoliciesFromFiles(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tmpDir := t.TempDir()
	policyFile := tmpDir + "/no-weekend-cutovers.rego"
	regoContent := `package cutover.policies.weekend

import rego.v1

deny contains violation if {
	input.iteration.type == "CUTOVER"
	weekday := time.weekday(time.parse_rfc3339_ns(input.context.timestamp))
	weekday in ["Saturday", "Sunday"]

	violation := {
		"message": "Cutover transitions are not allowed on weekends",
		"severity": "error",
		"node": input.node.id,
	}
}`
	if err := os.WriteFile(policyFile, []byte(regoContent), 0644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{policyFile}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	if _, err := eng.GetPolicy("no-weekend-cutovers"); err != nil {
		t.Errorf("Expected file policy to be registered: %v", err)
	}
}

func TestReloadPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	before := len(eng.ListPolicies())

	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}

	after := len(eng.ListPolicies())
	if after != before {
		t.Errorf("Expected %d policies after reload, got %d", before, after)
	}
}
