package engine

import (
	"context"
	"sync"
	"testing"
	"time"
)

// recordingObserver counts observer callbacks for assertions.
type recordingObserver struct {
	mu       sync.Mutex
	applied  []*AuditEvent
	rejected []string
}

func (o *recordingObserver) TransitionApplied(event *AuditEvent) {
	o.mu.Lock()
	o.applied = append(o.applied, event)
	o.mu.Unlock()
}

func (o *recordingObserver) TransitionRejected(nodeID string, target StatusCategory, code string) {
	o.mu.Lock()
	o.rejected = append(o.rejected, code)
	o.mu.Unlock()
}

// mustTransition applies a transition that the test expects to succeed.
func mustTransition(t *testing.T, eng *Engine, nodeID string, target StatusCategory) *AuditEvent {
	t.Helper()
	event, err := eng.Transition(context.Background(), nodeID, target, "tester")
	if err != nil {
		t.Fatalf("transition to %s failed: %v", target, err)
	}
	return event
}

// start walks a leaf node from PENDING to IN_PROGRESS.
func start(t *testing.T, eng *Engine, nodeID string) {
	t.Helper()
	mustTransition(t, eng, nodeID, CategoryInProgress)
}

// complete walks a node from its current state through COMPLETED, starting it
// first if still pending.
func complete(t *testing.T, eng *Engine, nodeID string) {
	t.Helper()
	node, err := eng.Node(nodeID)
	if err != nil {
		t.Fatalf("failed to load node: %v", err)
	}
	if node.Category == CategoryPending {
		start(t, eng, nodeID)
	}
	mustTransition(t, eng, nodeID, CategoryCompleted)
}

// completeSubtree completes every node under and including the given one,
// children first.
func completeSubtree(t *testing.T, eng *Engine, nodeID string) {
	t.Helper()
	children, err := eng.Children(nodeID)
	if err != nil {
		t.Fatalf("failed to list children: %v", err)
	}
	for _, child := range children {
		completeSubtree(t, eng, child.ID)
	}
	complete(t, eng, nodeID)
}

func TestTransitionPredecessorGate(t *testing.T) {
	f := buildFixture(t)
	_, byTemplate := f.instantiate(t)

	stepA := byTemplate[f.stepA.ID]
	stepB := byTemplate[f.stepB.ID]

	// stepB cannot start while stepA is PENDING.
	_, err := f.eng.Transition(context.Background(), stepB.ID, CategoryInProgress, "tester")
	if err == nil {
		t.Fatal("expected predecessor gate to reject")
	}
	if CodeOf(err) != ErrCodePredecessorNotComplete {
		t.Errorf("expected PREDECESSOR_NOT_COMPLETE, got %s", CodeOf(err))
	}

	// IN_PROGRESS is not enough either.
	start(t, f.eng, stepA.ID)
	if _, err := f.eng.Transition(context.Background(), stepB.ID, CategoryInProgress, "tester"); CodeOf(err) != ErrCodePredecessorNotComplete {
		t.Errorf("expected PREDECESSOR_NOT_COMPLETE while predecessor runs, got %v", err)
	}

	// The gate does not block cancellation.
	instr := byTemplate[f.instr.ID]
	mustTransition(t, f.eng, instr.ID, CategoryCancelled)

	// Completing stepA opens the gate.
	mustTransition(t, f.eng, stepA.ID, CategoryCompleted)
	start(t, f.eng, stepB.ID)
}

func TestTransitionChildrenGate(t *testing.T) {
	f := buildFixture(t)
	_, byTemplate := f.instantiate(t)

	phase := byTemplate[f.phase.ID]
	stepA := byTemplate[f.stepA.ID]
	stepB := byTemplate[f.stepB.ID]
	instr := byTemplate[f.instr.ID]
	control := byTemplate[f.control.ID]

	start(t, f.eng, phase.ID)

	// The phase cannot complete while its steps and control are active.
	_, err := f.eng.Transition(context.Background(), phase.ID, CategoryCompleted, "tester")
	if err == nil {
		t.Fatal("expected children gate to reject")
	}
	if CodeOf(err) != ErrCodeChildrenIncomplete {
		t.Errorf("expected CHILDREN_INCOMPLETE, got %s", CodeOf(err))
	}

	ok, err := f.eng.CanComplete(phase.ID)
	if err != nil {
		t.Fatalf("CanComplete failed: %v", err)
	}
	if ok {
		t.Error("CanComplete should be false with active children")
	}

	// A CANCELLED child satisfies the gate the same as COMPLETED.
	complete(t, f.eng, instr.ID)
	complete(t, f.eng, stepA.ID)
	complete(t, f.eng, stepB.ID)
	mustTransition(t, f.eng, control.ID, CategoryCancelled)

	ok, err = f.eng.CanComplete(phase.ID)
	if err != nil {
		t.Fatalf("CanComplete failed: %v", err)
	}
	if !ok {
		t.Error("CanComplete should be true once all children are terminal")
	}

	// The engine never cascaded: the phase is still IN_PROGRESS until the
	// caller asks.
	reloaded, _ := f.eng.Node(phase.ID)
	if reloaded.Category != CategoryInProgress {
		t.Errorf("phase auto-transitioned to %s", reloaded.Category)
	}

	mustTransition(t, f.eng, phase.ID, CategoryCompleted)
}

func TestTransitionTerminalImmutable(t *testing.T) {
	f := buildFixture(t)
	_, byTemplate := f.instantiate(t)

	instr := byTemplate[f.instr.ID]
	complete(t, f.eng, instr.ID)

	for _, target := range Categories() {
		if _, err := f.eng.Transition(context.Background(), instr.ID, target, "tester"); CodeOf(err) != ErrCodeAlreadyTerminal {
			t.Errorf("expected ALREADY_TERMINAL for %s, got %v", target, err)
		}
	}
}

func TestTransitionRecovery(t *testing.T) {
	f := buildFixture(t)
	_, byTemplate := f.instantiate(t)

	instr := byTemplate[f.instr.ID]
	start(t, f.eng, instr.ID)
	mustTransition(t, f.eng, instr.ID, CategoryFailed)

	// FAILED retries back to IN_PROGRESS with no further precondition.
	mustTransition(t, f.eng, instr.ID, CategoryInProgress)
	mustTransition(t, f.eng, instr.ID, CategoryBlocked)
	mustTransition(t, f.eng, instr.ID, CategoryInProgress)
	mustTransition(t, f.eng, instr.ID, CategoryCompleted)

	// FAILED never jumps straight to COMPLETED.
	stepB := byTemplate[f.stepB.ID]
	complete(t, f.eng, byTemplate[f.stepA.ID].ID)
	start(t, f.eng, stepB.ID)
	mustTransition(t, f.eng, stepB.ID, CategoryFailed)
	if _, err := f.eng.Transition(context.Background(), stepB.ID, CategoryCompleted, "tester"); CodeOf(err) != ErrCodeInvalidTransition {
		t.Errorf("expected INVALID_TRANSITION for FAILED -> COMPLETED, got %v", err)
	}
}

func TestTransitionInvalidTargets(t *testing.T) {
	f := buildFixture(t)
	_, byTemplate := f.instantiate(t)
	instr := byTemplate[f.instr.ID]

	// Unknown category.
	if _, err := f.eng.Transition(context.Background(), instr.ID, StatusCategory("MAYBE"), "tester"); CodeOf(err) != ErrCodeInvalidTransition {
		t.Errorf("expected INVALID_TRANSITION for unknown category, got %v", err)
	}

	// PENDING cannot complete directly.
	if _, err := f.eng.Transition(context.Background(), instr.ID, CategoryCompleted, "tester"); CodeOf(err) != ErrCodeInvalidTransition {
		t.Errorf("expected INVALID_TRANSITION for PENDING -> COMPLETED, got %v", err)
	}

	// Unknown node.
	if _, err := f.eng.Transition(context.Background(), "no-such-node", CategoryInProgress, "tester"); CodeOf(err) != ErrCodeUnknownNode {
		t.Errorf("expected UNKNOWN_NODE, got %v", err)
	}
}

func TestTransitionClosedIteration(t *testing.T) {
	f := buildFixture(t)
	_, byTemplate := f.instantiate(t)
	instr := byTemplate[f.instr.ID]

	start(t, f.eng, instr.ID)
	if err := f.eng.CloseIteration(context.Background(), f.iteration.ID); err != nil {
		t.Fatalf("failed to close iteration: %v", err)
	}

	_, err := f.eng.Transition(context.Background(), instr.ID, CategoryCompleted, "tester")
	if err == nil {
		t.Fatal("expected transition on closed iteration to fail")
	}
	if CodeOf(err) != ErrCodeIterationClosed {
		t.Errorf("expected ITERATION_CLOSED, got %s", CodeOf(err))
	}
}

func TestTransitionTimestamps(t *testing.T) {
	f := buildFixture(t)
	_, byTemplate := f.instantiate(t)
	instr := byTemplate[f.instr.ID]

	start(t, f.eng, instr.ID)
	node, _ := f.eng.Node(instr.ID)
	if node.StartTime == nil {
		t.Fatal("StartTime not stamped on first IN_PROGRESS")
	}
	if node.EndTime != nil {
		t.Error("EndTime stamped before terminal")
	}
	firstStart := *node.StartTime

	// A retry does not move the original start.
	mustTransition(t, f.eng, instr.ID, CategoryFailed)
	mustTransition(t, f.eng, instr.ID, CategoryInProgress)
	node, _ = f.eng.Node(instr.ID)
	if !node.StartTime.Equal(firstStart) {
		t.Error("retry overwrote the original StartTime")
	}

	mustTransition(t, f.eng, instr.ID, CategoryCompleted)
	node, _ = f.eng.Node(instr.ID)
	if node.EndTime == nil {
		t.Fatal("EndTime not stamped on terminal")
	}
	if node.EndTime.Before(*node.StartTime) {
		t.Error("EndTime precedes StartTime")
	}
}

func TestTransitionSwapsStatusRefs(t *testing.T) {
	f := buildFixture(t)
	_, byTemplate := f.instantiate(t)
	instr := byTemplate[f.instr.ID]

	registry := f.eng.Registry()
	pending, _ := registry.ForCategory(KindInstruction, CategoryPending)
	inProgress, _ := registry.ForCategory(KindInstruction, CategoryInProgress)

	before := registry.RefCount(pending.ID)
	start(t, f.eng, instr.ID)

	if registry.RefCount(pending.ID) != before-1 {
		t.Error("old status reference not released")
	}
	if registry.RefCount(inProgress.ID) != 1 {
		t.Errorf("new status reference not taken, count %d", registry.RefCount(inProgress.ID))
	}

	node, _ := f.eng.Node(instr.ID)
	if node.StatusID != inProgress.ID {
		t.Error("node status not swapped to the per-kind IN_PROGRESS status")
	}
}

func TestAuditTrailOrderAndContent(t *testing.T) {
	f := buildFixture(t)
	graph, byTemplate := f.instantiate(t)
	instr := byTemplate[f.instr.ID]

	start(t, f.eng, instr.ID)
	mustTransition(t, f.eng, instr.ID, CategoryBlocked)
	mustTransition(t, f.eng, instr.ID, CategoryInProgress)
	mustTransition(t, f.eng, instr.ID, CategoryCompleted)

	trail := f.eng.AuditTrail(instr.ID)
	if len(trail) != 4 {
		t.Fatalf("expected 4 audit events, got %d", len(trail))
	}

	want := []struct{ from, to StatusCategory }{
		{CategoryPending, CategoryInProgress},
		{CategoryInProgress, CategoryBlocked},
		{CategoryBlocked, CategoryInProgress},
		{CategoryInProgress, CategoryCompleted},
	}
	for i, ev := range trail {
		if ev.From != want[i].from || ev.To != want[i].to {
			t.Errorf("event %d: %s -> %s, want %s -> %s", i, ev.From, ev.To, want[i].from, want[i].to)
		}
		if ev.GraphID != graph.ID || ev.NodeID != instr.ID || ev.Actor != "tester" {
			t.Errorf("event %d missing context: %+v", i, ev)
		}
		if ev.ID == "" {
			t.Errorf("event %d has no ID", i)
		}
		if i > 0 && ev.Timestamp.Before(trail[i-1].Timestamp) {
			t.Errorf("event %d out of order", i)
		}
	}

	if got := f.eng.GraphAudit(graph.ID); len(got) != 4 {
		t.Errorf("expected 4 graph audit events, got %d", len(got))
	}
}

func TestObserverNotifications(t *testing.T) {
	obs := &recordingObserver{}
	f := buildFixture(t, WithObserver(obs))
	_, byTemplate := f.instantiate(t)
	instr := byTemplate[f.instr.ID]

	start(t, f.eng, instr.ID)
	mustTransition(t, f.eng, instr.ID, CategoryCompleted)

	// One rejection: terminal nodes do not move.
	if _, err := f.eng.Transition(context.Background(), instr.ID, CategoryInProgress, "tester"); err == nil {
		t.Fatal("expected rejection")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.applied) != 2 {
		t.Errorf("expected 2 applied notifications, got %d", len(obs.applied))
	}
	if len(obs.rejected) != 1 || obs.rejected[0] != ErrCodeAlreadyTerminal {
		t.Errorf("expected one ALREADY_TERMINAL rejection, got %v", obs.rejected)
	}
}

func TestConcurrentSiblingTransitions(t *testing.T) {
	registry := NewStatusRegistry()
	if err := registry.SeedDefaults(); err != nil {
		t.Fatalf("failed to seed statuses: %v", err)
	}

	catalog := NewTemplateCatalog()
	plan, _ := catalog.CreateNode(KindPlan, "", 0, "wide-plan")
	seq, _ := catalog.CreateNode(KindSequence, plan.ID, 0, "seq")
	phase, _ := catalog.CreateNode(KindPhase, seq.ID, 0, "phase")
	const siblings = 32
	for i := 0; i < siblings; i++ {
		if _, err := catalog.CreateNode(KindStep, phase.ID, i, "step"); err != nil {
			t.Fatalf("failed to create step: %v", err)
		}
	}

	eng := New(registry, catalog)
	ctx := context.Background()
	m, _ := eng.CreateMigration(ctx, "m", "user-1", time.Now(), time.Now().Add(24*time.Hour))
	it, _ := eng.CreateIteration(ctx, m.ID, IterationTypeRun, "run-1")
	graph, err := eng.Instantiate(ctx, it.ID, plan.ID)
	if err != nil {
		t.Fatalf("failed to instantiate: %v", err)
	}

	var stepIDs []string
	nodes, _ := eng.Nodes(graph.ID)
	var phaseInstance string
	for _, n := range nodes {
		switch n.Kind {
		case KindStep:
			stepIDs = append(stepIDs, n.ID)
		case KindPhase:
			phaseInstance = n.ID
		}
	}
	if len(stepIDs) != siblings {
		t.Fatalf("expected %d steps, got %d", siblings, len(stepIDs))
	}

	// All siblings start and complete in parallel.
	var wg sync.WaitGroup
	errs := make(chan error, siblings*2)
	for _, id := range stepIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := eng.Transition(ctx, id, CategoryInProgress, "worker"); err != nil {
				errs <- err
				return
			}
			if _, err := eng.Transition(ctx, id, CategoryCompleted, "worker"); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent transition failed: %v", err)
	}

	ok, err := eng.CanComplete(phaseInstance)
	if err != nil {
		t.Fatalf("CanComplete failed: %v", err)
	}
	if !ok {
		t.Error("all siblings completed but CanComplete is false")
	}

	if got := len(eng.GraphAudit(graph.ID)); got != siblings*2 {
		t.Errorf("expected %d audit events, got %d", siblings*2, got)
	}
}
