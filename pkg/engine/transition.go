package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transition applies a status change to one instance node.
//
// Gating rules:
//   - PENDING -> IN_PROGRESS requires the same-level predecessor (if any) to
//     be COMPLETED.
//   - IN_PROGRESS -> COMPLETED requires every child to be COMPLETED or
//     CANCELLED.
//   - IN_PROGRESS -> FAILED/BLOCKED is always allowed and cascades nothing
//     to children; the orchestration layer owns any cascade policy.
//   - FAILED/BLOCKED -> IN_PROGRESS is a retry with no further precondition.
//   - Any -> CANCELLED is allowed except from COMPLETED.
//   - Nothing transitions after the iteration is closed.
//
// The call locks the target node and its parent (parent first; the
// containment tree makes that order deadlock-free) so two concurrent
// transitions cannot both act on a stale children snapshot. Siblings are
// not locked and proceed in parallel.
//
// On success the applied transition is appended to the immutable audit
// trail and returned. The engine never auto-triggers parent transitions;
// callers poll CanComplete instead.
func (e *Engine) Transition(ctx context.Context, nodeID string, target StatusCategory, actor string) (*AuditEvent, error) {
	if err := target.Validate(); err != nil {
		return nil, e.reject(nodeID, target, ErrCodeInvalidTransition,
			NewValidationError("invalid target category", err).
				WithCode(ErrCodeInvalidTransition).WithNode(nodeID))
	}

	e.mu.RLock()
	graphID, ok := e.nodeIndex[nodeID]
	if !ok {
		e.mu.RUnlock()
		return nil, e.reject(nodeID, target, ErrCodeUnknownNode,
			NewValidationError(fmt.Sprintf("instance node not found: %s", nodeID), nil).
				WithCode(ErrCodeUnknownNode).WithNode(nodeID))
	}
	gs := e.graphs[graphID]
	node := gs.nodes[nodeID]
	nodeLock := gs.locks[nodeID]
	var parentLock *sync.Mutex
	if node.ParentID != "" {
		parentLock = gs.locks[node.ParentID]
	}
	e.mu.RUnlock()

	if parentLock != nil {
		parentLock.Lock()
		defer parentLock.Unlock()
	}
	nodeLock.Lock()
	defer nodeLock.Unlock()

	e.mu.Lock()
	event, nodeCopy, err := e.applyLocked(gs, node, target, actor)
	e.mu.Unlock()
	if err != nil {
		return nil, e.reject(nodeID, target, CodeOf(err), err)
	}

	if perr := e.persister.UpdateInstanceNode(ctx, nodeCopy); perr != nil {
		return nil, fmt.Errorf("persisting node transition: %w", perr)
	}
	if perr := e.persister.AppendAuditEvent(ctx, event); perr != nil {
		return nil, fmt.Errorf("persisting audit event: %w", perr)
	}

	e.observer.TransitionApplied(event)
	e.logger.Info().
		Str("node_id", nodeID).
		Str("graph_id", graphID).
		Str("from", string(event.From)).
		Str("to", string(event.To)).
		Str("actor", actor).
		Msg("transition applied")

	cp := *event
	return &cp, nil
}

// applyLocked validates gating and mutates the node. Caller holds the
// parent/node locks and the engine lock.
func (e *Engine) applyLocked(gs *graphState, node *InstanceNode, target StatusCategory, actor string) (*AuditEvent, *InstanceNode, error) {
	it := e.iterations[gs.graph.IterationID]
	if it != nil && it.Closed {
		return nil, nil, NewStateError(
			fmt.Sprintf("iteration %s is closed", gs.graph.IterationID), nil).
			WithCode(ErrCodeIterationClosed).WithNode(node.ID)
	}

	from := node.Category
	if from.IsTerminal() {
		return nil, nil, NewStateError(
			fmt.Sprintf("node is terminal in %s", from), nil).
			WithCode(ErrCodeAlreadyTerminal).WithNode(node.ID)
	}
	if !CanTransition(from, target) {
		return nil, nil, NewStateError(
			fmt.Sprintf("no transition from %s to %s", from, target), nil).
			WithCode(ErrCodeInvalidTransition).WithNode(node.ID)
	}

	if target == CategoryInProgress && from == CategoryPending && node.PredecessorID != "" {
		pred := gs.nodes[node.PredecessorID]
		if pred == nil {
			return nil, nil, NewIntegrityError(
				fmt.Sprintf("predecessor instance %s missing", node.PredecessorID), nil).
				WithCode(ErrCodeIncompleteTemplate).WithNode(node.ID)
		}
		if pred.Category != CategoryCompleted {
			return nil, nil, NewStateError(
				fmt.Sprintf("predecessor %s is %s, not COMPLETED", pred.ID, pred.Category), nil).
				WithCode(ErrCodePredecessorNotComplete).WithNode(node.ID).
				WithDetail("predecessor_id", pred.ID).
				WithDetail("predecessor_category", string(pred.Category))
		}
	}

	if target == CategoryCompleted {
		if incomplete := e.incompleteChildrenLocked(gs, node.ID); len(incomplete) > 0 {
			return nil, nil, NewStateError(
				fmt.Sprintf("%d children are not complete", len(incomplete)), nil).
				WithCode(ErrCodeChildrenIncomplete).WithNode(node.ID).
				WithDetail("incomplete_children", incomplete)
		}
	}

	status, err := e.registry.ForCategory(node.Kind, target)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	e.registry.dropRef(node.StatusID)
	e.registry.addRef(status.ID)
	node.StatusID = status.ID
	node.Category = target
	node.UpdatedAt = now
	if target == CategoryInProgress && node.StartTime == nil {
		t := now
		node.StartTime = &t
	}
	if target.IsTerminal() {
		t := now
		node.EndTime = &t
	}

	event := &AuditEvent{
		ID:        uuid.New().String(),
		GraphID:   gs.graph.ID,
		NodeID:    node.ID,
		From:      from,
		To:        target,
		Actor:     actor,
		Timestamp: now,
	}
	e.audit = append(e.audit, event)

	cp := *node
	return event, &cp, nil
}

// incompleteChildrenLocked lists child IDs not in a terminal-complete
// category. Caller holds the engine lock and the parent's node lock.
func (e *Engine) incompleteChildrenLocked(gs *graphState, parentID string) []string {
	var out []string
	for _, childID := range gs.children[parentID] {
		c := gs.nodes[childID].Category
		if c != CategoryCompleted && c != CategoryCancelled {
			out = append(out, childID)
		}
	}
	return out
}

// reject notifies the observer and passes the error through.
func (e *Engine) reject(nodeID string, target StatusCategory, code string, err error) error {
	e.observer.TransitionRejected(nodeID, target, code)
	e.logger.Debug().
		Str("node_id", nodeID).
		Str("target", string(target)).
		Str("code", code).
		Msg("transition rejected")
	return err
}

// CanComplete reports whether every child of the node is COMPLETED or
// CANCELLED. The engine exposes this as an explicit query instead of
// cascading completions: the orchestration layer decides when to re-check.
func (e *Engine) CanComplete(parentID string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	graphID, ok := e.nodeIndex[parentID]
	if !ok {
		return false, NewValidationError(fmt.Sprintf("instance node not found: %s", parentID), nil).
			WithCode(ErrCodeUnknownNode).WithNode(parentID)
	}
	gs := e.graphs[graphID]
	return len(e.incompleteChildrenLocked(gs, parentID)) == 0, nil
}
