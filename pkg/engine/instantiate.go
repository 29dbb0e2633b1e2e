package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Instantiate creates the runtime instance graph for an iteration by copying
// the template subtree rooted at planTemplateID.
//
// The copy is an explicit arena build: templates are traversed parent before
// child, one instance node is created per template node, and parent and
// predecessor links are remapped to instance IDs. Instance nodes never share
// memory with template nodes.
//
// Exactly one graph may exist per iteration; a second call fails with
// ALREADY_INSTANTIATED and creates nothing.
func (e *Engine) Instantiate(ctx context.Context, iterationID, planTemplateID string) (*InstanceGraph, error) {
	plan, err := e.catalog.Get(planTemplateID)
	if err != nil {
		return nil, err
	}
	if plan.Kind != KindPlan {
		return nil, NewValidationError(
			fmt.Sprintf("template %s is a %s, expected a plan root", planTemplateID, plan.Kind), nil).
			WithCode(ErrCodeInvalidParent).WithNode(planTemplateID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	it, ok := e.iterations[iterationID]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("iteration not found: %s", iterationID), nil).
			WithCode(ErrCodeNotFound)
	}
	if existing, ok := e.graphByIteration[iterationID]; ok {
		return nil, NewConflictError(
			fmt.Sprintf("iteration %s already has instance graph %s", iterationID, existing), nil).
			WithCode(ErrCodeAlreadyInstantiated).
			WithDetail("graph_id", existing)
	}

	now := time.Now().UTC()
	gs := &graphState{
		nodes:    make(map[string]*InstanceNode),
		children: make(map[string][]string),
		locks:    make(map[string]*sync.Mutex),
	}

	// instanceFor maps template ID to the instance derived from it.
	instanceFor := make(map[string]string)
	var ordered []*InstanceNode

	err = e.catalog.Walk(planTemplateID, func(tpl *TemplateNode) error {
		initial, err := e.registry.InitialFor(tpl.Kind)
		if err != nil {
			return err
		}

		parentInstance := ""
		if tpl.ParentID != "" {
			parentInstance, ok = instanceFor[tpl.ParentID]
			if !ok {
				// Walk visits parents first; a missing parent instance means
				// the traversal itself is broken.
				return NewIntegrityError(
					fmt.Sprintf("no instance for template parent %s", tpl.ParentID), nil).
					WithCode(ErrCodeIncompleteTemplate).WithNode(tpl.ID)
			}
		}

		node := &InstanceNode{
			ID:          uuid.New().String(),
			TemplateID:  tpl.ID,
			Kind:        tpl.Kind,
			ParentID:    parentInstance,
			Order:       tpl.Order,
			Name:        tpl.Name,
			Description: tpl.Description,
			Duration:    tpl.Duration,
			StatusID:    initial.ID,
			Category:    initial.Category,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		gs.nodes[node.ID] = node
		gs.locks[node.ID] = &sync.Mutex{}
		if parentInstance != "" {
			gs.children[parentInstance] = append(gs.children[parentInstance], node.ID)
		}
		instanceFor[tpl.ID] = node.ID
		ordered = append(ordered, node)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Remap predecessor links structurally: the instance predecessor is the
	// instance derived from the template predecessor, never the raw
	// template ID. Every predecessor lives inside the same subtree, so a
	// missing mapping is an instantiation-ordering bug, not caller input.
	for _, node := range ordered {
		tpl, err := e.catalog.Get(node.TemplateID)
		if err != nil {
			return nil, err
		}
		if tpl.PredecessorID == "" {
			continue
		}
		predInstance, ok := instanceFor[tpl.PredecessorID]
		if !ok {
			return nil, NewIntegrityError(
				fmt.Sprintf("no instance for template predecessor %s", tpl.PredecessorID), nil).
				WithCode(ErrCodeIncompleteTemplate).WithNode(node.ID)
		}
		node.PredecessorID = predInstance
	}

	rootID := instanceFor[planTemplateID]
	graph := &InstanceGraph{
		ID:             uuid.New().String(),
		IterationID:    iterationID,
		PlanTemplateID: planTemplateID,
		RootID:         rootID,
		CreatedAt:      now,
	}
	gs.graph = graph

	for _, node := range ordered {
		node.GraphID = graph.ID
		e.nodeIndex[node.ID] = graph.ID
		e.registry.addRef(node.StatusID)
	}

	e.graphs[graph.ID] = gs
	e.graphByIteration[iterationID] = graph.ID
	it.GraphID = graph.ID
	it.UpdatedAt = now

	if err := e.persister.SaveInstanceGraph(ctx, graph, ordered); err != nil {
		return nil, fmt.Errorf("persisting instance graph: %w", err)
	}
	itCopy := *it
	if err := e.persister.SaveIteration(ctx, &itCopy); err != nil {
		return nil, fmt.Errorf("persisting iteration binding: %w", err)
	}

	e.logger.Info().
		Str("graph_id", graph.ID).
		Str("iteration_id", iterationID).
		Str("plan_template_id", planTemplateID).
		Int("nodes", len(ordered)).
		Msg("instance graph instantiated")

	cp := *graph
	return &cp, nil
}
