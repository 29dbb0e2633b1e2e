package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TemplateCatalog holds the master layer: authored plan structure with
// ordering and predecessor links. Authoring serializes on an internal lock;
// reads are safe for unlimited concurrency. Execution never mutates the
// catalog.
type TemplateCatalog struct {
	mu sync.RWMutex

	// nodes maps template node IDs to their nodes.
	nodes map[string]*TemplateNode

	// children maps parent ID to child node IDs in insertion order.
	// Plan roots are keyed under the empty string.
	children map[string][]string
}

// NewTemplateCatalog creates an empty template catalog.
func NewTemplateCatalog() *TemplateCatalog {
	return &TemplateCatalog{
		nodes:    make(map[string]*TemplateNode),
		children: make(map[string][]string),
	}
}

// CreateNode authors a new template node.
// Validates that the parent exists at the immediate parent level, that the
// predecessor (if given) shares the same parent and kind, and that inserting
// the node does not create a predecessor cycle.
func (c *TemplateCatalog) CreateNode(kind EntityKind, parentID string, order int, name string, opts ...NodeOption) (*TemplateNode, error) {
	if !IsGraphKind(kind) {
		return nil, NewValidationError(fmt.Sprintf("kind %s is not a graph level", kind), nil).
			WithCode(ErrCodeInvalidParent)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	wantParent, hasParent := ParentKind(kind)
	if hasParent {
		parent, ok := c.nodes[parentID]
		if !ok {
			return nil, NewValidationError(
				fmt.Sprintf("parent %s not found for %s node", parentID, kind), nil).
				WithCode(ErrCodeInvalidParent)
		}
		if parent.Kind != wantParent {
			return nil, NewValidationError(
				fmt.Sprintf("%s node requires a %s parent, got %s", kind, wantParent, parent.Kind), nil).
				WithCode(ErrCodeInvalidParent).WithNode(parentID)
		}
	} else if parentID != "" {
		return nil, NewValidationError("plan nodes are roots and take no parent", nil).
			WithCode(ErrCodeInvalidParent)
	}

	now := time.Now().UTC()
	node := &TemplateNode{
		ID:        uuid.New().String(),
		Kind:      kind,
		ParentID:  parentID,
		Order:     order,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(node)
	}

	if node.PredecessorID != "" {
		if err := c.validatePredecessor(node); err != nil {
			return nil, err
		}
	}

	c.nodes[node.ID] = node
	c.children[parentID] = append(c.children[parentID], node.ID)
	return c.copyNode(node), nil
}

// NodeOption customizes a template node at creation time.
type NodeOption func(*TemplateNode)

// WithPredecessor sets the same-level predecessor link.
func WithPredecessor(id string) NodeOption {
	return func(n *TemplateNode) { n.PredecessorID = id }
}

// WithDescription sets the default description.
func WithDescription(d string) NodeOption {
	return func(n *TemplateNode) { n.Description = d }
}

// WithDuration sets the default expected duration.
func WithDuration(d time.Duration) NodeOption {
	return func(n *TemplateNode) { n.Duration = d }
}

// WithOwnerTeam sets the accountable team.
func WithOwnerTeam(teamID string) NodeOption {
	return func(n *TemplateNode) { n.OwnerTeamID = teamID }
}

// validatePredecessor checks the same-parent, same-kind, and acyclicity
// invariants for a node about to be inserted. Caller holds the write lock.
func (c *TemplateCatalog) validatePredecessor(node *TemplateNode) error {
	pred, ok := c.nodes[node.PredecessorID]
	if !ok {
		return NewValidationError(
			fmt.Sprintf("predecessor %s not found", node.PredecessorID), nil).
			WithCode(ErrCodeInvalidPredecessor)
	}
	if pred.Kind != node.Kind {
		return NewValidationError(
			fmt.Sprintf("predecessor %s is a %s, expected %s", pred.ID, pred.Kind, node.Kind), nil).
			WithCode(ErrCodeInvalidPredecessor).WithNode(pred.ID)
	}
	if pred.ParentID != node.ParentID {
		return NewValidationError(
			fmt.Sprintf("predecessor %s belongs to a different parent", pred.ID), nil).
			WithCode(ErrCodeInvalidPredecessor).WithNode(pred.ID)
	}

	// Walk the chain from the predecessor. The walk is bounded by the
	// sibling count: a longer path means a revisit, hence a cycle.
	siblings := len(c.children[node.ParentID]) + 1
	seen := []string{node.ID}
	cur := pred
	for steps := 0; cur != nil; steps++ {
		if steps > siblings {
			return NewIntegrityError(
				fmt.Sprintf("predecessor chain exceeds sibling count: %s", formatChain(seen)), nil).
				WithCode(ErrCodeCyclicPredecessor)
		}
		seen = append(seen, cur.ID)
		if cur.ID == node.ID {
			return NewValidationError(
				fmt.Sprintf("predecessor cycle: %s", formatChain(seen)), nil).
				WithCode(ErrCodeCyclicPredecessor)
		}
		if cur.PredecessorID == "" {
			break
		}
		cur = c.nodes[cur.PredecessorID]
	}
	return nil
}

// formatChain formats a predecessor chain for error messages.
func formatChain(chain []string) string {
	return strings.Join(chain, " -> ")
}

// Reorder changes a node's display order. Ordering and predecessor gating are
// independent signals: reorder never touches predecessor semantics.
func (c *TemplateCatalog) Reorder(nodeID string, newOrder int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[nodeID]
	if !ok {
		return NewValidationError(fmt.Sprintf("template node not found: %s", nodeID), nil).
			WithCode(ErrCodeUnknownNode).WithNode(nodeID)
	}
	node.Order = newOrder
	node.UpdatedAt = time.Now().UTC()
	return nil
}

// SetPredecessor updates a node's predecessor link after creation, applying
// the same validation as CreateNode. An empty ID clears the link.
func (c *TemplateCatalog) SetPredecessor(nodeID, predecessorID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[nodeID]
	if !ok {
		return NewValidationError(fmt.Sprintf("template node not found: %s", nodeID), nil).
			WithCode(ErrCodeUnknownNode).WithNode(nodeID)
	}
	if predecessorID == "" {
		node.PredecessorID = ""
		node.UpdatedAt = time.Now().UTC()
		return nil
	}

	trial := *node
	trial.PredecessorID = predecessorID
	if err := c.validatePredecessorOf(&trial); err != nil {
		return err
	}
	node.PredecessorID = predecessorID
	node.UpdatedAt = time.Now().UTC()
	return nil
}

// validatePredecessorOf validates a predecessor change for an existing node.
// Unlike validatePredecessor, the node itself is already a sibling.
func (c *TemplateCatalog) validatePredecessorOf(node *TemplateNode) error {
	pred, ok := c.nodes[node.PredecessorID]
	if !ok {
		return NewValidationError(
			fmt.Sprintf("predecessor %s not found", node.PredecessorID), nil).
			WithCode(ErrCodeInvalidPredecessor)
	}
	if pred.Kind != node.Kind || pred.ParentID != node.ParentID {
		return NewValidationError(
			fmt.Sprintf("predecessor %s must share kind and parent", pred.ID), nil).
			WithCode(ErrCodeInvalidPredecessor).WithNode(pred.ID)
	}

	siblings := len(c.children[node.ParentID])
	seen := []string{node.ID}
	cur := pred
	for steps := 0; cur != nil; steps++ {
		if steps > siblings {
			return NewIntegrityError(
				fmt.Sprintf("predecessor chain exceeds sibling count: %s", formatChain(seen)), nil).
				WithCode(ErrCodeCyclicPredecessor)
		}
		seen = append(seen, cur.ID)
		if cur.ID == node.ID {
			return NewValidationError(
				fmt.Sprintf("predecessor cycle: %s", formatChain(seen)), nil).
				WithCode(ErrCodeCyclicPredecessor)
		}
		if cur.PredecessorID == "" {
			break
		}
		cur = c.nodes[cur.PredecessorID]
	}
	return nil
}

// Get returns a copy of the template node with the given ID.
func (c *TemplateCatalog) Get(id string) (*TemplateNode, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	node, ok := c.nodes[id]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("template node not found: %s", id), nil).
			WithCode(ErrCodeUnknownNode).WithNode(id)
	}
	return c.copyNode(node), nil
}

// Children returns copies of a node's children ordered by display order.
func (c *TemplateCatalog) Children(parentID string) []*TemplateNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.childrenLocked(parentID)
}

func (c *TemplateCatalog) childrenLocked(parentID string) []*TemplateNode {
	ids := c.children[parentID]
	out := make([]*TemplateNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.copyNode(c.nodes[id]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Plans returns copies of all plan root nodes.
func (c *TemplateCatalog) Plans() []*TemplateNode {
	return c.Children("")
}

// Walk visits the subtree rooted at rootID in parent-before-child order,
// siblings ordered by display order. The visited nodes are copies.
func (c *TemplateCatalog) Walk(rootID string, visit func(*TemplateNode) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	root, ok := c.nodes[rootID]
	if !ok {
		return NewValidationError(fmt.Sprintf("template node not found: %s", rootID), nil).
			WithCode(ErrCodeUnknownNode).WithNode(rootID)
	}

	queue := []*TemplateNode{c.copyNode(root)}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if err := visit(node); err != nil {
			return err
		}
		queue = append(queue, c.childrenLocked(node.ID)...)
	}
	return nil
}

// copyNode returns a defensive copy. Callers never see catalog-owned memory,
// so template and instance layers cannot alias.
func (c *TemplateCatalog) copyNode(n *TemplateNode) *TemplateNode {
	cp := *n
	return &cp
}
