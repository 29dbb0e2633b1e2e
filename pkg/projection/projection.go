// Package projection computes denormalized, read-optimized views of an
// instance graph for external consumers.
//
// Enrichment happens exactly once per request path. The package enforces
// that at the type level: Capture produces a Snapshot of raw records, and
// Project is the only consumer of a Snapshot. Nothing in the API accepts an
// enriched Row as input, so re-projecting already-enriched data does not
// compile.
package projection

import (
	"fmt"
	"sort"
	"time"

	"github.com/cutoverhq/cutover/pkg/engine"
)

// rawRecord is one unenriched instance node as read from the engine.
// Unexported: raw records exist only inside a Snapshot.
type rawRecord struct {
	node *engine.InstanceNode
}

// Snapshot is a point-in-time raw read of one instance graph. It is produced
// only by Capture and consumed only by Project.
type Snapshot struct {
	graph   *engine.InstanceGraph
	records []rawRecord
	taken   time.Time
}

// GraphID returns the captured graph's ID.
func (s *Snapshot) GraphID() string { return s.graph.ID }

// Len returns the number of raw records in the snapshot.
func (s *Snapshot) Len() int { return len(s.records) }

// Capture reads the raw state of an instance graph from the engine.
func Capture(e *engine.Engine, graphID string) (*Snapshot, error) {
	graph, err := e.Graph(graphID)
	if err != nil {
		return nil, err
	}
	nodes, err := e.Nodes(graphID)
	if err != nil {
		return nil, err
	}

	records := make([]rawRecord, 0, len(nodes))
	for _, n := range nodes {
		records = append(records, rawRecord{node: n})
	}
	return &Snapshot{graph: graph, records: records, taken: time.Now().UTC()}, nil
}

// Row is one enriched, flattened record: instance node joined with status
// presentation, template metadata, and the owning team.
type Row struct {
	// NodeID is the instance node ID.
	NodeID string `json:"node_id"`

	// TemplateID is the template node the instance derives from.
	TemplateID string `json:"template_id"`

	// Kind is the hierarchy level.
	Kind engine.EntityKind `json:"kind"`

	// ParentID is the parent instance node, empty for the plan root.
	ParentID string `json:"parent_id,omitempty"`

	// PredecessorID is the same-level gating predecessor, if any.
	PredecessorID string `json:"predecessor_id,omitempty"`

	// Order is the display order among siblings.
	Order int `json:"order"`

	// Name is the node's display name.
	Name string `json:"name"`

	// Description is the instance description.
	Description string `json:"description,omitempty"`

	// StatusName is the registry presentation name of the current status.
	StatusName string `json:"status_name"`

	// StatusColor is the registry display color.
	StatusColor string `json:"status_color"`

	// Category is the canonical status category.
	Category engine.StatusCategory `json:"category"`

	// OwnerTeam is the owning team's name, empty when unowned.
	OwnerTeam string `json:"owner_team,omitempty"`

	// StartTime is when execution started, if it has.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is when execution reached a terminal category, if it has.
	EndTime *time.Time `json:"end_time,omitempty"`
}

// Summary aggregates category counts for one entity kind.
type Summary struct {
	// Kind is the hierarchy level being summarized.
	Kind engine.EntityKind `json:"kind"`

	// Total is the number of nodes at this level.
	Total int `json:"total"`

	// ByCategory counts nodes per canonical category.
	ByCategory map[engine.StatusCategory]int `json:"by_category"`

	// PercentComplete is the share of nodes in a terminal-complete category.
	PercentComplete float64 `json:"percent_complete"`
}

// FlatView is the outward-facing projection of one instance graph.
type FlatView struct {
	// GraphID is the projected graph.
	GraphID string `json:"graph_id"`

	// IterationID is the owning iteration.
	IterationID string `json:"iteration_id"`

	// GeneratedAt is when the projection was computed.
	GeneratedAt time.Time `json:"generated_at"`

	// Rows are the enriched records, parents before children.
	Rows []Row `json:"rows"`

	// Summaries aggregates progress per hierarchy level.
	Summaries []Summary `json:"summaries"`
}

// Projector joins raw snapshots against the status registry and template
// catalog. Construct once and reuse; it holds no per-request state.
type Projector struct {
	registry *engine.StatusRegistry
	eng      *engine.Engine
}

// NewProjector creates a projector over the engine's registry and catalog.
func NewProjector(e *engine.Engine) *Projector {
	return &Projector{registry: e.Registry(), eng: e}
}

// Project enriches a raw snapshot into a FlatView. The snapshot is consumed:
// projecting the same captured data twice requires capturing twice, which is
// the single-enrichment contract made structural.
func (p *Projector) Project(s *Snapshot) (*FlatView, error) {
	rows := make([]Row, 0, len(s.records))
	perKind := make(map[engine.EntityKind]*Summary)

	for _, rec := range s.records {
		n := rec.node

		status, err := p.registry.Resolve(n.StatusID)
		if err != nil {
			return nil, fmt.Errorf("resolving status for node %s: %w", n.ID, err)
		}

		tpl, err := p.eng.Catalog().Get(n.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("resolving template for node %s: %w", n.ID, err)
		}

		ownerTeam := ""
		if tpl.OwnerTeamID != "" {
			if team := p.eng.Team(tpl.OwnerTeamID); team != nil {
				ownerTeam = team.Name
			}
		}

		rows = append(rows, Row{
			NodeID:        n.ID,
			TemplateID:    n.TemplateID,
			Kind:          n.Kind,
			ParentID:      n.ParentID,
			PredecessorID: n.PredecessorID,
			Order:         n.Order,
			Name:          n.Name,
			Description:   n.Description,
			StatusName:    status.Name,
			StatusColor:   status.Color,
			Category:      n.Category,
			OwnerTeam:     ownerTeam,
			StartTime:     n.StartTime,
			EndTime:       n.EndTime,
		})

		sum, ok := perKind[n.Kind]
		if !ok {
			sum = &Summary{Kind: n.Kind, ByCategory: make(map[engine.StatusCategory]int)}
			perKind[n.Kind] = sum
		}
		sum.Total++
		sum.ByCategory[n.Category]++
	}

	summaries := make([]Summary, 0, len(perKind))
	for _, sum := range perKind {
		done := sum.ByCategory[engine.CategoryCompleted] + sum.ByCategory[engine.CategoryCancelled]
		if sum.Total > 0 {
			sum.PercentComplete = float64(done) / float64(sum.Total) * 100
		}
		summaries = append(summaries, *sum)
	}
	sortSummaries(summaries)

	return &FlatView{
		GraphID:     s.graph.ID,
		IterationID: s.graph.IterationID,
		GeneratedAt: time.Now().UTC(),
		Rows:        rows,
		Summaries:   summaries,
	}, nil
}

// kindDepth orders summaries root-first for stable output.
var kindDepth = map[engine.EntityKind]int{
	engine.KindPlan:        0,
	engine.KindSequence:    1,
	engine.KindPhase:       2,
	engine.KindControl:     3,
	engine.KindStep:        3,
	engine.KindInstruction: 4,
}

func sortSummaries(s []Summary) {
	sort.SliceStable(s, func(i, j int) bool {
		if kindDepth[s[i].Kind] != kindDepth[s[j].Kind] {
			return kindDepth[s[i].Kind] < kindDepth[s[j].Kind]
		}
		return s[i].Kind < s[j].Kind
	})
}
