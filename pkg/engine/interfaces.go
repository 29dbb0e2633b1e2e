package engine

import (
	"context"
)

// Persister writes engine state to durable storage. The engine is the system
// of record in memory; persistence is write-through and failures surface to
// the caller of the operation that triggered the write.
type Persister interface {
	// SaveStatus persists a registered status.
	SaveStatus(ctx context.Context, status *Status) error

	// SaveTeam persists a team.
	SaveTeam(ctx context.Context, team *Team) error

	// SaveMigration persists a migration container.
	SaveMigration(ctx context.Context, m *Migration) error

	// SaveIteration persists an iteration, including close marks.
	SaveIteration(ctx context.Context, it *Iteration) error

	// SaveTemplateNode persists an authored template node.
	SaveTemplateNode(ctx context.Context, node *TemplateNode) error

	// SaveInstanceGraph persists a graph header and its nodes in one
	// transaction.
	SaveInstanceGraph(ctx context.Context, graph *InstanceGraph, nodes []*InstanceNode) error

	// UpdateInstanceNode persists a status change on one instance node.
	UpdateInstanceNode(ctx context.Context, node *InstanceNode) error

	// AppendAuditEvent persists one immutable audit event.
	AppendAuditEvent(ctx context.Context, event *AuditEvent) error
}

// NopPersister discards all writes. Used by tests and by callers running the
// engine purely in memory.
type NopPersister struct{}

// SaveStatus implements Persister.
func (NopPersister) SaveStatus(context.Context, *Status) error { return nil }

// SaveTeam implements Persister.
func (NopPersister) SaveTeam(context.Context, *Team) error { return nil }

// SaveMigration implements Persister.
func (NopPersister) SaveMigration(context.Context, *Migration) error { return nil }

// SaveIteration implements Persister.
func (NopPersister) SaveIteration(context.Context, *Iteration) error { return nil }

// SaveTemplateNode implements Persister.
func (NopPersister) SaveTemplateNode(context.Context, *TemplateNode) error { return nil }

// SaveInstanceGraph implements Persister.
func (NopPersister) SaveInstanceGraph(context.Context, *InstanceGraph, []*InstanceNode) error {
	return nil
}

// UpdateInstanceNode implements Persister.
func (NopPersister) UpdateInstanceNode(context.Context, *InstanceNode) error { return nil }

// AppendAuditEvent implements Persister.
func (NopPersister) AppendAuditEvent(context.Context, *AuditEvent) error { return nil }

// TransitionObserver receives applied transitions and rejections.
// The telemetry layer implements this to feed metrics and the event bus; the
// engine stays free of metric and notification concerns.
type TransitionObserver interface {
	// TransitionApplied is called after a transition commits.
	TransitionApplied(event *AuditEvent)

	// TransitionRejected is called when a transition is refused, with the
	// rejection code.
	TransitionRejected(nodeID string, target StatusCategory, code string)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

// TransitionApplied implements TransitionObserver.
func (NopObserver) TransitionApplied(*AuditEvent) {}

// TransitionRejected implements TransitionObserver.
func (NopObserver) TransitionRejected(string, StatusCategory, string) {}
