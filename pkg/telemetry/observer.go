package telemetry

import (
	"github.com/cutoverhq/cutover/pkg/engine"
)

// Observer bridges engine transition notifications into metrics and the
// event bus. It implements engine.TransitionObserver.
type Observer struct {
	tel *Telemetry
}

var _ engine.TransitionObserver = (*Observer)(nil)

// NewObserver creates an observer feeding the given telemetry instance.
func NewObserver(tel *Telemetry) *Observer {
	return &Observer{tel: tel}
}

// TransitionApplied records the applied transition and publishes a
// node.transitioned event.
func (o *Observer) TransitionApplied(event *engine.AuditEvent) {
	// Kind is not on the audit event; the category label carries enough
	// cardinality for dashboards.
	o.tel.Metrics.RecordTransitionApplied("node", string(event.To))
	_ = o.tel.Events.PublishNodeTransitioned(
		event.GraphID, event.NodeID, string(event.From), string(event.To), event.Actor)
}

// TransitionRejected counts the rejection by code and publishes a warning
// event.
func (o *Observer) TransitionRejected(nodeID string, target engine.StatusCategory, code string) {
	o.tel.Metrics.RecordTransitionRejected(code)
	_ = o.tel.Events.PublishTransitionRejected(nodeID, string(target), code)
}
