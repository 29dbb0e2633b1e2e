package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the cutover system.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// IterationID is the associated iteration ID, if applicable.
	IterationID string `json:"iteration_id,omitempty"`

	// GraphID is the associated instance graph ID, if applicable.
	GraphID string `json:"graph_id,omitempty"`

	// NodeID is the associated instance node ID, if applicable.
	NodeID string `json:"node_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeNodeTransitioned     = "node.transitioned"
	EventTypeTransitionRejected   = "node.transition_rejected"
	EventTypeGraphInstantiated    = "graph.instantiated"
	EventTypeIterationClosed      = "iteration.closed"
	EventTypeStatusRegistered     = "status.registered"
	EventTypeStatusRemoved        = "status.removed"
	EventTypePolicyViolation      = "policy.violation"
	EventTypeError                = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishNodeTransitioned publishes an applied-transition event.
func (ep *EventPublisher) PublishNodeTransitioned(graphID, nodeID, from, to, actor string) error {
	return ep.Publish(Event{
		Type:    EventTypeNodeTransitioned,
		Source:  "engine",
		GraphID: graphID,
		NodeID:  nodeID,
		Message: fmt.Sprintf("Node %s transitioned from %s to %s", nodeID, from, to),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"from":  from,
			"to":    to,
			"actor": actor,
		},
	})
}

// PublishTransitionRejected publishes a rejected-transition event.
func (ep *EventPublisher) PublishTransitionRejected(nodeID, target, code string) error {
	return ep.Publish(Event{
		Type:    EventTypeTransitionRejected,
		Source:  "engine",
		NodeID:  nodeID,
		Message: fmt.Sprintf("Transition of node %s to %s rejected: %s", nodeID, target, code),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"target": target,
			"code":   code,
		},
	})
}

// PublishGraphInstantiated publishes a graph instantiation event.
func (ep *EventPublisher) PublishGraphInstantiated(iterationID, graphID string, nodeCount int) error {
	return ep.Publish(Event{
		Type:        EventTypeGraphInstantiated,
		Source:      "engine",
		IterationID: iterationID,
		GraphID:     graphID,
		Message:     fmt.Sprintf("Graph %s instantiated for iteration %s (%d nodes)", graphID, iterationID, nodeCount),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"node_count": nodeCount,
		},
	})
}

// PublishIterationClosed publishes an iteration closed event.
func (ep *EventPublisher) PublishIterationClosed(iterationID, actor string) error {
	return ep.Publish(Event{
		Type:        EventTypeIterationClosed,
		Source:      "engine",
		IterationID: iterationID,
		Message:     fmt.Sprintf("Iteration %s closed by %s", iterationID, actor),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"actor": actor,
		},
	})
}

// PublishStatusRegistered publishes a status registration event.
func (ep *EventPublisher) PublishStatusRegistered(name, kind, category string) error {
	return ep.Publish(Event{
		Type:    EventTypeStatusRegistered,
		Source:  "registry",
		Message: fmt.Sprintf("Status %s registered for kind %s (category %s)", name, kind, category),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"name":     name,
			"kind":     kind,
			"category": category,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(nodeID, policyName, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy_engine",
		NodeID:  nodeID,
		Message: fmt.Sprintf("Policy violation on node %s: %s - %s", nodeID, policyName, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush flushes events periodically.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Drain handled by the processEvents goroutine
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByGraphID creates a filter that only allows events for a specific graph.
func FilterByGraphID(graphID string) EventFilter {
	return func(event Event) bool {
		return event.GraphID == graphID
	}
}

// FilterByNodeID creates a filter that only allows events for a specific node.
func FilterByNodeID(nodeID string) EventFilter {
	return func(event Event) bool {
		return event.NodeID == nodeID
	}
}
