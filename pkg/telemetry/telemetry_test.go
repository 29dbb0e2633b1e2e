package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}

	cfg = DefaultConfig()
	cfg.ServiceName = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty service name")
	}

	cfg = DefaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid log level")
	}

	cfg = DefaultConfig()
	cfg.Tracing.SamplingRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range sampling rate")
	}
}

// TestLoggerDomainFields tests the domain field helpers
func TestLoggerDomainFields(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	// Chained helpers return new loggers without mutating the parent.
	child := logger.WithMigrationID("mig-1").
		WithIterationID("it-1").
		WithGraphID("graph-1").
		WithNodeID("node-1").
		WithActor("alice")
	if child == logger {
		t.Error("expected With* helpers to return a new logger")
	}
}

// TestMetricsDisabled tests that disabled metrics are no-ops
func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("failed to create disabled metrics: %v", err)
	}

	// None of these should panic on a no-op instance.
	m.RecordTransitionApplied("step", "COMPLETED")
	m.RecordTransitionRejected("PREDECESSOR_NOT_COMPLETE")
	m.RecordInstantiation(120, time.Second)
	m.RecordNodeDuration("step", 30*time.Second)
	m.SetRegisteredStatuses("step", 6)
	m.RecordError("state", "ALREADY_TERMINAL")
	m.RecordIterationClosed()
}

// TestMetricsEnabled tests metric recording on a live registry
func TestMetricsEnabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{
		Enabled:   true,
		Namespace: "cutover_test",
	})
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.RecordTransitionApplied("step", "IN_PROGRESS")
	m.RecordTransitionApplied("step", "COMPLETED")
	m.RecordTransitionRejected("CHILDREN_INCOMPLETE")
	m.RecordInstantiation(42, 150*time.Millisecond)

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"cutover_test_transitions_applied_total",
		"cutover_test_transitions_rejected_total",
		"cutover_test_graphs_instantiated_total",
		"cutover_test_graph_nodes",
	} {
		if !found[name] {
			t.Errorf("expected metric family %s to be registered", name)
		}
	}
}

// TestEventPublisherSyncDelivery tests synchronous event delivery
func TestEventPublisherSyncDelivery(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:     true,
		BufferSize:  10,
		EnableAsync: false,
	})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	var mu sync.Mutex
	var received []Event
	done := make(chan struct{}, 1)
	ep.Subscribe(func(ev Event) {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		done <- struct{}{}
	}, FilterByType(EventTypeNodeTransitioned))

	if err := ep.PublishNodeTransitioned("graph-1", "node-1", "PENDING", "IN_PROGRESS", "alice"); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	ev := received[0]
	if ev.Type != EventTypeNodeTransitioned {
		t.Errorf("expected type %s, got %s", EventTypeNodeTransitioned, ev.Type)
	}
	if ev.GraphID != "graph-1" || ev.NodeID != "node-1" {
		t.Errorf("unexpected event routing fields: %+v", ev)
	}
	if ev.ID == "" || ev.Timestamp.IsZero() {
		t.Error("expected ID and timestamp to be stamped on publish")
	}
}

// TestEventPublisherFiltering tests type filters drop non-matching events
func TestEventPublisherFiltering(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:     true,
		BufferSize:  10,
		EnableAsync: false,
	})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	matched := make(chan Event, 2)
	ep.Subscribe(func(ev Event) { matched <- ev }, FilterByGraphID("graph-1"))

	_ = ep.PublishGraphInstantiated("it-1", "graph-1", 10)
	_ = ep.PublishGraphInstantiated("it-2", "graph-2", 20)

	select {
	case ev := <-matched:
		if ev.GraphID != "graph-1" {
			t.Errorf("filter leaked event for %s", ev.GraphID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	select {
	case ev := <-matched:
		t.Errorf("unexpected second delivery: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestEventPublisherShutdown tests graceful shutdown
func TestEventPublisherShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:       true,
		BufferSize:    10,
		EnableAsync:   true,
		MaxBatchSize:  5,
		FlushInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

// TestFilterByLevel tests severity filtering
func TestFilterByLevel(t *testing.T) {
	filter := FilterByLevel(EventLevelWarning)

	if filter(Event{Level: EventLevelInfo}) {
		t.Error("info should be filtered below warning")
	}
	if !filter(Event{Level: EventLevelWarning}) {
		t.Error("warning should pass")
	}
	if !filter(Event{Level: EventLevelError}) {
		t.Error("error should pass")
	}
}
