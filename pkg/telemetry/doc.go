// Package telemetry provides observability instrumentation for the cutover
// engine.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system for monitoring execution state.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for transition and
//     instantiation throughput
//  4. Event Publishing - Async event system for notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "cutover"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with domain field helpers:
//
//	logger := tel.Logger.NewComponentLogger("engine")
//	logger = logger.WithGraphID("graph-123").WithNodeID("node-456")
//	logger.Info("transition applied")
//	logger.WithError(err).Error("transition rejected")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Engine Integration
//
// Observer bridges the engine's transition notifications into metrics and
// the event bus:
//
//	obs := telemetry.NewObserver(tel)
//	eng := engine.New(registry, catalog, engine.WithObserver(obs))
//
// Every applied transition increments the applied counter and publishes a
// node.transitioned event; every rejection is counted by its rejection code.
package telemetry
