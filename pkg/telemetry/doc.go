// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for the openhoist engine.
//
// The package is built around three components:
//
//   - Logger: a zerolog-based structured logger with deployment-scoped
//     helper methods. Component loggers carry a "component" field so log
//     lines can be filtered per subsystem.
//
//   - Metrics: a Prometheus collector covering deployment runs, gated
//     effects, published objects, and firewall rule synchronization. It
//     implements the observer interfaces exposed by the engine and assets
//     packages so the pipeline reports into it without depending on this
//     package.
//
//   - Tracer: an OpenTelemetry tracer with OTLP gRPC and stdout exporters
//     for tracing deployment runs end to end.
//
// Usage:
//
//	cfg := telemetry.DefaultConfig()
//	log, err := telemetry.NewLogger(cfg.Logging)
//	if err != nil {
//	    return err
//	}
//	metrics, err := telemetry.NewMetrics(cfg.Metrics)
//	if err != nil {
//	    return err
//	}
//	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(ctx)
package telemetry
