// Package observability provides monitoring and debugging capabilities for
// the Illustrator bridge through metrics, structured logging, and distributed
// tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: minimal performance impact on a process that is mostly
//     waiting on WebSocket round-trips
//   - Type-safe: strongly-typed APIs reduce configuration errors
//   - Standards-based: uses Prometheus, OpenTelemetry, and slog
//
// # Metrics
//
// Metrics are implemented using the Prometheus client library and track:
//   - Script dispatch outcomes and latency
//   - Peer (CEP extension) connect/disconnect transitions
//   - Pending dispatch count
//   - Task Envelope Runtime stage outcomes, latency, and retries
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//	br := bridge.New(cfg, registry, logger, metrics)
//
//	metrics.DispatchSettled("ok", time.Since(start))
//	metrics.RecordTaskStage("collect", "ok", time.Since(stageStart))
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic trace_id / command_type correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	ctx := observability.AddTraceID(ctx, traceID)
//	ctx = observability.AddCommandType(ctx, "recolor")
//
//	logger.Info(ctx, "script dispatched", "bytes", len(script))
//	logger.Error(ctx, "dispatch failed", "error", err)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track a dispatch end to end:
//   - Dispatch round trip visualization (client -> peer -> reply)
//   - Task Envelope Runtime stage latency breakdown
//   - Error correlation between a failed stage and the dispatch that triggered it
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "illustrator-bridge",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceDispatch(ctx, "recolor", traceID)
//	defer span.End()
//
//	ctx, stageSpan := tracer.TraceTaskStage(ctx, "collect")
//	defer stageSpan.End()
//	if err != nil {
//	    tracer.RecordError(stageSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic correlation:
//
//	ctx = observability.AddTraceID(ctx, traceID)
//	ctx = observability.AddCommandType(ctx, "recolor")
//
//	logger.Info(ctx, "dispatching") // includes trace_id, command_type
//
//	ctx, span := tracer.Start(ctx, "operation")
//	// trace context propagates to child spans
//
// # Integration Example
//
// Complete example integrating all three components around one dispatch:
//
//	func Dispatch(ctx context.Context, cmd *bridge.Command) (*bridge.Reply, error) {
//	    ctx = observability.AddTraceID(ctx, cmd.TraceID)
//	    ctx = observability.AddCommandType(ctx, cmd.Type)
//
//	    ctx, span := tracer.TraceDispatch(ctx, cmd.Type, cmd.TraceID)
//	    defer span.End()
//
//	    metrics.DispatchStarted()
//	    start := time.Now()
//
//	    logger.Info(ctx, "dispatching script", "bytes", len(cmd.Script))
//	    reply, err := peer.Send(ctx, cmd)
//
//	    outcome := "ok"
//	    if err != nil {
//	        outcome = "error"
//	        tracer.RecordError(span, err)
//	        logger.Error(ctx, "dispatch failed", "error", err)
//	    }
//	    metrics.DispatchSettled(outcome, time.Since(start))
//
//	    return reply, err
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic provider tokens)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Configuration
//
// All components support configuration via structs:
//
//	// Metrics - no configuration needed, auto-registered
//	metrics := observability.NewMetrics()
//
//	// Logging - configurable output, level, format
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:          os.Getenv("LOG_LEVEL"),
//	    Format:         "json",
//	    AddSource:      true,
//	    RedactPatterns: []string{`custom-secret-\d+`},
//	})
//
//	// Tracing - configurable sampling, endpoint, attributes
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "illustrator-bridge",
//	    ServiceVersion: version,
//	    Environment:    env,
//	    Endpoint:       os.Getenv("OTEL_ENDPOINT"),
//	    SamplingRate:   0.1,
//	})
//	defer shutdown(context.Background())
//
// # Testing
//
// All components provide testable interfaces:
//   - Metrics can be verified using prometheus/testutil against an isolated registry
//   - Logging can write to bytes.Buffer for assertions
//   - Tracing works with no-op exporters in tests
//
// # Best Practices
//
//  1. Always propagate context to enable trace_id correlation
//  2. Use defer for span.End() to ensure spans are closed
//  3. Record errors on both metrics and traces
//  4. Use structured logging with key-value pairs
//  5. Call shutdown() on the tracer during graceful shutdown
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# Dispatch throughput
//	rate(illustrator_bridge_dispatches_total[5m])
//
//	# Dispatch latency (95th percentile)
//	histogram_quantile(0.95, rate(illustrator_bridge_dispatch_duration_seconds_bucket[5m]))
//
//	# Pending dispatches
//	illustrator_bridge_pending_requests
//
//	# Task stage retry rate
//	rate(illustrator_bridge_task_retries_total[5m])
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - OpenTelemetry specification: https://opentelemetry.io/docs/specs/otel/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
