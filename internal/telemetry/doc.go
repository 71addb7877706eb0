// Package telemetry provides OpenTelemetry tracing for engramd.
//
// It owns the tracer provider and its lifecycle. When enabled, New
// installs the provider globally so instrumented packages pick it up
// through otel.Tracer; when disabled, those calls resolve to the no-op
// provider and cost nothing.
//
//	cfg := telemetry.NewDefaultConfig()
//	cfg.Enabled = true
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  sampling:
//	    rate: 1.0
//
// Metrics are deliberately out of scope here: the HTTP surface exposes
// Prometheus metrics at /metrics, so a second OTLP metric pipeline
// would double-report.
//
// # Testing
//
// Use TestTelemetry to capture spans in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "lookup")
//	span.End()
//	tt.AssertSpanExists(t, "lookup")
package telemetry
