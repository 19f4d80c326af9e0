// Package telemetry provides logging, tracing and metrics for dsctl.
//
// Logging uses zerolog; events logged with a context inside a span carry
// trace_id and span_id. Tracing uses OpenTelemetry with otlp or stdout
// exporters. Metrics are exported in Prometheus format from a private
// registry.
//
// Initialize telemetry once per process:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// The executor records one span and one round-trip sample per management
// request, and one operation sample per call including fan-out:
//
//	dsctl_round_trips_total{operation="add",outcome="success"}
//	dsctl_operation_duration_seconds{operation="create"}
//	dsctl_errors_total{kind="remote_rejected"}
//	dsctl_rollbacks_total{operation="add"}
//
// A disabled Metrics value is safe to use; every recording method becomes a
// no-op.
package telemetry
