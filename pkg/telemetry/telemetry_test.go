package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{
			name:    "bad exporter",
			mutate:  func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" },
			wantErr: true,
		},
		{
			name:    "otlp without endpoint",
			mutate:  func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" },
			wantErr: true,
		},
		{name: "sampling out of range", mutate: func(c *Config) { c.Tracing.SamplingRate = 1.5 }, wantErr: true},
		{
			name:    "metrics without address",
			mutate:  func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddress = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordOperation("create", "success", time.Second)
	m.RecordRoundTrip("add", "success", time.Second)
	m.RecordRollback("add")
	m.RecordError("transport")
	m.RecordSessionOpened()
	m.RecordCloseError()
	m.SetDatasourceCount("", "ALL", 3)

	if m.Enabled() {
		t.Error("expected disabled metrics")
	}
	if err := m.StartMetricsServer(); err != nil {
		t.Errorf("expected no-op server start, got %v", err)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordError("transport")
}

func TestMetricsRecording(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Enabled = true

	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordRoundTrip("add", "success", 20*time.Millisecond)
	m.RecordRoundTrip("add", "failed", 20*time.Millisecond)
	m.RecordRollback("add")
	m.RecordError("remote_rejected")
	m.SetDatasourceCount("full", "ENABLED", 2)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				found[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				found[mf.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}

	expectations := map[string]float64{
		"dsctl_round_trips_total": 2,
		"dsctl_rollbacks_total":   1,
		"dsctl_errors_total":      1,
		"dsctl_datasources":       2,
	}
	for name, want := range expectations {
		if found[name] != want {
			t.Errorf("expected %s = %v, got %v", name, want, found[name])
		}
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dsctl_round_trips_total") {
		t.Errorf("unexpected metrics output: %d %s", rec.Code, rec.Body.String())
	}
}

func TestLoggerContext(t *testing.T) {
	logger := NewNopLogger().NewComponentLogger("executor").WithRunID("run-1")
	ctx := logger.WithContext(context.Background())

	if FromContext(ctx) != logger {
		t.Error("expected the stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Error("expected a default logger")
	}
}

func TestLoggerAddsTraceIDs(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{Enabled: true, Exporter: "none", SamplingRate: 1.0}, "dsctl-test", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	var buf bytes.Buffer
	logger := newLogger(&buf, LoggingConfig{Level: "debug", Format: "json"}).Zerolog()

	ctx, span := tracer.StartRoundTripSpan(context.Background(), "add", "/subsystem=datasources/data-source=OrdersDS")
	logger.Info().Ctx(ctx).Msg("inside span")
	EndSpan(span, nil)
	logger.Info().Msg("outside span")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}

	var inside, outside map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &inside); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &outside); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}

	if inside["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace_id %s, got %v", span.SpanContext().TraceID(), inside["trace_id"])
	}
	if _, ok := outside["trace_id"]; ok {
		t.Errorf("expected no trace_id outside a span, got %v", outside["trace_id"])
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Error("expected debug level")
	}
	if ParseLevel("nonsense") != zerolog.InfoLevel {
		t.Error("expected fallback to info")
	}
}

func TestNewTelemetryDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Output = "stderr"

	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Error("expected telemetry in context")
	}

	_, span := tel.Tracer.StartRoundTripSpan(ctx, "read-resource", "/subsystem=datasources")
	EndSpan(span, nil)

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
