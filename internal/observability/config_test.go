package observability

import (
	"testing"

	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFallsBackToAppConfig(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("LOG_LEVEL", "")

	cfg := LoadConfig(config.Config{Environment: "production", AppVersion: "1.4.0"})

	assert.Equal(t, "ledgerbridge", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "1.4.0", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.False(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := LoadConfig(config.Config{})

	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.True(t, cfg.Debug())

	t.Setenv("OTEL_ENABLED", "false")
	assert.False(t, LoadConfig(config.Config{}).OtelEnabled)
}

func TestLoadConfigMetricsPush(t *testing.T) {
	t.Setenv("METRICS_PUSH_EXPORTER", " Prometheus_Remote_Write ")
	t.Setenv("METRICS_PUSH_ENDPOINT", "http://mimir:9009/api/v1/push")
	t.Setenv("METRICS_PUSH_TOKEN", "secret")

	push := LoadConfig(config.Config{Environment: "staging"}).PushConfig()

	assert.Equal(t, "prometheus_remote_write", push.Exporter)
	assert.Equal(t, "http://mimir:9009/api/v1/push", push.Endpoint)
	assert.Equal(t, "secret", push.AuthToken)
	assert.Equal(t, "ledgerbridge", push.Job)
	assert.Equal(t, "staging", push.Environment)
}
