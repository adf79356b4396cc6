package observability

import (
	"strings"

	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/spf13/viper"
)

// Config holds logging and telemetry settings. Values come from the
// environment and fall back to the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	MetricsPushExporter string
	MetricsPushEndpoint string
	MetricsPushToken    string
}

func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("SERVICE_NAME", cfg.AppName)
	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)

	out := Config{
		ServiceName:          trimmed(v, "SERVICE_NAME"),
		Environment:          trimmed(v, "DEPLOYMENT_ENV"),
		Version:              trimmed(v, "SERVICE_VERSION"),
		LogLevel:             strings.ToLower(trimmed(v, "LOG_LEVEL")),
		LogFormat:            strings.ToLower(trimmed(v, "LOG_FORMAT")),
		OtelExporterEndpoint: trimmed(v, "OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelExporterProtocol: strings.ToLower(trimmed(v, "OTEL_EXPORTER_OTLP_PROTOCOL")),
		OtelSamplingRatio:    v.GetFloat64("OTEL_SAMPLING_RATIO"),
		MetricsPushExporter:  strings.ToLower(trimmed(v, "METRICS_PUSH_EXPORTER")),
		MetricsPushEndpoint:  trimmed(v, "METRICS_PUSH_ENDPOINT"),
		MetricsPushToken:     trimmed(v, "METRICS_PUSH_TOKEN"),
	}
	if out.ServiceName == "" {
		out.ServiceName = "ledgerbridge"
	}
	if traces := trimmed(v, "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"); traces != "" {
		out.OtelExporterProtocol = strings.ToLower(traces)
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = 1
	}

	// Export stays off until a collector endpoint is known.
	out.OtelEnabled = out.OtelExporterEndpoint != ""
	if v.IsSet("OTEL_ENABLED") {
		out.OtelEnabled = v.GetBool("OTEL_ENABLED")
	}
	return out
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func trimmed(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}
