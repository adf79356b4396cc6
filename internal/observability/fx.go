package observability

import (
	"github.com/smallbiznis/ledgerbridge/internal/observability/logger"
	"github.com/smallbiznis/ledgerbridge/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbridge/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.LoggerConfig,
		Config.TracingConfig,
		Config.MetricsConfig,
		Config.PushConfig,
		logger.NewTaskSink,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.NewRunPusher,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(registerSyncCollectors),
)

func (c Config) LoggerConfig() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}

func (c Config) PushConfig() metrics.PushConfig {
	return metrics.PushConfig{
		Exporter:    c.MetricsPushExporter,
		Endpoint:    c.MetricsPushEndpoint,
		AuthToken:   c.MetricsPushToken,
		Job:         c.ServiceName,
		Environment: c.Environment,
	}
}

// registerSyncCollectors registers the prometheus collectors up front so
// /metrics lists them before the first batch runs.
func registerSyncCollectors(cfg metrics.Config) {
	metrics.SchedulerWithConfig(cfg)
	metrics.SyncWithConfig(cfg)
}
