package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

// Config configures the OTLP meter provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the OTLP instruments of the migration. A nil *Metrics
// records nothing.
type Metrics struct {
	documents       metric.Int64Counter
	submissions     metric.Int64Counter
	upstreamCalls   metric.Int64Counter
	upstreamLatency metric.Float64Histogram
	subaccounts     metric.Int64Counter
	exportTasks     metric.Int64Counter
}

// NewProvider installs the global meter provider. Without a collector the
// provider is a no-op.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)
	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	if log != nil {
		log.Info("observability.metrics.ready",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "ledgerbridge"
	}
	meter := provider.Meter(name)

	var (
		m    Metrics
		errs []error
	)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	m.documents = counter("ledgerbridge.documents", "Documents that reached a final state.")
	m.submissions = counter("ledgerbridge.entry.submissions", "Entry submissions to the target ledger.")
	m.upstreamCalls = counter("ledgerbridge.upstream.requests", "Outbound calls to the source and target ledgers.")
	m.subaccounts = counter("ledgerbridge.subaccounts.created", "Sub-accounts created on the target ledger.")
	m.exportTasks = counter("ledgerbridge.export.tasks", "Dashboard export tasks by outcome.")

	latency, err := meter.Float64Histogram("ledgerbridge.upstream.duration",
		metric.WithDescription("Latency of outbound ledger calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	errs = append(errs, err)
	m.upstreamLatency = latency

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) RecordDocument(ctx context.Context, docType, state string) {
	if m == nil {
		return
	}
	m.documents.Add(ctx, 1, withAttrs(
		attribute.String("doc_type", docType),
		attribute.String("state", state),
	))
}

// RecordSubmission counts one submission by endpoint flavor and outcome.
func (m *Metrics) RecordSubmission(ctx context.Context, mode, outcome string) {
	if m == nil {
		return
	}
	m.submissions.Add(ctx, 1, withAttrs(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}

// RecordUpstreamRequest counts one outbound call. statusCode is 0 when no
// response arrived.
func (m *Metrics) RecordUpstreamRequest(ctx context.Context, provider, endpoint string, statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	opt := withAttrs(
		attribute.String("provider", provider),
		attribute.String("endpoint", endpoint),
		attribute.Int("status_code", statusCode),
	)
	m.upstreamCalls.Add(ctx, 1, opt)
	m.upstreamLatency.Record(ctx, elapsed.Seconds(), opt)
}

func (m *Metrics) RecordSubaccountCreated(ctx context.Context, class string) {
	if m == nil {
		return
	}
	m.subaccounts.Add(ctx, 1, withAttrs(attribute.String("class", class)))
}

func (m *Metrics) RecordExportTask(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.exportTasks.Add(ctx, 1, withAttrs(attribute.String("outcome", outcome)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Label keys allowed on OTLP instruments. Account ids and names never are.
var allowedLabelKeys = map[attribute.Key]bool{
	"doc_type":    true,
	"state":       true,
	"mode":        true,
	"outcome":     true,
	"provider":    true,
	"endpoint":    true,
	"status_code": true,
	"class":       true,
}

// FilterAttributes drops attributes outside the allowed label keys.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0:0]
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			out = append(out, attr)
		}
	}
	return out
}

func withAttrs(attrs ...attribute.KeyValue) metric.MeasurementOption {
	for i, attr := range attrs {
		if attr.Value.Type() == attribute.STRING {
			attrs[i] = attribute.String(string(attr.Key), strings.TrimSpace(attr.Value.AsString()))
		}
	}
	return metric.WithAttributes(FilterAttributes(attrs...)...)
}
