package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

const (
	ExporterRemoteWrite = "prometheus_remote_write"
	ExporterPushgateway = "prometheus_pushgateway"

	defaultPushTimeout = 5 * time.Second
)

// PushConfig selects where the sync collectors are pushed after each run.
// An empty exporter disables pushing.
type PushConfig struct {
	Exporter    string
	Endpoint    string
	AuthToken   string
	Job         string
	Environment string
}

// Pusher sends a snapshot of gathered metrics to an external collector.
type Pusher interface {
	Push(ctx context.Context, gatherer prometheus.Gatherer) error
}

// NewPusher builds a pusher from cfg. Invalid settings are logged and
// disable pushing rather than failing startup.
func NewPusher(cfg PushConfig, log *zap.Logger, httpClient *http.Client) Pusher {
	if log == nil {
		log = zap.NewNop()
	}
	exporter := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if exporter == "" {
		return nil
	}
	if endpoint == "" {
		log.Warn("metrics push disabled", zap.Error(errors.New("push endpoint is required")))
		return nil
	}

	switch exporter {
	case ExporterRemoteWrite:
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			log.Warn("metrics push disabled", zap.Error(fmt.Errorf("invalid push endpoint: %w", err)))
			return nil
		}
		return NewRemoteWritePusher(endpoint, cfg.AuthToken, httpClient)
	case ExporterPushgateway:
		return NewPushgatewayPusher(endpoint, cfg.Job, map[string]string{
			"environment": strings.TrimSpace(cfg.Environment),
		})
	default:
		log.Warn("metrics push disabled", zap.String("exporter", exporter))
		return nil
	}
}

// RemoteWritePusher posts counters, gauges and histogram totals to a
// Prometheus remote_write endpoint.
type RemoteWritePusher struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
	now        func() time.Time
}

func NewRemoteWritePusher(endpoint, authToken string, httpClient *http.Client) *RemoteWritePusher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultPushTimeout}
	}
	return &RemoteWritePusher{
		endpoint:   endpoint,
		authToken:  strings.TrimSpace(authToken),
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (p *RemoteWritePusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	series := buildRemoteWriteSeries(families, p.now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	payload, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(snappy.Encode(nil, payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

// PushgatewayPusher replaces the job's group on a Prometheus Pushgateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

func NewPushgatewayPusher(endpoint, job string, grouping map[string]string) *PushgatewayPusher {
	job = strings.TrimSpace(job)
	if job == "" {
		job = "ledgerbridge"
	}
	return &PushgatewayPusher{endpoint: endpoint, job: job, grouping: grouping}
}

func (p *PushgatewayPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}
	pusher := push.New(p.endpoint, p.job).Gatherer(gatherer)
	for key, value := range p.grouping {
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}
	return pusher.PushContext(ctx)
}

// RunPusher flushes the process registry once a sync run is over. A
// RunPusher without a configured exporter does nothing.
type RunPusher struct {
	pusher   Pusher
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

func NewRunPusher(cfg PushConfig, log *zap.Logger) *RunPusher {
	if log == nil {
		log = zap.NewNop()
	}
	return NewRunPusherWith(NewPusher(cfg, log, nil), prometheus.DefaultGatherer, log)
}

func NewRunPusherWith(pusher Pusher, gatherer prometheus.Gatherer, log *zap.Logger) *RunPusher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RunPusher{pusher: pusher, gatherer: gatherer, log: log.Named("metrics.push")}
}

// Flush pushes the current values. Failures are logged and never fail the run.
func (r *RunPusher) Flush(ctx context.Context) {
	if r == nil || r.pusher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()
	if err := r.pusher.Push(ctx, r.gatherer); err != nil {
		r.log.Warn("metrics.push.failed", zap.Error(err))
	}
}

func buildRemoteWriteSeries(families []*dto.MetricFamily, timestampMs int64) []prompb.TimeSeries {
	series := make([]prompb.TimeSeries, 0, len(families))
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			for suffix, value := range sampleValues(family.GetType(), metric) {
				series = append(series, prompb.TimeSeries{
					Labels:  seriesLabels(family.GetName()+suffix, metric.GetLabel()),
					Samples: []prompb.Sample{{Value: value, Timestamp: timestampMs}},
				})
			}
		}
	}
	sort.Slice(series, func(i, j int) bool {
		return labelKey(series[i].Labels) < labelKey(series[j].Labels)
	})
	return series
}

// sampleValues maps a metric to its samples keyed by name suffix. Histograms
// are reduced to their _sum and _count.
func sampleValues(metricType dto.MetricType, metric *dto.Metric) map[string]float64 {
	switch metricType {
	case dto.MetricType_COUNTER:
		if c := metric.GetCounter(); c != nil {
			return map[string]float64{"": c.GetValue()}
		}
	case dto.MetricType_GAUGE:
		if g := metric.GetGauge(); g != nil {
			return map[string]float64{"": g.GetValue()}
		}
	case dto.MetricType_HISTOGRAM:
		if h := metric.GetHistogram(); h != nil {
			return map[string]float64{"_sum": h.GetSampleSum(), "_count": float64(h.GetSampleCount())}
		}
	}
	return nil
}

func seriesLabels(name string, pairs []*dto.LabelPair) []prompb.Label {
	labels := make([]prompb.Label, 0, len(pairs)+1)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	for _, pair := range pairs {
		labels = append(labels, prompb.Label{Name: pair.GetName(), Value: pair.GetValue()})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels
}

func labelKey(labels []prompb.Label) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(l.Name)
		b.WriteByte('=')
		b.WriteString(l.Value)
		b.WriteByte(',')
	}
	return b.String()
}
