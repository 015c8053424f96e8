package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BacklogFunc reports the number of outbox entries still to deliver.
type BacklogFunc func(ctx context.Context) (int64, error)

// Attribute keys shared by the engine metrics and spans.
var (
	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
	AttrHTTPRoute      = attribute.Key("http.route")

	AttrJobKind   = attribute.Key("job.kind")
	AttrOutcome   = attribute.Key("outcome")
	AttrResult    = attribute.Key("result")
	AttrSource    = attribute.Key("source")
	AttrTask      = attribute.Key("task")
	AttrEnriched  = attribute.Key("enriched")
	AttrListingID = attribute.Key("listing.id")
	AttrAccountID = attribute.Key("account.id")
)

// Histogram boundaries in seconds. Job buckets cover marketplace round
// trips and bundle generation.
var (
	httpBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	jobBuckets  = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
)

// EngineMetrics records the counters and timings of stock, order and listing work.
type EngineMetrics struct {
	orderLines      metric.Int64Counter
	reconciliations metric.Int64Counter
	syncJobs        metric.Int64Counter
	syncJobDuration metric.Float64Histogram
	cronRuns        metric.Int64Counter
	generations     metric.Float64Histogram
	httpRequests    metric.Int64Counter
	httpDuration    metric.Float64Histogram
	backlog         metric.Int64ObservableGauge
}

// EngineMetricsConfig configures NewEngineMetrics.
type EngineMetricsConfig struct {
	Meter metric.Meter
	// Backlog, when set, backs the outbox backlog gauge.
	Backlog BacklogFunc
}

// NewEngineMetrics creates every engine instrument on cfg.Meter.
func NewEngineMetrics(cfg EngineMetricsConfig) (*EngineMetrics, error) {
	if cfg.Meter == nil {
		return nil, errors.New("NewEngineMetrics: meter cannot be nil")
	}
	meter := cfg.Meter
	var errs []error
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return c
	}
	seconds := func(name, desc string, buckets []float64) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(buckets...))
		errs = append(errs, err)
		return h
	}

	m := &EngineMetrics{
		orderLines:      counter("bundlesync_order_lines_total", "Order lines processed, by result", "{line}"),
		reconciliations: counter("bundlesync_stock_reconciliations_total", "Decrements clamped at zero", "{line}"),
		syncJobs:        counter("bundlesync_sync_jobs_total", "Listing sync jobs executed, by kind and outcome", "{job}"),
		syncJobDuration: seconds("bundlesync_sync_job_duration_seconds", "Listing sync job duration", jobBuckets),
		cronRuns:        counter("bundlesync_cron_runs_total", "Periodic task runs, by task and outcome", "{run}"),
		generations:     seconds("bundlesync_bundle_generation_duration_seconds", "Bundle generation duration", jobBuckets),
		httpRequests:    counter("bundlesync_http_requests_total", "HTTP requests, by route and status", "{request}"),
		httpDuration:    seconds("bundlesync_http_request_duration_seconds", "HTTP request duration", httpBuckets),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create engine instruments: %w", err)
	}

	if cfg.Backlog != nil {
		backlog := cfg.Backlog
		var err error
		m.backlog, err = meter.Int64ObservableGauge(
			"bundlesync_outbox_backlog",
			metric.WithDescription("Outbox entries waiting for delivery"),
			metric.WithUnit("{entry}"),
			metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
				n, err := backlog(ctx)
				if err != nil {
					return err
				}
				o.Observe(n)
				return nil
			}),
		)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// OrderLineCounts is a tally of processed order lines.
type OrderLineCounts struct {
	Applied        int
	AlreadyApplied int
	SkuUnknown     int
	Failed         int
	Clamped        int
}

// RecordOrderLines adds a batch tally. source is "webhook", "api" or "pull".
func (m *EngineMetrics) RecordOrderLines(ctx context.Context, source string, c OrderLineCounts) {
	src := AttrSource.String(source)
	add := func(ctr metric.Int64Counter, n int, attrs ...attribute.KeyValue) {
		if n > 0 {
			ctr.Add(ctx, int64(n), metric.WithAttributes(append(attrs, src)...))
		}
	}
	add(m.orderLines, c.Applied, AttrResult.String("applied"))
	add(m.orderLines, c.AlreadyApplied, AttrResult.String("already_applied"))
	add(m.orderLines, c.SkuUnknown, AttrResult.String("sku_unknown"))
	add(m.orderLines, c.Failed, AttrResult.String("failed"))
	add(m.reconciliations, c.Clamped)
}

// RecordSyncJob records one executed sync job.
func (m *EngineMetrics) RecordSyncJob(ctx context.Context, kind string, d time.Duration, err error) {
	k := AttrJobKind.String(kind)
	m.syncJobs.Add(ctx, 1, metric.WithAttributes(k, AttrOutcome.String(outcome(err))))
	m.syncJobDuration.Record(ctx, d.Seconds(), metric.WithAttributes(k))
}

// RecordCronRun records one periodic task run.
func (m *EngineMetrics) RecordCronRun(ctx context.Context, task string, err error) {
	m.cronRuns.Add(ctx, 1, metric.WithAttributes(AttrTask.String(task), AttrOutcome.String(outcome(err))))
}

// RecordGeneration records one bundle generation.
func (m *EngineMetrics) RecordGeneration(ctx context.Context, d time.Duration, enriched bool) {
	m.generations.Record(ctx, d.Seconds(), metric.WithAttributes(AttrEnriched.Bool(enriched)))
}

// RecordHTTPRequest records one served request.
func (m *EngineMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	attrs := []attribute.KeyValue{AttrHTTPMethod.String(method), AttrHTTPRoute.String(route)}
	m.httpDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(append(attrs, AttrHTTPStatusCode.Int(status))...))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
