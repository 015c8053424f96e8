package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumWhere(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
			total += dp.Value
		}
	}
	return total
}

func newMetrics(t *testing.T, backlog telemetry.BacklogFunc) (*telemetry.EngineMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.NewEngineMetrics(telemetry.EngineMetricsConfig{
		Meter:   provider.Meter("test"),
		Backlog: backlog,
	})
	require.NoError(t, err)
	return m, reader
}

func TestNewEngineMetrics_NilMeter(t *testing.T) {
	m, err := telemetry.NewEngineMetrics(telemetry.EngineMetricsConfig{})
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Equal(t, "NewEngineMetrics: meter cannot be nil", err.Error())
}

func TestEngineMetrics_RecordOrderLines(t *testing.T) {
	m, reader := newMetrics(t, nil)
	ctx := context.Background()

	m.RecordOrderLines(ctx, "pull", telemetry.OrderLineCounts{Applied: 3, AlreadyApplied: 2, SkuUnknown: 1, Clamped: 1})
	m.RecordOrderLines(ctx, "webhook", telemetry.OrderLineCounts{Applied: 1})

	metrics := collect(t, reader)
	lines := metrics["bundlesync_order_lines_total"]
	assert.Equal(t, int64(4), sumWhere(t, lines, "result", "applied"))
	assert.Equal(t, int64(2), sumWhere(t, lines, "result", "already_applied"))
	assert.Equal(t, int64(1), sumWhere(t, lines, "result", "sku_unknown"))
	assert.Equal(t, int64(0), sumWhere(t, lines, "result", "failed"))
	assert.Equal(t, int64(1), sumWhere(t, metrics["bundlesync_stock_reconciliations_total"], "source", "pull"))
}

func TestEngineMetrics_RecordSyncJobAndCron(t *testing.T) {
	m, reader := newMetrics(t, nil)
	ctx := context.Background()

	m.RecordSyncJob(ctx, "poll", 20*time.Millisecond, nil)
	m.RecordSyncJob(ctx, "poll", 30*time.Millisecond, errors.New("timeout"))
	m.RecordSyncJob(ctx, "submit", 10*time.Millisecond, nil)
	m.RecordCronRun(ctx, "order_pull", nil)

	metrics := collect(t, reader)
	jobs := metrics["bundlesync_sync_jobs_total"]
	assert.Equal(t, int64(2), sumWhere(t, jobs, "job.kind", "poll"))
	assert.Equal(t, int64(1), sumWhere(t, jobs, "outcome", "error"))
	assert.Equal(t, int64(1), sumWhere(t, metrics["bundlesync_cron_runs_total"], "task", "order_pull"))

	hist, ok := metrics["bundlesync_sync_job_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestEngineMetrics_Backlog(t *testing.T) {
	_, reader := newMetrics(t, func(context.Context) (int64, error) { return 7, nil })

	gauge, ok := collect(t, reader)["bundlesync_outbox_backlog"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(7), gauge.DataPoints[0].Value)
}
