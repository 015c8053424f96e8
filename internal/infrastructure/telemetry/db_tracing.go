package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bundlesync/engine/internal/infrastructure/config"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include query variables in spans, dev only
	SlowQueryThresh time.Duration // default 200ms
	DBName          string
}

// DBTracingConfigFrom maps the telemetry section of the application config.
func DBTracingConfigFrom(cfg config.TelemetryConfig, dbName string) DBTracingConfig {
	return DBTracingConfig{
		Enabled:         cfg.Enabled && cfg.DBTraceEnabled,
		LogFullSQL:      cfg.DBLogFullSQL,
		SlowQueryThresh: cfg.DBSlowQueryThresh,
		DBName:          dbName,
	}
}

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin plus a callback that flags
// and logs statements slower than the threshold. Slow statements are logged
// even when tracing is disabled.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	if cfg.Enabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { slowQuery(tx, cfg.SlowQueryThresh, logger) }

	cb := db.Callback()
	for _, reg := range []struct {
		name string
		err  error
	}{
		{"create", cb.Create().Before("gorm:create").Register("bundlesync:before_create", before)},
		{"query", cb.Query().Before("gorm:query").Register("bundlesync:before_query", before)},
		{"update", cb.Update().Before("gorm:update").Register("bundlesync:before_update", before)},
		{"delete", cb.Delete().Before("gorm:delete").Register("bundlesync:before_delete", before)},
		{"row", cb.Row().Before("gorm:row").Register("bundlesync:before_row", before)},
		{"raw", cb.Raw().Before("gorm:raw").Register("bundlesync:before_raw", before)},
		{"create", cb.Create().After("gorm:create").Register("bundlesync:slow_create", after)},
		{"query", cb.Query().After("gorm:query").Register("bundlesync:slow_query", after)},
		{"update", cb.Update().After("gorm:update").Register("bundlesync:slow_update", after)},
		{"delete", cb.Delete().After("gorm:delete").Register("bundlesync:slow_delete", after)},
		{"row", cb.Row().After("gorm:row").Register("bundlesync:slow_row", after)},
		{"raw", cb.Raw().After("gorm:raw").Register("bundlesync:slow_raw", after)},
	} {
		if reg.err != nil {
			return reg.err
		}
	}

	logger.Info("Database instrumentation registered",
		zap.Bool("tracing", cfg.Enabled),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

func slowQuery(tx *gorm.DB, thresh time.Duration, logger *zap.Logger) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	if elapsed <= thresh {
		return
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}

	fields := []zap.Field{
		zap.String("table", tx.Statement.Table),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", tx.Statement.RowsAffected),
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		fields = append(fields, zap.Error(tx.Error))
	}
	logger.Warn("slow query", fields...)
}
