package logger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

type pgErr string

func (e pgErr) Error() string    { return "pg error " + string(e) }
func (e pgErr) SQLState() string { return string(e) }

func traceSQL(l *GormLogger, ctx context.Context, elapsed time.Duration, err error) {
	l.Trace(ctx, time.Now().Add(-elapsed), func() (string, int64) {
		return `UPDATE "variants" SET "stock"=3 WHERE id = 'x'`, 1
	}, err)
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), gormlogger.Info, WithSlowThreshold(50*time.Millisecond))
	ctx := WithRequestID(context.Background(), "req-7")

	traceSQL(l, ctx, time.Millisecond, nil)
	traceSQL(l, ctx, 100*time.Millisecond, nil)
	traceSQL(l, ctx, time.Millisecond, errors.New("syntax error"))
	traceSQL(l, ctx, time.Millisecond, gormlogger.ErrRecordNotFound)
	traceSQL(l, ctx, time.Millisecond, fmt.Errorf("save: %w", pgErr("40P01")))

	all := logs.All()
	if assert.Len(t, all, 4) {
		assert.Equal(t, zapcore.DebugLevel, all[0].Level)
		assert.Equal(t, "req-7", all[0].ContextMap()["request_id"])
		assert.Equal(t, zapcore.WarnLevel, all[1].Level)
		assert.Equal(t, "slow SQL", all[1].Message)
		assert.Equal(t, zapcore.ErrorLevel, all[2].Level)
		assert.Equal(t, zapcore.WarnLevel, all[3].Level)
		assert.Equal(t, "SQL contention", all[3].Message)
	}
}

func TestGormLogger_Silent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), gormlogger.Warn).LogMode(gormlogger.Silent).(*GormLogger)

	traceSQL(l, context.Background(), time.Second, errors.New("x"))
	assert.Zero(t, logs.Len())
}

func TestIsRetryableSQLError(t *testing.T) {
	assert.True(t, IsRetryableSQLError(pgErr("40001")))
	assert.True(t, IsRetryableSQLError(fmt.Errorf("tx: %w", pgErr("40P01"))))
	assert.False(t, IsRetryableSQLError(pgErr("23505")))
	assert.False(t, IsRetryableSQLError(errors.New("plain")))
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("unknown"))
}
