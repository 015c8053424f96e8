package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
)

// Task is a periodic unit of work registered with the CronTrigger.
type Task func(ctx context.Context) error

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// RunTimeout bounds a single run of any task
	RunTimeout time.Duration
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{RunTimeout: 10 * time.Minute}
}

// CronTrigger runs the periodic tasks of the engine: the order pull, the
// listing sweep and outbox cleanup. A run that is still going when the next
// tick arrives makes that tick a no-op.
type CronTrigger struct {
	config  CronTriggerConfig
	cron    *cron.Cron
	logger  *zap.Logger
	metrics *telemetry.EngineMetrics

	mu        sync.Mutex
	isRunning bool
	baseCtx   context.Context
	cancel    context.CancelFunc
	entries   map[string]cron.EntryID
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(config CronTriggerConfig, logger *zap.Logger) *CronTrigger {
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultCronTriggerConfig().RunTimeout
	}
	cl := cronLogger{logger: logger.Named("cron")}
	return &CronTrigger{
		config: config,
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: context.Background(),
		entries: make(map[string]cron.EntryID),
	}
}

// SetMetrics counts every run on m. Call before Start.
func (t *CronTrigger) SetMetrics(m *telemetry.EngineMetrics) {
	t.metrics = m
}

// Register adds a named task on a standard five field schedule or a
// descriptor such as "@every 1m".
func (t *CronTrigger) Register(name, spec string, task Task) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; ok {
		return fmt.Errorf("%w: task %q already registered", ErrInvalidConfig, name)
	}

	id, err := t.cron.AddFunc(spec, func() { t.run(name, task) })
	if err != nil {
		return fmt.Errorf("%w: task %q schedule %q: %v", ErrInvalidConfig, name, spec, err)
	}
	t.entries[name] = id
	t.logger.Info("cron task registered", zap.String("task", name), zap.String("schedule", spec))
	return nil
}

// Next reports when a registered task runs next. Zero before Start.
func (t *CronTrigger) Next(name string) time.Time {
	t.mu.Lock()
	id, ok := t.entries[name]
	t.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return t.cron.Entry(id).Next
}

// RunNow executes a registered task synchronously, outside its schedule.
func (t *CronTrigger) RunNow(name string) error {
	t.mu.Lock()
	id, ok := t.entries[name]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown task %q", ErrInvalidConfig, name)
	}
	t.cron.Entry(id).WrappedJob.Run()
	return nil
}

// Start begins firing tasks. ctx is the parent of every run.
func (t *CronTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}
	t.isRunning = true
	t.baseCtx, t.cancel = context.WithCancel(ctx)
	t.cron.Start()
	t.logger.Info("cron trigger started", zap.Int("tasks", len(t.entries)))
	return nil
}

// Stop halts scheduling and waits for running tasks, bounded by ctx.
func (t *CronTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	cancel := t.cancel
	t.mu.Unlock()

	done := t.cron.Stop()
	cancel()

	select {
	case <-done.Done():
		t.logger.Info("cron trigger stopped")
		return nil
	case <-ctx.Done():
		t.logger.Warn("cron trigger stop timed out")
		return ctx.Err()
	}
}

func (t *CronTrigger) run(name string, task Task) {
	t.mu.Lock()
	parent := t.baseCtx
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, t.config.RunTimeout)
	defer cancel()

	ctx, span := telemetry.StartServiceSpan(ctx, "cron", name, telemetry.AttrTask.String(name))
	start := time.Now()
	err := task(ctx)
	telemetry.End(span, err)
	if t.metrics != nil {
		t.metrics.RecordCronRun(ctx, name, err)
	}
	if err != nil {
		t.logger.Error("cron task failed",
			zap.String("task", name),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	t.logger.Debug("cron task done", zap.String("task", name), zap.Duration("took", time.Since(start)))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
