package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bundlesync/engine/internal/application/listing"
	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// JobExecutor runs one listing sync job.
type JobExecutor interface {
	Execute(ctx context.Context, job listing.Job) error
}

// JobExecutorFunc adapts a function to JobExecutor.
type JobExecutorFunc func(ctx context.Context, job listing.Job) error

// Execute calls f.
func (f JobExecutorFunc) Execute(ctx context.Context, job listing.Job) error {
	return f(ctx, job)
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:    4,
		QueueSize:  256,
		JobTimeout: time.Minute,
	}
}

func (c SchedulerConfig) validate() error {
	if c.Workers < 1 || c.QueueSize < 1 || c.JobTimeout <= 0 {
		return fmt.Errorf("%w: workers, queue size and job timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

type delayKey struct {
	kind      listing.JobKind
	listingID string
}

type delayed struct {
	job   listing.Job
	timer *time.Timer
}

// SyncScheduler is the worker pool behind listing sync. Jobs due now go
// straight to the queue; jobs with a future NotBefore wait on a timer. Only
// the earliest delayed job per listing and kind is kept. When it fires before
// the listing's stored schedule, the executor enqueues it again for that time.
//
// Nothing here is durable. After a restart the sync sweep finds due
// listings in the database and enqueues them again.
type SyncScheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger
	metrics  *telemetry.EngineMetrics
	now      func() time.Time

	jobs      chan listing.Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	delayed   map[delayKey]*delayed
}

// NewSyncScheduler creates a new scheduler instance
func NewSyncScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &SyncScheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		now:      time.Now,
		jobs:     make(chan listing.Job, config.QueueSize),
		delayed:  make(map[delayKey]*delayed),
	}, nil
}

// SetMetrics records every executed job on m. Call before Start.
func (s *SyncScheduler) SetMetrics(m *telemetry.EngineMetrics) {
	s.metrics = m
}

// Start launches the workers
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("sync scheduler started",
		zap.Int("workers", s.config.Workers),
		zap.Int("queue_size", s.config.QueueSize),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels pending timers and waits for running jobs, bounded by ctx.
// Queued jobs that have not started are discarded.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	for key, d := range s.delayed {
		d.timer.Stop()
		delete(s.delayed, key)
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("sync scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("sync scheduler stop timed out")
		return ctx.Err()
	}
}

// Enqueue implements listing.JobQueue
func (s *SyncScheduler) Enqueue(_ context.Context, job listing.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	wait := job.NotBefore.Sub(s.now())
	if wait <= 0 {
		return s.push(job)
	}

	key := delayKey{kind: job.Kind, listingID: job.ListingID.String()}
	if existing, ok := s.delayed[key]; ok {
		if !job.NotBefore.Before(existing.job.NotBefore) {
			return nil
		}
		existing.timer.Stop()
	}
	d := &delayed{job: job}
	d.timer = time.AfterFunc(wait, func() { s.release(key, d) })
	s.delayed[key] = d

	s.logger.Debug("sync job delayed",
		zap.String("kind", string(job.Kind)),
		zap.String("listing_id", job.ListingID.String()),
		zap.Duration("wait", wait),
	)
	return nil
}

// Pending returns the number of queued and delayed jobs
func (s *SyncScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs) + len(s.delayed)
}

// release moves a delayed job into the queue when its timer fires.
func (s *SyncScheduler) release(key delayKey, d *delayed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.delayed[key]; !ok || current != d {
		return
	}
	delete(s.delayed, key)
	if !s.isRunning {
		return
	}
	if err := s.push(d.job); err != nil {
		s.logger.Warn("delayed sync job dropped, the sweep will pick it up",
			zap.String("kind", string(d.job.Kind)),
			zap.String("listing_id", d.job.ListingID.String()),
			zap.Error(err),
		)
	}
}

// push must be called with s.mu held.
func (s *SyncScheduler) push(job listing.Job) error {
	select {
	case s.jobs <- job:
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (s *SyncScheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.run(ctx, job, workerID)
		}
	}
}

func (s *SyncScheduler) run(ctx context.Context, job listing.Job, workerID int) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync job panicked",
				zap.Int("worker_id", workerID),
				zap.String("kind", string(job.Kind)),
				zap.String("listing_id", job.ListingID.String()),
				zap.Any("panic", r),
			)
		}
	}()

	jobCtx, span := telemetry.StartServiceSpan(jobCtx, "sync", string(job.Kind),
		telemetry.AttrListingID.String(job.ListingID.String()),
		telemetry.AttrAccountID.String(job.AccountID),
	)
	start := s.now()
	err := s.executor.Execute(jobCtx, job)
	telemetry.End(span, err)
	if s.metrics != nil {
		s.metrics.RecordSyncJob(jobCtx, string(job.Kind), s.now().Sub(start), err)
	}
	if err != nil {
		s.logger.Error("sync job failed",
			zap.Int("worker_id", workerID),
			zap.String("kind", string(job.Kind)),
			zap.String("listing_id", job.ListingID.String()),
			zap.String("account_id", job.AccountID),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("sync job done",
		zap.Int("worker_id", workerID),
		zap.String("kind", string(job.Kind)),
		zap.String("listing_id", job.ListingID.String()),
		zap.Duration("took", s.now().Sub(start)),
	)
}

var _ listing.JobQueue = (*SyncScheduler)(nil)
