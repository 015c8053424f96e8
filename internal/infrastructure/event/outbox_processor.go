package event

import (
	"context"
	"sync"
	"time"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/bundlesync/engine/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// ClaimTimeout is how long an entry may sit in PROCESSING before it is
	// treated as abandoned by a crashed worker.
	ClaimTimeout time.Duration
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:    100,
		PollInterval: 2 * time.Second,
		ClaimTimeout: 5 * time.Minute,
	}
}

// OutboxProcessor drains the outbox into a publisher. Each tick it first
// fails abandoned claims, then claims and delivers due entries until a batch
// comes back short. Failed deliveries are retried with backoff and
// dead-lettered after the entry's retry budget.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	publisher  shared.EventPublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.EventPublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	def := DefaultOutboxProcessorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.ClaimTimeout <= 0 {
		config.ClaimTimeout = def.ClaimTimeout
	}
	return &OutboxProcessor{
		repo:       repo,
		publisher:  publisher,
		serializer: serializer,
		config:     config,
		logger:     logger,
		wake:       make(chan struct{}, 1),
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Duration("claim_timeout", p.config.ClaimTimeout),
	)
	return nil
}

// Stop cancels the loop and waits for the in-flight batch, or for ctx.
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wake asks for a drain before the next tick. It never blocks.
func (p *OutboxProcessor) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *OutboxProcessor) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		p.Drain(ctx)
	}
}

// Drain releases abandoned claims and delivers due entries until none are
// left or ctx ends. It returns the number of entries delivered.
func (p *OutboxProcessor) Drain(ctx context.Context) int {
	p.releaseStale(ctx)

	sent := 0
	for ctx.Err() == nil {
		batch, err := p.repo.ClaimBatch(ctx, time.Now(), p.config.BatchSize)
		if err != nil {
			p.logger.Error("failed to claim outbox entries", zap.Error(err))
			return sent
		}
		for _, entry := range batch {
			if p.deliver(ctx, entry) {
				sent++
			}
		}
		if len(batch) < p.config.BatchSize {
			return sent
		}
	}
	return sent
}

func (p *OutboxProcessor) releaseStale(ctx context.Context) {
	stale, err := p.repo.FindStale(ctx, time.Now().Add(-p.config.ClaimTimeout), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find stale outbox claims", zap.Error(err))
		return
	}
	for _, entry := range stale {
		if entry.Abandon(p.config.ClaimTimeout) != nil {
			continue
		}
		p.logger.Warn("outbox claim expired",
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.Int("retry_count", entry.RetryCount),
		)
		p.save(ctx, entry)
	}
}

// deliver publishes one claimed entry and records the outcome.
func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) bool {
	ctx, span := telemetry.StartSpan(ctx, "outbox.deliver",
		attribute.String("event.type", entry.EventType),
		attribute.String("event.id", entry.EventID.String()),
		attribute.Int("outbox.retry_count", entry.RetryCount),
	)

	err := p.publish(ctx, entry)
	telemetry.End(span, err)
	if err != nil {
		entry.MarkFailed(err.Error())
		fields := []zap.Field{
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.Error(err),
		}
		if entry.IsDead() {
			p.logger.Error("outbox entry dead-lettered", fields...)
		} else {
			p.logger.Warn("outbox delivery failed", append(fields, zap.Timep("next_retry_at", entry.NextRetryAt))...)
		}
		p.save(ctx, entry)
		return false
	}

	entry.MarkSent()
	p.save(ctx, entry)
	return true
}

func (p *OutboxProcessor) publish(ctx context.Context, entry *shared.OutboxEntry) error {
	evt, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, evt)
}

func (p *OutboxProcessor) save(ctx context.Context, entry *shared.OutboxEntry) {
	if err := p.repo.Update(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.Error("failed to update outbox entry",
			zap.String("entry_id", entry.ID.String()),
			zap.String("status", string(entry.Status)),
			zap.Error(err),
		)
	}
}
