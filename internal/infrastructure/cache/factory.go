package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bundlesync/engine/internal/application/listing"
	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/bundlesync/engine/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// Stores bundles the coordination state shared by the event processor and
// the listing sync workers.
type Stores struct {
	Idempotency shared.IdempotencyStore
	Flights     listing.FlightLock
	closers     []func() error
}

// Close releases every store and the Redis client when there is one
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewStores builds Redis-backed stores when Redis is enabled and in-memory
// ones otherwise. An enabled but unreachable Redis is an error: silently
// going local would let two replicas poll the same batch.
func NewStores(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Stores, error) {
	if !cfg.Enabled {
		logger.Warn("redis disabled, idempotency and listing flight locks are process-local")
		idem := NewInMemoryIdempotencyStore()
		flights := NewLocalFlightLock()
		return &Stores{
			Idempotency: idem,
			Flights:     flights,
			closers:     []func() error{idem.Close, flights.Close},
		}, nil
	}

	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("using redis for idempotency and listing flight locks", zap.String("addr", cfg.Addr()))
	return &Stores{
		Idempotency: NewRedisIdempotencyStore(client, ""),
		Flights:     NewRedisFlightLock(client, "", logger),
		closers:     []func() error{client.Close},
	}, nil
}

var (
	_ listing.FlightLock = (*LocalFlightLock)(nil)
	_ listing.FlightLock = (*RedisFlightLock)(nil)
)
