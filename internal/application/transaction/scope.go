package transaction

import (
	"context"

	"github.com/bundlesync/engine/internal/domain/catalog"
	"github.com/bundlesync/engine/internal/domain/listing"
	"github.com/bundlesync/engine/internal/domain/order"
	"github.com/bundlesync/engine/internal/domain/shared"
)

// Scope provides transactional access to the engine's repositories.
// Everything done through the repositories handed to fn, including recorded
// events, commits or rolls back together.
type Scope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos Repositories) error) error
}

// Repositories provides access to all repositories within a transaction.
// All repositories returned share the same underlying database transaction.
type Repositories interface {
	Products() catalog.ProductRepository
	Variants() catalog.VariantRepository
	Components() catalog.BundleComponentRepository
	Listings() listing.Repository
	OrderLines() order.OrderLineRepository
	// Events records domain events for delivery after commit
	Events() EventRecorder
}

// EventRecorder stores domain events alongside the state change that raised
// them. The gorm implementation writes outbox rows in the same transaction.
type EventRecorder interface {
	Record(ctx context.Context, events ...shared.DomainEvent) error
}

// EventRecorderFunc adapts a function to EventRecorder.
type EventRecorderFunc func(ctx context.Context, events ...shared.DomainEvent) error

// Record calls f.
func (f EventRecorderFunc) Record(ctx context.Context, events ...shared.DomainEvent) error {
	return f(ctx, events...)
}

// NoOpScope runs fn against plain repositories without a transaction.
// Recorded events go straight to the publisher, if one is set. It is meant
// for tests and tools that need no atomicity.
type NoOpScope struct {
	products   catalog.ProductRepository
	variants   catalog.VariantRepository
	components catalog.BundleComponentRepository
	listings   listing.Repository
	orderLines order.OrderLineRepository
	publisher  shared.EventPublisher
}

// NoOpScopeOption configures a NoOpScope.
type NoOpScopeOption func(*NoOpScope)

// WithProducts sets the product repository
func WithProducts(r catalog.ProductRepository) NoOpScopeOption {
	return func(s *NoOpScope) { s.products = r }
}

// WithVariants sets the variant repository
func WithVariants(r catalog.VariantRepository) NoOpScopeOption {
	return func(s *NoOpScope) { s.variants = r }
}

// WithComponents sets the bundle component repository
func WithComponents(r catalog.BundleComponentRepository) NoOpScopeOption {
	return func(s *NoOpScope) { s.components = r }
}

// WithListings sets the listing repository
func WithListings(r listing.Repository) NoOpScopeOption {
	return func(s *NoOpScope) { s.listings = r }
}

// WithOrderLines sets the order line repository
func WithOrderLines(r order.OrderLineRepository) NoOpScopeOption {
	return func(s *NoOpScope) { s.orderLines = r }
}

// WithPublisher publishes recorded events immediately
func WithPublisher(p shared.EventPublisher) NoOpScopeOption {
	return func(s *NoOpScope) { s.publisher = p }
}

// NewNoOpScope creates a NoOpScope from the given options.
func NewNoOpScope(opts ...NoOpScopeOption) *NoOpScope {
	s := &NoOpScope{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs fn without a real transaction.
func (s *NoOpScope) Execute(_ context.Context, fn func(repos Repositories) error) error {
	return fn(s)
}

func (s *NoOpScope) Products() catalog.ProductRepository { return s.products }
func (s *NoOpScope) Variants() catalog.VariantRepository { return s.variants }
func (s *NoOpScope) Components() catalog.BundleComponentRepository { return s.components }
func (s *NoOpScope) Listings() listing.Repository { return s.listings }
func (s *NoOpScope) OrderLines() order.OrderLineRepository { return s.orderLines }

// Events returns a recorder that publishes directly, or discards when no
// publisher is set.
func (s *NoOpScope) Events() EventRecorder {
	return EventRecorderFunc(func(ctx context.Context, events ...shared.DomainEvent) error {
		if s.publisher == nil || len(events) == 0 {
			return nil
		}
		return s.publisher.Publish(ctx, events...)
	})
}

var _ Scope = (*NoOpScope)(nil)
var _ Repositories = (*NoOpScope)(nil)
