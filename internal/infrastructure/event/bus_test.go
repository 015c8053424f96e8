package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInMemoryEventBus_Routing(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	stock := &recorder{types: []string{typeRestocked}}
	price := &recorder{types: []string{typeRepriced}}
	everything := &recorder{}
	bus.Subscribe(stock)
	bus.Subscribe(price)
	bus.Subscribe(everything)

	err := bus.Publish(context.Background(),
		newItemEvent(typeRestocked, "A", 1),
		newItemEvent(typeRestocked, "B", 2),
		newItemEvent(typeRepriced, "A", 0),
	)
	require.NoError(t, err)
	assert.Equal(t, 2, stock.count())
	assert.Equal(t, 1, price.count())
	assert.Equal(t, 3, everything.count())
}

func TestInMemoryEventBus_SubscribeTwiceDeliversOnce(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &recorder{types: []string{typeRestocked}}
	bus.Subscribe(h)
	bus.Subscribe(h, typeRestocked)

	require.NoError(t, bus.Publish(context.Background(), newItemEvent(typeRestocked, "A", 1)))
	assert.Equal(t, 1, h.count())
	assert.Len(t, bus.Handlers(typeRestocked), 1)
}

func TestInMemoryEventBus_FailuresAreReported(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := &recorder{types: []string{typeRestocked}, failures: 1}
	healthy := &recorder{types: []string{typeRestocked}}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newItemEvent(typeRestocked, "A", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recorder failed")
	assert.Equal(t, 1, healthy.count(), "a failing handler must not starve the others")
}

func TestInMemoryEventBus_PanicBecomesError(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(&recorder{types: []string{typeRestocked}, panics: true})

	err := bus.Publish(context.Background(), newItemEvent(typeRestocked, "A", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestInMemoryEventBus_NoSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	assert.NoError(t, bus.Publish(context.Background(), newItemEvent(typeRepriced, "A", 0)))
	assert.Empty(t, bus.Handlers(typeRepriced))
}
