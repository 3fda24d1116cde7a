package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

func newBus() *InMemoryEventBus {
	return NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
}

func stateEvent(productCount int) shared.Event {
	return shared.NewStateUpdatedEvent("3f464f64-6dfd-4d39-868f-11dce35e6ce3", true, false, productCount, false)
}

func TestPublish_DeliversInSubscriptionOrder(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var order []string
	bus.Subscribe(shared.EventStateUpdated, func(shared.Event) error {
		order = append(order, "first")
		return nil
	})
	bus.Subscribe(shared.EventStateUpdated, func(shared.Event) error {
		order = append(order, "second")
		return nil
	})
	bus.SubscribeAll(func(shared.Event) error {
		order = append(order, "global")
		return nil
	})

	err := bus.Publish(stateEvent(1))
	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "global"}, order)
}

func TestPublish_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var delivered bool
	bus.Subscribe(shared.EventStateUpdated, func(shared.Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(shared.EventStateUpdated, func(shared.Event) error {
		delivered = true
		return nil
	})

	err := bus.Publish(stateEvent(1))
	assert.NoError(t, err)
	assert.True(t, delivered)
}

func TestPublish_HandlerPanicIsIsolated(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var delivered bool
	bus.Subscribe(shared.EventStateUpdated, func(shared.Event) error {
		panic("handler blew up")
	})
	bus.Subscribe(shared.EventStateUpdated, func(shared.Event) error {
		delivered = true
		return nil
	})

	assert.NotPanics(t, func() {
		err := bus.Publish(stateEvent(1))
		assert.NoError(t, err)
	})
	assert.True(t, delivered)
	assert.Equal(t, int64(1), bus.Metrics().HandlerFailures)
}

func TestUnsubscribe_DuringDispatchAffectsNextPublishOnly(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var calls int
	var unsubscribe shared.UnsubscribeFunc

	bus.Subscribe(shared.EventStateUpdated, func(shared.Event) error {
		// Removing the later handler mid-pass must not hide it from
		// the pass in flight.
		unsubscribe()
		return nil
	})
	unsubscribe = bus.Subscribe(shared.EventStateUpdated, func(shared.Event) error {
		calls++
		return nil
	})

	assert.NoError(t, bus.Publish(stateEvent(1)))
	assert.Equal(t, 1, calls)

	assert.NoError(t, bus.Publish(stateEvent(2)))
	assert.Equal(t, 1, calls)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var calls int
	unsubscribe := bus.Subscribe(shared.EventStateUpdated, func(shared.Event) error {
		calls++
		return nil
	})

	unsubscribe()
	unsubscribe()

	assert.NoError(t, bus.Publish(stateEvent(1)))
	assert.Equal(t, 0, calls)
}

func TestPublishDebounced_CoalescesToLastPayload(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var mu sync.Mutex
	var received []shared.Event
	bus.Subscribe(shared.EventStateUpdated, func(e shared.Event) error {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		return nil
	})

	bus.PublishDebounced(stateEvent(1), 30*time.Millisecond)
	bus.PublishDebounced(stateEvent(2), 30*time.Millisecond)
	bus.PublishDebounced(stateEvent(3), 30*time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, received[0].Payload()["product_count"])
}

func TestPublishDebounced_IndependentPerEventType(t *testing.T) {
	bus := newBus()
	defer bus.Close()

	var mu sync.Mutex
	counts := make(map[shared.EventType]int)
	bus.SubscribeAll(func(e shared.Event) error {
		mu.Lock()
		counts[e.EventType()]++
		mu.Unlock()
		return nil
	})

	bus.PublishDebounced(stateEvent(1), 20*time.Millisecond)
	bus.PublishDebounced(shared.NewScoreUpdatedEvent(
		"3f464f64-6dfd-4d39-868f-11dce35e6ce3",
		shared.CategoryMonetization,
		"sale-1",
		shared.ScoreSnapshot{Monetization: 10},
	), 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[shared.EventStateUpdated] == 1 && counts[shared.EventScoreUpdated] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestClose_FlushesPendingDebounced(t *testing.T) {
	bus := newBus()

	var received []shared.Event
	bus.Subscribe(shared.EventStateUpdated, func(e shared.Event) error {
		received = append(received, e)
		return nil
	})

	bus.PublishDebounced(stateEvent(7), time.Minute)
	assert.NoError(t, bus.Close())

	assert.Len(t, received, 1)
	assert.Equal(t, 7, received[0].Payload()["product_count"])
}

func TestPublish_AfterCloseFails(t *testing.T) {
	bus := newBus()
	assert.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(stateEvent(1)), ErrEventBusClosed)
}
