// Package messaging implements the in-process event bus the progression
// engine publishes its domain events on.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/telar-hub/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus is a synchronous implementation of shared.EventBus.
//
// Delivery is in subscription order, on the publisher's goroutine. Handler
// errors and panics are logged and swallowed; they never reach the
// publisher and never prevent delivery to the remaining handlers. The
// contract assumes all mutations for one user are serialized by the
// caller, so synchronous dispatch keeps event ordering deterministic.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]*subscription
	allHandlers []*subscription
	nextID      uint64
	closed      bool

	debounceMu sync.Mutex
	pending    map[shared.EventType]*pendingDebounce

	logger  *slog.Logger
	metrics *EventBusMetrics
}

// subscription ties a handler to a removal token.
type subscription struct {
	id      uint64
	handler shared.EventHandler
}

// pendingDebounce is the coalescing slot for one event type.
type pendingDebounce struct {
	timer *time.Timer
	event shared.Event
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// Logger for structured logging
	Logger *slog.Logger

	// EnableMetrics enables metrics collection
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		EnableMetrics: true,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	bus := &InMemoryEventBus{
		handlers: make(map[shared.EventType][]*subscription),
		pending:  make(map[shared.EventType]*pendingDebounce),
		logger:   config.Logger,
	}

	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}

	return bus
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) shared.UnsubscribeFunc {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{id: b.nextID, handler: handler}
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], sub)
	b.logger.Debug("subscribed handler", "event_type", eventType)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[eventType] = removeSubscription(b.handlers[eventType], sub.id)
	}
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) shared.UnsubscribeFunc {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{id: b.nextID, handler: handler}
	b.nextID++
	b.allHandlers = append(b.allHandlers, sub)
	b.logger.Debug("subscribed global handler")

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allHandlers = removeSubscription(b.allHandlers, sub.id)
	}
}

func removeSubscription(subs []*subscription, id uint64) []*subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Publish sends an event to all subscribed handlers, synchronously and in
// subscription order. The handler list is snapshotted before dispatch, so
// subscribing or unsubscribing from inside a handler affects only later
// publishes, never the pass in flight.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	subs := make([]*subscription, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	subs = append(subs, b.handlers[event.EventType()]...)
	subs = append(subs, b.allHandlers...)
	b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.RecordPublish(event.EventType())
	}

	if len(subs) == 0 {
		b.logger.Debug("no handlers for event", "event_type", event.EventType())
		return nil
	}

	for _, sub := range subs {
		b.execute(event, sub.handler)
	}
	return nil
}

// execute runs one handler with panic isolation.
func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) {
	start := time.Now()
	err := b.safeCall(event, handler)
	duration := time.Since(start)

	if b.metrics != nil {
		b.metrics.RecordHandlerExecution(event.EventType(), duration, err == nil)
	}

	if err != nil {
		b.logger.Error("handler error",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"duration", duration,
			"error", err,
		)
	}
}

func (b *InMemoryEventBus) safeCall(event shared.Event, handler shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(event)
}

// PublishDebounced coalesces bursts per event type. Each call arms (or
// re-arms) a timer for the event's type; when the window elapses without
// another call, the last event is delivered via Publish. Superseded
// payloads are dropped.
func (b *InMemoryEventBus) PublishDebounced(event shared.Event, window time.Duration) {
	if event == nil {
		return
	}
	if window <= 0 {
		_ = b.Publish(event)
		return
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	eventType := event.EventType()

	b.debounceMu.Lock()
	defer b.debounceMu.Unlock()

	if slot, ok := b.pending[eventType]; ok {
		slot.event = event
		slot.timer.Reset(window)
		return
	}

	slot := &pendingDebounce{event: event}
	slot.timer = time.AfterFunc(window, func() {
		b.flushDebounced(eventType)
	})
	b.pending[eventType] = slot
}

// flushDebounced delivers and clears the pending event for a type.
func (b *InMemoryEventBus) flushDebounced(eventType shared.EventType) {
	b.debounceMu.Lock()
	slot, ok := b.pending[eventType]
	if ok {
		delete(b.pending, eventType)
	}
	b.debounceMu.Unlock()

	if !ok {
		return
	}
	if err := b.Publish(slot.event); err != nil {
		b.logger.Error("debounced publish failed", "event_type", eventType, "error", err)
	}
}

// Close stops the bus. Pending debounced events are flushed synchronously
// so a graceful shutdown does not drop the trailing edge of a burst.
func (b *InMemoryEventBus) Close() error {
	b.debounceMu.Lock()
	var toFlush []shared.Event
	for eventType, slot := range b.pending {
		if slot.timer.Stop() {
			toFlush = append(toFlush, slot.event)
		}
		delete(b.pending, eventType)
	}
	b.debounceMu.Unlock()

	for _, event := range toFlush {
		if err := b.Publish(event); err != nil {
			b.logger.Error("flush on close failed", "event_type", event.EventType(), "error", err)
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the current metrics.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics tracks event bus performance metrics.
type EventBusMetrics struct {
	mu sync.RWMutex

	// Publish metrics
	PublishedTotal map[shared.EventType]int64

	// Handler execution metrics
	HandlerExecutions      int64
	HandlerSuccesses       int64
	HandlerFailures        int64
	HandlerTotalDuration   time.Duration
	HandlersByType         map[shared.EventType]int64
	HandlerDurationsByType map[shared.EventType]time.Duration

	// Last reset time
	LastReset time.Time
}

// NewEventBusMetrics creates new metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		PublishedTotal:         make(map[shared.EventType]int64),
		HandlersByType:         make(map[shared.EventType]int64),
		HandlerDurationsByType: make(map[shared.EventType]time.Duration),
		LastReset:              time.Now(),
	}
}

// RecordPublish records a publish event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishedTotal[eventType]++
}

// RecordHandlerExecution records a handler execution.
func (m *EventBusMetrics) RecordHandlerExecution(eventType shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HandlerExecutions++
	m.HandlerTotalDuration += duration
	m.HandlersByType[eventType]++
	m.HandlerDurationsByType[eventType] += duration

	if success {
		m.HandlerSuccesses++
	} else {
		m.HandlerFailures++
	}
}

// Snapshot returns a copy of current metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avgDuration := time.Duration(0)
	if m.HandlerExecutions > 0 {
		avgDuration = m.HandlerTotalDuration / time.Duration(m.HandlerExecutions)
	}

	return EventBusMetricsSnapshot{
		TotalPublished:         m.sumMap(m.PublishedTotal),
		TotalHandlerExecs:      m.HandlerExecutions,
		HandlerSuccessRate:     m.successRate(),
		AverageHandlerDuration: avgDuration,
		LastReset:              m.LastReset,
	}
}

func (m *EventBusMetrics) sumMap(mp map[shared.EventType]int64) int64 {
	var sum int64
	for _, v := range mp {
		sum += v
	}
	return sum
}

func (m *EventBusMetrics) successRate() float64 {
	if m.HandlerExecutions == 0 {
		return 1.0
	}
	return float64(m.HandlerSuccesses) / float64(m.HandlerExecutions)
}

// EventBusMetricsSnapshot is a point-in-time snapshot of metrics.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
	LastReset              time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")
)
