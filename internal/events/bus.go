// internal/events/bus.go
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrBusClosed   = errors.New("event bus is shutting down")
	ErrChannelFull = errors.New("event channel full")
)

// Bus is an in-memory event bus. Events published asynchronously are
// delivered by a single dispatcher goroutine, so handlers observe them in
// publish order.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[EventType]map[string]Handler
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	eventChan  chan Event
	bufferSize int
}

// Stats is a point-in-time view of the bus.
type Stats struct {
	BufferSize      int
	PendingEvents   int
	EventTypes      int
	HandlersPerType map[EventType]int
}

// NewBus creates a new event bus and starts its dispatcher.
func NewBus(logger *zap.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	bus := &Bus{
		handlers:   make(map[EventType]map[string]Handler),
		logger:     logger.Named("event-bus"),
		ctx:        ctx,
		cancel:     cancel,
		eventChan:  make(chan Event, bufferSize),
		bufferSize: bufferSize,
	}

	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	b.handlers[eventType][id] = handler

	b.logger.Debug("Handler subscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))

	return &subscription{
		id:       id,
		eventBus: b,
		typ:      eventType,
	}
}

// SubscribeFunc is a convenience method for subscribing with a function.
func (b *Bus) SubscribeFunc(eventType EventType, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues an event for delivery. It never blocks: when the buffer is
// full the event is dropped and ErrChannelFull returned.
func (b *Bus) Publish(event Event) error {
	select {
	case <-b.ctx.Done():
		return ErrBusClosed
	default:
	}

	select {
	case b.eventChan <- event:
		return nil
	default:
		b.logger.Warn("Event channel full, dropping event",
			zap.String("event_type", string(event.Type())))
		return ErrChannelFull
	}
}

// PublishSync delivers an event to all registered handlers on the caller's
// goroutine.
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type()]))
	ids := make([]string, 0, len(b.handlers[event.Type()]))
	for id, h := range b.handlers[event.Type()] {
		handlers = append(handlers, h)
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	var errs []error
	for i, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			b.logger.Error("Handler error",
				zap.String("event_type", string(event.Type())),
				zap.String("handler_id", ids[i]),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("handlers failed: %w", errors.Join(errs...))
	}
	return nil
}

func (b *Bus) dispatch() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			// Drain what is already queued.
			for {
				select {
				case event := <-b.eventChan:
					_ = b.PublishSync(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			_ = b.PublishSync(b.ctx, event)
		}
	}
}

func (b *Bus) unsubscribe(id string, eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
		}
	}

	b.logger.Debug("Handler unsubscribed",
		zap.String("event_type", string(eventType)),
		zap.String("subscription_id", id))
}

// Shutdown stops the dispatcher after draining queued events.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.logger.Debug("Shutting down event bus")
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats returns statistics about the event bus.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		BufferSize:      b.bufferSize,
		PendingEvents:   len(b.eventChan),
		EventTypes:      len(b.handlers),
		HandlersPerType: make(map[EventType]int, len(b.handlers)),
	}
	for eventType, handlers := range b.handlers {
		stats.HandlersPerType[eventType] = len(handlers)
	}
	return stats
}
