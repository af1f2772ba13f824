// internal/events/handler.go
package events

import (
	"context"
)

// Publisher is the write side of the bus used by producers.
type Publisher interface {
	Publish(event Event) error
}

// Handler processes events of a specific type. Handlers run on the bus
// dispatcher and must not block for long.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription represents a subscription to events.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id       string
	eventBus *Bus
	typ      EventType
}

func (s *subscription) Unsubscribe() {
	s.eventBus.unsubscribe(s.id, s.typ)
}

// SubscribeAll registers one handler for several event types and returns a
// subscription that removes all of them.
func (b *Bus) SubscribeAll(handler Handler, types ...EventType) Subscription {
	subs := make(multiSubscription, 0, len(types))
	for _, t := range types {
		subs = append(subs, b.Subscribe(t, handler))
	}
	return subs
}

type multiSubscription []Subscription

func (m multiSubscription) Unsubscribe() {
	for _, s := range m {
		s.Unsubscribe()
	}
}
