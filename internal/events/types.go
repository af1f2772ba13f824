// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Transaction lifecycle events
	TxSubmitted EventType = "tx.submitted"
	TxPending   EventType = "tx.pending"
	TxConfirmed EventType = "tx.confirmed"
	TxFailed    EventType = "tx.failed"
	TxCancelled EventType = "tx.cancelled"

	// Notification events
	NotificationShown   EventType = "notification.shown"
	NotificationUpdated EventType = "notification.updated"
	NotificationClosed  EventType = "notification.closed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase stamps a BaseEvent with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TxEvent carries one transaction lifecycle transition. Fields that are not
// known yet at a given transition are left zero.
type TxEvent struct {
	BaseEvent
	LifecycleID  string
	Operation    string
	ChainID      uint64
	From         string
	Hash         string
	ExplorerURL  string
	GasLimit     uint64
	GasUsed      uint64
	BlockNumber  uint64
	ErrorKind    string
	ErrorMessage string
}

// NotificationEvent mirrors a progress notification change.
type NotificationEvent struct {
	BaseEvent
	ID          string
	Title       string
	Description string
	Link        string
	Status      string
	Duration    time.Duration
}
