// Package notify owns progress notifications for transaction lifecycles and
// forwards them to whatever host renders them.
package notify

import "time"

// Status is the visual state of a notification.
type Status string

const (
	StatusInfo    Status = "info"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Notification is one message in a lifecycle slot. A zero Duration keeps it
// visible until it is closed explicitly.
type Notification struct {
	ID          string
	Title       string
	Description string
	Link        string
	Status      Status
	Duration    time.Duration
}

// Sticky reports whether the notification waits for an explicit close.
func (n Notification) Sticky() bool {
	return n.Duration <= 0
}

// Sink renders notifications. Calls for one id arrive in order. Sinks must
// not call back into the Reporter.
type Sink interface {
	Show(n Notification)
	Update(n Notification)
	Close(id string)
}
