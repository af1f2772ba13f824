package ui

import "github.com/willwe-xyz/willwe-app/internal/notify"

// NotificationOp says what happened to a notification slot.
type NotificationOp int

const (
	OpShow NotificationOp = iota
	OpUpdate
	OpClose
)

// NotificationMsg forwards one sink call into the program.
type NotificationMsg struct {
	Op           NotificationOp
	Notification notify.Notification
}

// DoneMsg ends a session once the operation has returned.
type DoneMsg struct {
	Summary string
	Err     error
}
