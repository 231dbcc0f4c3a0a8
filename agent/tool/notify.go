package tool

import (
	"context"
	"time"
)

type EventKind string

const (
	EventBooked      EventKind = "appointment.booked"
	EventCancelled   EventKind = "appointment.cancelled"
	EventRescheduled EventKind = "appointment.rescheduled"
)

// BookingEvent describes a committed change to the appointment book.
type BookingEvent struct {
	Kind       EventKind  `json:"kind"`
	Patient    int64      `json:"patient"`
	Doctor     string     `json:"doctor"`
	At         time.Time  `json:"at"`
	PreviousAt *time.Time `json:"previous_at,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Notifier receives booking events after the store change has committed.
// Errors are logged by the caller and never undo the change.
type Notifier interface {
	Notify(ctx context.Context, evt BookingEvent) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, BookingEvent) error { return nil }
