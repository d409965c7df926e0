// Package metering records per-organization usage events for billing.
// The coordination path emits one event per accepted message; recorder
// failures are logged by callers and never fail the request.
package metering

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEmptyOrgID is returned when a usage event has no organization id.
	ErrEmptyOrgID = errors.New("metering: org_id must not be empty")
	// ErrNegativeQuantity is returned when a usage event has a negative quantity.
	ErrNegativeQuantity = errors.New("metering: quantity must not be negative")
	// ErrInvalidEventType is returned when the event type is empty.
	ErrInvalidEventType = errors.New("metering: event_type must not be empty")
)

// EventType defines the type of metered event.
type EventType string

const (
	EventMessage  EventType = "message"
	EventRejected EventType = "rejected"
)

// Event represents a single metered usage event.
type Event struct {
	OrgID     string            `json:"org_id"`
	EventType EventType         `json:"event_type"`
	Quantity  int64             `json:"quantity"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Validate checks that the event has valid fields.
func (e Event) Validate() error {
	if e.OrgID == "" {
		return ErrEmptyOrgID
	}
	if e.Quantity < 0 {
		return ErrNegativeQuantity
	}
	if e.EventType == "" {
		return ErrInvalidEventType
	}
	return nil
}

// Recorder persists usage events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// NopRecorder discards events; used when metering is not configured.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Event) error { return nil }
