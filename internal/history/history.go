package history

import (
	"context"
	"time"
)

// EventType defines the kind of supervisor event worth persisting.
type EventType string

const (
	EventRestart     EventType = "restart"
	EventRemediation EventType = "remediation"
)

// Event is one restart attempt or remediation outcome, the durable trail
// behind the ephemeral per-tick state.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Subject    string    `json:"subject"` // service name, or resource kind for remediations
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for supervisor events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
