// Package events is the in-process event bus the funnel stages use to
// announce state changes to notification and streaming subscribers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a named, timestamped fact published on the bus.
type Event interface {
	EventName() string
	EventID() string
	OccurredAt() time.Time
}

// BaseEvent is embedded by every concrete event.
type BaseEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) EventID() string       { return e.ID }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps a fresh id and the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{ID: uuid.NewString(), Timestamp: time.Now().UTC()}
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events to subscribers by EventName.
type Bus interface {
	// Publish runs handlers in the background and never blocks on them.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers inline and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
