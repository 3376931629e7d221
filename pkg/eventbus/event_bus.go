// Package eventbus carries instance lifecycle and domain events between services.
package eventbus

import (
	"context"

	"github.com/dukex/tenantflow/pkg/events"
)

// Event is anything that can be routed by its type.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes events. The key orders events that share it,
// which for lifecycle events is the instance id.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber dispatches received events to the handler registered for
// their type. Handle must be called before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a decoded event. Returning an error nacks the message.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
