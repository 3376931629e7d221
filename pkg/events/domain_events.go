package events

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingEventType = errors.New("event_type is required")
	ErrMissingTenantID  = errors.New("tenant_id is required")
)

// DomainEvent is a business event such as "order.created" published by a
// tenant service. Workers map it to a workflow through the trigger map.
type DomainEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	TenantID   string         `json:"tenant_id"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (e DomainEvent) GetType() EventType {
	return DomainEventType
}

// Validate ensures the event can be routed to a tenant workflow.
func (e *DomainEvent) Validate() error {
	if e.EventType == "" {
		return ErrMissingEventType
	}

	if e.TenantID == "" {
		return ErrMissingTenantID
	}

	return nil
}

func NewDomainEvent(eventType, tenantID string, data map[string]any) *DomainEvent {
	return &DomainEvent{
		ID:         uuid.New().String(),
		EventType:  eventType,
		TenantID:   tenantID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}
