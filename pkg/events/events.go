// Package events defines instance lifecycle events and the inbound domain
// events that trigger workflows.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries lifecycle and domain events.
const Topic = "tenantflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Instance lifecycle events.
	InstanceStartedEvent   EventType = "instance.started"
	InstanceWaitingEvent   EventType = "instance.waiting"
	InstanceResumedEvent   EventType = "instance.resumed"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceFailedEvent    EventType = "instance.failed"
	InstanceCancelledEvent EventType = "instance.cancelled"

	// DomainEventType is a business event emitted by a tenant service.
	DomainEventType EventType = "domain.event"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	TenantID   string         `json:"tenant_id"`
	WorkflowID string         `json:"workflow_id"`
	InstanceID string         `json:"instance_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type InstanceStarted struct {
	BaseEvent

	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

// InstanceWaiting is published when an instance suspends at a user-task.
type InstanceWaiting struct {
	BaseEvent

	StepID     string `json:"step_id"`
	StepName   string `json:"step_name,omitempty"`
	Assignment string `json:"assignment,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

func (e InstanceWaiting) GetType() EventType {
	return InstanceWaitingEvent
}

type InstanceResumed struct {
	BaseEvent

	StepID    string         `json:"step_id"`
	UserInput map[string]any `json:"user_input,omitempty"`
}

func (e InstanceResumed) GetType() EventType {
	return InstanceResumedEvent
}

type InstanceCompleted struct {
	BaseEvent

	DurationMs int64 `json:"duration_ms"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceFailed struct {
	BaseEvent

	StepID     string `json:"step_id,omitempty"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (e InstanceFailed) GetType() EventType {
	return InstanceFailedEvent
}

type InstanceCancelled struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

func NewBaseEvent(eventType EventType, tenantID, workflowID, instanceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		TenantID:   tenantID,
		WorkflowID: workflowID,
		InstanceID: instanceID,
		Metadata:   make(map[string]any),
	}
}
