package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusRunning   InstanceStatus = "RUNNING"
	InstanceStatusWaiting   InstanceStatus = "WAITING"
	InstanceStatusCompleted InstanceStatus = "COMPLETED"
	InstanceStatusFailed    InstanceStatus = "FAILED"
	InstanceStatusCancelled InstanceStatus = "CANCELLED"
)

// ValidTransitions lists the statuses reachable from each status.
var ValidTransitions = map[InstanceStatus][]InstanceStatus{
	InstanceStatusRunning:   {InstanceStatusWaiting, InstanceStatusCompleted, InstanceStatusFailed},
	InstanceStatusWaiting:   {InstanceStatusRunning, InstanceStatusFailed, InstanceStatusCancelled},
	InstanceStatusCompleted: {},
	InstanceStatusFailed:    {},
	InstanceStatusCancelled: {},
}

// CanTransition reports whether an instance may move from one status to another.
func CanTransition(from, to InstanceStatus) bool {
	for _, allowed := range ValidTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed || s == InstanceStatusCancelled
}

// WorkflowInstance is one execution of a definition for a tenant.
type WorkflowInstance struct {
	InstanceID   string         `json:"instance_id"`
	WorkflowID   string         `json:"workflow_id"`
	TenantID     string         `json:"tenant_id"`
	Status       InstanceStatus `json:"status"`
	TriggerData  map[string]any `json:"trigger_data"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"` // Set on terminal transitions only
	ErrorMessage string         `json:"error_message,omitempty"`
}

// ExecutionState is the mutable working memory of an instance.
//
// CurrentStep is the step about to execute, or the step the instance is
// suspended at. It is empty before the first step runs and after the instance
// reached a terminal status.
type ExecutionState struct {
	InstanceID  string         `json:"instance_id"`
	CurrentStep StepID         `json:"current_step"`
	Variables   map[string]any `json:"variables"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
