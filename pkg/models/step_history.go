package models

import "time"

// StepStatus is the status of a single step execution.
type StepStatus string

const (
	StepStatusStarted   StepStatus = "STARTED"
	StepStatusCompleted StepStatus = "COMPLETED"
	StepStatusFailed    StepStatus = "FAILED"
)

// StepHistoryEntry is an append-only audit record of one step execution.
type StepHistoryEntry struct {
	ID           string         `json:"id"`
	InstanceID   string         `json:"instance_id"`
	StepID       StepID         `json:"step_id"`
	StepName     string         `json:"step_name"`
	StepType     StepType       `json:"step_type"`
	Status       StepStatus     `json:"status"`
	InputData    map[string]any `json:"input_data,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Closed reports whether the entry reached a final status.
func (e *StepHistoryEntry) Closed() bool {
	return e.Status == StepStatusCompleted || e.Status == StepStatusFailed
}
