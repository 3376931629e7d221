package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StepType identifies the BPMN element a step was derived from.
type StepType string

const (
	StepTypeStartEvent       StepType = "start-event"
	StepTypeEndEvent         StepType = "end-event"
	StepTypeServiceTask      StepType = "service-task"
	StepTypeUserTask         StepType = "user-task"
	StepTypeExclusiveGateway StepType = "exclusive-gateway"
)

// StepAction selects the side effect of a service-task.
type StepAction string

const (
	ActionAPICall          StepAction = "api-call"
	ActionSendNotification StepAction = "send-notification"
)

// Sentinel step ids emitted by the designer for implicit start and end events.
const (
	AutoStartStepID = "auto-start"
	AutoEndStepID   = "auto-end"
)

// StepID is a step identifier. Definitions in the wild carry ids both as JSON
// strings and as JSON numbers; both decode to the same string form.
type StepID string

func (s *StepID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if bytes.Equal(data, []byte("null")) {
		*s = ""

		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}

		*s = StepID(strings.TrimSpace(str))

		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("step id must be a string or a number: %w", err)
	}

	*s = StepID(num.String())

	return nil
}

func (s StepID) String() string {
	return string(s)
}

// Branches holds the successors of an exclusive-gateway.
type Branches struct {
	True  StepID `json:"true"`
	False StepID `json:"false"`
}

// Step is a node in the process graph.
type Step struct {
	ID        StepID     `json:"step_id"             validate:"required"`
	Name      string     `json:"step_name,omitempty"`
	Type      StepType   `json:"type"                validate:"required,oneof=start-event end-event service-task user-task exclusive-gateway"`
	Action    StepAction `json:"action,omitempty"`
	Config    StepConfig `json:"config,omitzero"`
	Next      StepID     `json:"next,omitempty"`
	Condition string     `json:"condition,omitempty"`
	Branches  *Branches  `json:"branches,omitempty"`
}

// StepConfig carries the type-specific settings of a step.
type StepConfig struct {
	// api-call
	Method         string            `json:"method,omitempty"`
	Endpoint       string            `json:"endpoint,omitempty"`
	Body           any               `json:"body,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	OutputVariable string            `json:"output_variable,omitempty"`

	// send-notification
	Channel     string            `json:"channel,omitempty"`
	Recipient   string            `json:"recipient,omitempty"`
	Template    string            `json:"template,omitempty"`
	DataMapping map[string]string `json:"data_mapping,omitempty"`

	// user-task
	Assignment string `json:"assignment,omitempty"`

	// api-call request timeout, or user-task expiry
	Timeout Timeout `json:"timeout,omitempty"`
}

// Timeout is a duration written either as a string ("30s", "24h", "2d") or as
// a JSON number of milliseconds.
type Timeout string

func (t *Timeout) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if bytes.Equal(data, []byte("null")) {
		*t = ""

		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}

		*t = Timeout(strings.TrimSpace(str))

		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("timeout must be a string or a number: %w", err)
	}

	*t = Timeout(num.String() + "ms")

	return nil
}

// Duration parses the timeout. An empty timeout returns zero and no error.
func (t Timeout) Duration() (time.Duration, error) {
	raw := strings.TrimSpace(string(t))
	if raw == "" {
		return 0, nil
	}

	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %q: %w", raw, err)
		}

		return time.Duration(n * float64(24*time.Hour)), nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", raw, err)
	}

	return d, nil
}

// IsStart reports whether the step is a start event or the implicit start sentinel.
func (s *Step) IsStart() bool {
	return s.Type == StepTypeStartEvent || s.ID == AutoStartStepID
}

// IsSentinel reports whether the step carries one of the designer's sentinel ids.
func (s *Step) IsSentinel() bool {
	return s.ID == AutoStartStepID || s.ID == AutoEndStepID
}
