package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrStepNotFound    = errors.New("step not found")
	ErrNoStartStep     = errors.New("no start event found in workflow")
	ErrUnknownStepType = errors.New("unknown step type")
	ErrUnknownAction   = errors.New("unknown action")
	ErrExternalCall    = errors.New("external call failed")
	ErrStepMismatch    = errors.New("step does not match the suspended step")
	ErrNoBranches      = errors.New("no branches defined")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidRequest, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func requireField(field, value string) error {
	if value == "" {
		return NewValidationError(field, "is required")
	}

	return nil
}

// StepError wraps a failure of a single step with the step's identity.
type StepError struct {
	StepID   models.StepID
	StepType models.StepType
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s (%s): %v", e.StepID, e.StepType, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewStepError(step *models.Step, err error) *StepError {
	return &StepError{StepID: step.ID, StepType: step.Type, Err: err}
}

// NewExternalCallError marks a failed gateway or notification call.
func NewExternalCallError(step *models.Step, err error) *StepError {
	return NewStepError(step, fmt.Errorf("%w: %w", ErrExternalCall, err))
}

func resumeConflict(status models.InstanceStatus) error {
	return fmt.Errorf("cannot resume workflow in status %s: %w", status, persistence.ErrStatusConflict)
}

func cancelConflict(status models.InstanceStatus) error {
	return fmt.Errorf("cannot cancel workflow in status %s: %w", status, persistence.ErrStatusConflict)
}

// IsValidationError checks if an error is caused by an invalid request.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsNotFound checks if an error indicates a missing definition, instance or step.
func IsNotFound(err error) bool {
	return persistence.IsNotFound(err) || errors.Is(err, ErrStepNotFound)
}

// IsConflict checks if an error is a lost status race or a resume of the wrong step.
func IsConflict(err error) bool {
	return persistence.IsStatusConflict(err) || errors.Is(err, ErrStepMismatch)
}

// IsExternalCallError checks if an error came from a collaborator call.
func IsExternalCallError(err error) bool {
	return errors.Is(err, ErrExternalCall)
}
