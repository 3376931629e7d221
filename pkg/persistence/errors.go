// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"

	"github.com/dukex/tenantflow/pkg/models"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDefinitionNotFound indicates no definition exists for the given identifier.
	ErrDefinitionNotFound = errors.New("workflow definition not found")

	// ErrInstanceNotFound indicates no instance exists for the given identifier and tenant.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrInstanceAlreadyExists indicates an instance with the same identifier already exists.
	ErrInstanceAlreadyExists = errors.New("workflow instance already exists")

	// ErrExecutionStateNotFound indicates an instance has no execution state.
	ErrExecutionStateNotFound = errors.New("execution state not found")

	// ErrHistoryEntryNotFound indicates a step history entry was not found.
	ErrHistoryEntryNotFound = errors.New("step history entry not found")

	// ErrHistoryEntryClosed indicates an attempt to modify a closed history entry.
	ErrHistoryEntryClosed = errors.New("step history entry already closed")

	// ErrStatusConflict indicates the stored instance status did not match the expected one.
	ErrStatusConflict = errors.New("instance status conflict")

	// ErrInvalidTransition indicates a status change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidID indicates an identifier that cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid identifier")
)

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Create", "TransitionStatus")
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for instance errors.
func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{
		Op:         op,
		InstanceID: instanceID,
		Err:        err,
	}
}

// DefinitionError wraps definition-related errors with additional context.
type DefinitionError struct {
	Op         string
	WorkflowID string
	TenantID   string
	Err        error
}

func (e *DefinitionError) Error() string {
	if e.TenantID != "" {
		return fmt.Sprintf("%s operation failed for workflow %s of tenant %s: %v", e.Op, e.WorkflowID, e.TenantID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

func (e *DefinitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDefinitionError creates a new definition error with context.
func NewDefinitionError(op, workflowID, tenantID string, err error) *DefinitionError {
	return &DefinitionError{
		Op:         op,
		WorkflowID: workflowID,
		TenantID:   tenantID,
		Err:        err,
	}
}

// StatusConflictError reports a lost compare-and-swap on an instance status.
type StatusConflictError struct {
	InstanceID string
	Expected   models.InstanceStatus
	Actual     models.InstanceStatus
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("instance %s is %s, expected %s", e.InstanceID, e.Actual, e.Expected)
}

func (e *StatusConflictError) Is(target error) bool {
	return target == ErrStatusConflict
}

// NewStatusConflictError creates a conflict error for an instance.
func NewStatusConflictError(instanceID string, expected, actual models.InstanceStatus) *StatusConflictError {
	return &StatusConflictError{InstanceID: instanceID, Expected: expected, Actual: actual}
}

// IsNotFound checks if an error indicates a missing definition, instance or state.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrExecutionStateNotFound) ||
		errors.Is(err, ErrHistoryEntryNotFound)
}

// IsDefinitionNotFound checks if an error indicates a definition was not found.
func IsDefinitionNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsStatusConflict checks if an error indicates a lost status compare-and-swap.
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}

// ValidateTransition checks a status change against the instance state machine.
func ValidateTransition(instanceID string, from, to models.InstanceStatus) error {
	if !models.CanTransition(from, to) {
		return NewInstanceError("TransitionStatus", instanceID,
			fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to))
	}

	return nil
}
