package workflow

import (
	"fmt"
	"strconv"

	"github.com/dukex/tenantflow/pkg/condition"
	"github.com/dukex/tenantflow/pkg/models"
)

// FindStep resolves a step reference. An exact id match wins; a purely
// numeric reference is then tried as a 1-based position when every step id is
// numeric or a sentinel; finally the start aliases "1", "start" and
// "auto-start" resolve to the start step.
func FindStep(definition *models.WorkflowDefinition, stepID models.StepID) (*models.Step, bool) {
	for _, step := range definition.Steps {
		if step.ID == stepID {
			return step, true
		}
	}

	if position, ok := parsePosition(stepID); ok && numericIDs(definition.Steps) {
		if position >= 1 && position <= len(definition.Steps) {
			return definition.Steps[position-1], true
		}
	}

	switch stepID {
	case "1", "start", models.AutoStartStepID:
		for _, step := range definition.Steps {
			if step.IsStart() {
				return step, true
			}
		}
	}

	return nil, false
}

func numericIDs(steps []*models.Step) bool {
	for _, step := range steps {
		if step.IsSentinel() {
			continue
		}

		if _, ok := parsePosition(step.ID); !ok {
			return false
		}
	}

	return true
}

// parsePosition accepts plain digit strings only, so "+2" or "-1" are ids.
func parsePosition(stepID models.StepID) (int, bool) {
	if stepID == "" {
		return 0, false
	}

	for _, r := range stepID {
		if r < '0' || r > '9' {
			return 0, false
		}
	}

	position, err := strconv.Atoi(string(stepID))

	return position, err == nil
}

// FindStartStep returns the first start-event, or else the step with id
// "auto-start" or "1".
func FindStartStep(definition *models.WorkflowDefinition) (*models.Step, bool) {
	for _, step := range definition.Steps {
		if step.Type == models.StepTypeStartEvent {
			return step, true
		}
	}

	for _, step := range definition.Steps {
		if step.ID == models.AutoStartStepID || step.ID == "1" {
			return step, true
		}
	}

	return nil, false
}

// NextStepID returns the successor of a step; empty means the step is terminal.
func NextStepID(step *models.Step, variables map[string]any) (models.StepID, error) {
	switch step.Type {
	case models.StepTypeEndEvent:
		return "", nil
	case models.StepTypeExclusiveGateway:
		_, next, err := branch(step, variables)

		return next, err
	default:
		return step.Next, nil
	}
}

// branch evaluates a gateway condition. An empty condition takes the true
// branch. A gateway without branches cannot route and is a definition error;
// an empty target on a present branch ends the instance.
func branch(step *models.Step, variables map[string]any) (bool, models.StepID, error) {
	if step.Branches == nil {
		return false, "", fmt.Errorf("%w: gateway %s", ErrNoBranches, step.ID)
	}

	result := step.Condition == "" || condition.Evaluate(step.Condition, variables)

	if result {
		return true, step.Branches.True, nil
	}

	return false, step.Branches.False, nil
}
