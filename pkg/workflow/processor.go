package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/tenantflow/pkg/condition"
	"github.com/dukex/tenantflow/pkg/integration"
	"github.com/dukex/tenantflow/pkg/models"
)

const (
	DefaultAPICallTimeout = 30 * time.Second
	TenantHeader          = "X-Tenant-ID"
	TenantVariable        = "tenant_id"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// StepResult is the outcome of processing one step. NewVariables are merged
// into the execution variables; Output is only recorded in the step history.
type StepResult struct {
	Success      bool
	NextStep     models.StepID
	Output       map[string]any
	NewVariables map[string]any
	Waiting      bool
	Completed    bool
}

// Processor executes the side effect of a single step.
type Processor struct {
	gateway  integration.Gateway
	notifier integration.Notifier
	logger   *slog.Logger
}

func NewProcessor(logger *slog.Logger, gateway integration.Gateway, notifier integration.Notifier) *Processor {
	return &Processor{
		gateway:  gateway,
		notifier: notifier,
		logger:   logger.With("module", "step_processor"),
	}
}

// Process runs a step against the current variables. The variables are not
// modified; changes are returned in StepResult.NewVariables.
func (p *Processor) Process(ctx context.Context, step *models.Step, variables map[string]any) (*StepResult, error) {
	p.logger.DebugContext(ctx, "processing step", "step_id", step.ID, "type", step.Type, "action", step.Action)

	switch step.Type {
	case models.StepTypeStartEvent:
		return &StepResult{
			Success:  true,
			NextStep: step.Next,
			Output:   map[string]any{"message": "Workflow started"},
		}, nil
	case models.StepTypeServiceTask:
		return p.processServiceTask(ctx, step, variables)
	case models.StepTypeExclusiveGateway:
		result, next, err := branch(step, variables)
		if err != nil {
			return nil, NewStepError(step, err)
		}

		return &StepResult{
			Success:  true,
			NextStep: next,
			Output: map[string]any{
				"condition": step.Condition,
				"result":    result,
				"branch":    strconv.FormatBool(result),
			},
		}, nil
	case models.StepTypeUserTask:
		return &StepResult{
			Success:  true,
			NextStep: step.Next,
			Output:   waitingOutput(step, "Waiting for user action"),
			Waiting:  true,
		}, nil
	case models.StepTypeEndEvent:
		return &StepResult{
			Success:   true,
			Output:    map[string]any{"message": "Workflow completed"},
			Completed: true,
		}, nil
	default:
		return nil, NewStepError(step, fmt.Errorf("%w: %q", ErrUnknownStepType, step.Type))
	}
}

func waitingOutput(step *models.Step, message string) map[string]any {
	output := map[string]any{"message": message}

	if step.Config.Assignment != "" {
		output["assignment"] = step.Config.Assignment
	}

	if step.Config.Timeout != "" {
		output["timeout"] = string(step.Config.Timeout)
	}

	return output
}

func (p *Processor) processServiceTask(ctx context.Context, step *models.Step, variables map[string]any) (*StepResult, error) {
	switch step.Action {
	case models.ActionAPICall:
		return p.callAPI(ctx, step, variables)
	case models.ActionSendNotification:
		return p.sendNotification(ctx, step, variables)
	default:
		return nil, NewStepError(step, fmt.Errorf("%w: %q", ErrUnknownAction, step.Action))
	}
}

func (p *Processor) callAPI(ctx context.Context, step *models.Step, variables map[string]any) (*StepResult, error) {
	if p.gateway == nil {
		return nil, NewExternalCallError(step, errors.New("no api gateway configured"))
	}

	timeout, err := step.Config.Timeout.Duration()
	if err != nil {
		return nil, NewStepError(step, err)
	}

	if timeout <= 0 {
		timeout = DefaultAPICallTimeout
	}

	method := strings.ToUpper(step.Config.Method)
	if method == "" {
		method = http.MethodGet
	}

	headers := make(map[string]string, len(step.Config.Headers)+1)
	maps.Copy(headers, step.Config.Headers)

	if tenantID, ok := variables[TenantVariable].(string); ok && tenantID != "" {
		headers[TenantHeader] = tenantID
	}

	response, err := p.gateway.Call(ctx, &integration.Request{
		Method:   method,
		Endpoint: interpolate(step.Config.Endpoint, variables),
		Body:     step.Config.Body,
		Headers:  headers,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, NewExternalCallError(step, err)
	}

	result := &StepResult{
		Success:  true,
		NextStep: step.Next,
		Output: map[string]any{
			"success":    true,
			"statusCode": response.StatusCode,
			"data":       response.Data,
			"headers":    response.Headers,
		},
	}

	if step.Config.OutputVariable != "" {
		result.NewVariables = map[string]any{
			step.Config.OutputVariable: coerceNumbers(response.Data),
		}
	}

	return result, nil
}

func (p *Processor) sendNotification(ctx context.Context, step *models.Step, variables map[string]any) (*StepResult, error) {
	if p.notifier == nil {
		return nil, NewExternalCallError(step, errors.New("no notifier configured"))
	}

	data := make(map[string]any, len(step.Config.DataMapping))

	for key, path := range step.Config.DataMapping {
		if value, ok := condition.Lookup(variables, path); ok {
			data[key] = cloneValue(value)
		}
	}

	tenantID, _ := variables[TenantVariable].(string)

	receipt, err := p.notifier.Send(ctx, &integration.Notification{
		TenantID:  tenantID,
		Channel:   step.Config.Channel,
		Recipient: interpolate(step.Config.Recipient, variables),
		Template:  step.Config.Template,
		Data:      data,
	})
	if err != nil {
		return nil, NewExternalCallError(step, err)
	}

	return &StepResult{
		Success:  true,
		NextStep: step.Next,
		Output: map[string]any{
			"success":   receipt.Success,
			"channel":   receipt.Channel,
			"recipient": receipt.Recipient,
			"messageId": receipt.MessageID,
			"sentAt":    receipt.SentAt.Format(time.RFC3339Nano),
		},
	}, nil
}

// interpolate replaces every {name} placeholder that resolves against the
// variables. Unresolved placeholders are left in place.
func interpolate(text string, variables map[string]any) string {
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		value, ok := condition.Lookup(variables, match[1:len(match)-1])
		if !ok || value == nil {
			return match
		}

		return formatValue(value)
	})
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
