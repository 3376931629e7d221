package definitions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidDefinition = errors.New("invalid workflow definition")

// definitionSchema describes the registry's workflow document.
const definitionSchema = `{
  "type": "object",
  "required": ["workflow_id", "tenant_id", "status", "steps_json"],
  "properties": {
    "workflow_id": {"type": "string", "minLength": 1},
    "tenant_id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "version": {"type": "integer"},
    "status": {"enum": ["DRAFT", "PENDING_APPROVAL", "APPROVED", "REJECTED"]},
    "steps_json": {
      "type": "object",
      "required": ["steps"],
      "properties": {
        "steps": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["step_id", "type"],
            "properties": {
              "step_id": {"type": ["string", "integer"]},
              "type": {"enum": ["start-event", "end-event", "service-task", "user-task", "exclusive-gateway"]},
              "next": {"type": ["string", "integer", "null"]},
              "condition": {"type": "string"},
              "branches": {
                "type": "object",
                "properties": {
                  "true": {"type": ["string", "integer", "null"]},
                  "false": {"type": ["string", "integer", "null"]}
                }
              },
              "config": {"type": "object"}
            }
          }
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// ValidateDocument checks a raw registry document before it is decoded.
func ValidateDocument(document []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if !result.Valid() {
		var violations []string
		for _, desc := range result.Errors() {
			violations = append(violations, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(violations, "; "))
	}

	return nil
}
