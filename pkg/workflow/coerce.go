package workflow

import (
	"regexp"
	"strconv"
)

var numericString = regexp.MustCompile(`^\d+\.?\d*$`)

// coerceNumbers returns a deep copy of value in which every string made of
// digits with an optional single decimal point becomes a float64.
func coerceNumbers(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = coerceNumbers(item)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = coerceNumbers(item)
		}

		return out
	case string:
		if !numericString.MatchString(v) {
			return v
		}

		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return v
		}

		return n
	default:
		return v
	}
}

// cloneValue returns a deep copy of JSON-shaped data.
func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}

func cloneVariables(variables map[string]any) map[string]any {
	if variables == nil {
		return map[string]any{}
	}

	return cloneValue(variables).(map[string]any)
}
