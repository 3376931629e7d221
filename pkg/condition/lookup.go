package condition

import (
	"strconv"
	"strings"
)

// Lookup resolves a dotted path against nested maps and lists. The second
// return value is false when any segment is absent or an intermediate value
// is not a container. A present JSON null resolves to (nil, true).
func Lookup(vars map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = vars

	for _, key := range strings.Split(path, ".") {
		switch container := current.(type) {
		case map[string]any:
			value, ok := container[key]
			if !ok {
				return nil, false
			}

			current = value
		case map[string]string:
			value, ok := container[key]
			if !ok {
				return nil, false
			}

			current = value
		case []any:
			index, err := strconv.Atoi(key)
			if err != nil || index < 0 || index >= len(container) {
				return nil, false
			}

			current = container[index]
		default:
			return nil, false
		}
	}

	return current, true
}
