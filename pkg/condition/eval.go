package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var numericString = regexp.MustCompile(`^\s*-?\d+(\.\d*)?\s*$`)

func (n *literalNode) eval(_ map[string]any) (any, error) {
	return n.value, nil
}

func (n *pathNode) eval(vars map[string]any) (any, error) {
	value, ok := Lookup(vars, n.path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndefined, n.path)
	}

	return value, nil
}

func (n *notNode) eval(vars map[string]any) (any, error) {
	value, err := n.operand.eval(vars)
	if err != nil {
		return nil, err
	}

	return !truthy(value), nil
}

func (n *negateNode) eval(vars map[string]any) (any, error) {
	value, err := n.operand.eval(vars)
	if err != nil {
		return nil, err
	}

	num, ok := toNumber(value, true)
	if !ok {
		return nil, fmt.Errorf("%w: cannot negate %T", ErrTypeMismatch, value)
	}

	return -num, nil
}

func (n *logicalNode) eval(vars map[string]any) (any, error) {
	left, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}

	if n.op == tokenAnd && !truthy(left) {
		return false, nil
	}

	if n.op == tokenOr && truthy(left) {
		return true, nil
	}

	right, err := n.right.eval(vars)
	if err != nil {
		return nil, err
	}

	return truthy(right), nil
}

func (n *compareNode) eval(vars map[string]any) (any, error) {
	left, err := n.left.eval(vars)
	if err != nil {
		return nil, err
	}

	right, err := n.right.eval(vars)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case tokenEq:
		return looseEqual(left, right), nil
	case tokenNeq:
		return !looseEqual(left, right), nil
	case tokenStrictEq:
		return strictEqual(left, right), nil
	case tokenStrictNeq:
		return !strictEqual(left, right), nil
	}

	cmp, err := order(left, right)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case tokenGt:
		return cmp > 0, nil
	case tokenGte:
		return cmp >= 0, nil
	case tokenLt:
		return cmp < 0, nil
	default:
		return cmp <= 0, nil
	}
}

// order compares two operands. Numbers compare numerically, strings
// lexicographically, and a numeric string against a number numerically.
// null has no order: `null >= 0` is a type mismatch, so the condition is
// false rather than coercing null to 0.
func order(left, right any) (int, error) {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return strings.Compare(ls, rs), nil
		}
	}

	ln, lok := toNumber(left, true)
	rn, rok := toNumber(right, true)

	if !lok || !rok {
		return 0, fmt.Errorf("%w: cannot order %T and %T", ErrTypeMismatch, left, right)
	}

	switch {
	case ln < rn:
		return -1, nil
	case ln > rn:
		return 1, nil
	default:
		return 0, nil
	}
}

func looseEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return ls == rs
		}
	}

	ln, lok := toNumber(left, true)
	rn, rok := toNumber(right, true)

	if lok && rok {
		return ln == rn
	}

	return strictEqual(left, right)
}

func strictEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	ln, lok := toNumber(left, false)
	rn, rok := toNumber(right, false)

	if lok && rok {
		return ln == rn
	}

	switch l := left.(type) {
	case string:
		r, ok := right.(string)

		return ok && l == r
	case bool:
		r, ok := right.(bool)

		return ok && l == r
	default:
		return false
	}
}

// toNumber converts numeric values. With coerce, booleans and numeric strings
// convert as well.
func toNumber(value any, coerce bool) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		if !coerce || !numericString.MatchString(v) {
			return 0, false
		}

		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return f, err == nil
	case bool:
		if !coerce {
			return 0, false
		}

		if v {
			return 1, true
		}

		return 0, true
	default:
		return 0, false
	}
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case map[string]any, []any:
		return true
	default:
		if num, ok := toNumber(v, false); ok {
			return num != 0
		}

		return true
	}
}
