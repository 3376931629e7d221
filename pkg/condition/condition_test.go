package condition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	vars := map[string]any{
		"orderValue": float64(15000),
		"tenant_id":  "tenant-a",
		"approved":   true,
		"count":      3,
		"delta":      int64(-1),
		"empty":      "",
		"nothing":    nil,
		"orderDetails": map[string]any{
			"order": map[string]any{
				"order_id":    "ord-1",
				"order_value": float64(12000),
				"status":      "PENDING",
				"raw_value":   "15000",
			},
		},
		"items": []any{
			map[string]any{"price": float64(7)},
			map[string]any{"price": float64(2)},
		},
	}

	tests := []struct {
		name       string
		expression string
		expected   bool
	}{
		{"number greater than", "orderValue > 10000", true},
		{"number not greater than", "orderValue > 20000", false},
		{"nested path", "orderDetails.order.order_value > 10000", true},
		{"nested path lower bound", "orderDetails.order.order_value <= 12000", true},
		{"string equality single quotes", "orderDetails.order.status == 'PENDING'", true},
		{"string equality double quotes", `tenant_id == "tenant-b"`, false},
		{"string inequality", "tenant_id != 'tenant-b'", true},
		{"lexicographic order", "'b' > 'a'", true},
		{"numeric string against number", "orderDetails.order.raw_value > 10000", true},
		{"loose equality coerces numeric strings", "count == '3'", true},
		{"strict equality does not coerce", "count === '3'", false},
		{"strict inequality", "count !== 3", false},
		{"integer variables", "count >= 3 && count < 4", true},
		{"negative literal", "delta > -5", true},
		{"boolean variable", "approved", true},
		{"negated boolean", "!approved", false},
		{"boolean literal comparison", "approved == true", true},
		{"and binds tighter than or", "approved || false && false", true},
		{"parentheses override precedence", "(approved || false) && false", false},
		{"nested parentheses", "((orderValue > 100) && (tenant_id == 'tenant-a'))", true},
		{"empty string is falsy", "empty", false},
		{"null equality", "nothing == null", true},
		{"null is not zero", "nothing == 0", false},
		{"list index", "items.0.price > items.1.price", true},
		{"short circuit skips undefined", "approved || missing.value > 1", true},
		{"number literal alone", "1", true},
		{"zero literal alone", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, Evaluate(tt.expression, vars), tt.expression)
		})
	}
}

func TestEvaluate_FailuresAreFalse(t *testing.T) {
	t.Parallel()

	vars := map[string]any{
		"orderValue": float64(500),
		"order":      map[string]any{"lines": "3"},
		"nothing":    nil,
	}

	expressions := []string{
		"",
		"   ",
		"missing > 10000",
		"missing.deeper > 1",
		"orderValue.nested > 1",
		"order > 1",
		"orderValue >",
		"(orderValue > 1",
		"orderValue > 1)",
		"orderValue = 1",
		"process.exit()",
		"orderValue > 1; true",
		"require('fs')",
		"'unterminated",
		"orderValue >> 1",
		"a..b > 1",
		"trailing. > 1",
		"constructor.name == 'Object'",
		"nothing >= 0",
		"nothing < 1",
		"null <= orderValue",
	}

	for _, expression := range expressions {
		t.Run(expression, func(t *testing.T) {
			t.Parallel()

			assert.False(t, Evaluate(expression, vars))
		})
	}
}

func TestCompile_ReportsReason(t *testing.T) {
	t.Parallel()

	_, err := Compile("a > ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyntax))

	expr, err := Compile("a.b > 1")
	require.NoError(t, err)
	assert.Equal(t, "a.b > 1", expr.String())

	_, err = expr.Eval(map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUndefined))
	assert.Contains(t, err.Error(), "a.b")

	_, err = expr.Eval(map[string]any{"a": map[string]any{"b": map[string]any{}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeMismatch))

	result, err := expr.Eval(map[string]any{"a": map[string]any{"b": float64(2)}})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEval_NullIsNotOrdered(t *testing.T) {
	t.Parallel()

	expr, err := Compile("nothing >= 0")
	require.NoError(t, err)

	result, err := expr.Eval(map[string]any{"nothing": nil})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	assert.False(t, result)
}

func TestCompile_Reusable(t *testing.T) {
	t.Parallel()

	expr, err := Compile("orderValue > 10000")
	require.NoError(t, err)

	high, err := expr.Eval(map[string]any{"orderValue": float64(15000)})
	require.NoError(t, err)
	assert.True(t, high)

	low, err := expr.Eval(map[string]any{"orderValue": float64(500)})
	require.NoError(t, err)
	assert.False(t, low)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	vars := map[string]any{
		"a":       map[string]any{"b": map[string]any{"c": "deep"}},
		"headers": map[string]string{"x": "y"},
		"list":    []any{"zero", "one"},
		"null":    nil,
	}

	value, ok := Lookup(vars, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, "deep", value)

	value, ok = Lookup(vars, "headers.x")
	assert.True(t, ok)
	assert.Equal(t, "y", value)

	value, ok = Lookup(vars, "list.1")
	assert.True(t, ok)
	assert.Equal(t, "one", value)

	value, ok = Lookup(vars, "null")
	assert.True(t, ok)
	assert.Nil(t, value)

	for _, path := range []string{"", "missing", "a.x", "a.b.c.d", "list.2", "list.-1", "list.x", "null.x"} {
		_, ok := Lookup(vars, path)
		assert.False(t, ok, path)
	}
}
