// Package condition evaluates gateway conditions written by tenants.
//
// Conditions are parsed by a small grammar instead of being executed as code.
// Supported operands are dotted variable paths, numbers, quoted strings,
// true, false and null. Supported operators are the comparisons
// > < >= <= == != === !==, the logical && || !, unary minus and parentheses.
package condition

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax indicates the expression does not follow the grammar.
	ErrSyntax = errors.New("syntax error")

	// ErrUndefined indicates a variable path did not resolve.
	ErrUndefined = errors.New("undefined variable")

	// ErrTypeMismatch indicates operands that cannot be compared.
	ErrTypeMismatch = errors.New("type mismatch")
)

// Expression is a compiled condition.
type Expression struct {
	source string
	root   node
}

// Compile parses an expression once so it can be evaluated repeatedly.
func Compile(expression string) (*Expression, error) {
	root, err := parse(expression)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}

	return &Expression{source: expression, root: root}, nil
}

// Eval evaluates the expression and reports why evaluation failed, if it did.
func (e *Expression) Eval(vars map[string]any) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = false, fmt.Errorf("evaluate %q: %v", e.source, r)
		}
	}()

	value, err := e.root.eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", e.source, err)
	}

	return truthy(value), nil
}

func (e *Expression) String() string {
	return e.source
}

// Evaluate compiles and evaluates an expression in one call. Any failure
// yields false.
func Evaluate(expression string, vars map[string]any) bool {
	compiled, err := Compile(expression)
	if err != nil {
		return false
	}

	result, err := compiled.Eval(vars)
	if err != nil {
		return false
	}

	return result
}
