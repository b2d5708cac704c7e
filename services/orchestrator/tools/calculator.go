// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
)

// ErrInvalidExpression is returned for malformed arithmetic input and for
// division by zero.
var ErrInvalidExpression = errors.New("invalid expression")

// expressionPattern allow-lists digits, the four operators, parentheses,
// decimal points and spaces. Anything else (identifiers in particular) is
// rejected before evaluation.
var expressionPattern = regexp.MustCompile(`^[0-9+\-*/(). ]+$`)

// CalculatorResult pairs the input expression with its numeric result.
type CalculatorResult struct {
	Expression string `json:"expression"`
	Result     any    `json:"result"`
}

// CalculatorTool evaluates arithmetic expressions with + - * / ( ) and
// standard precedence.
type CalculatorTool struct{}

// NewCalculatorTool creates the built-in calculator tool.
func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

func (c *CalculatorTool) Describe() Descriptor {
	return Descriptor{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression with + - * / and parentheses",
		Parameters: map[string]ParamSpec{
			"expression": {
				Type:        "string",
				Required:    true,
				Description: "Expression to evaluate, e.g. 2+3*4 or (15+7)*3",
			},
		},
	}
}

func (c *CalculatorTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	raw, _ := args["expression"].(string)
	value, err := Evaluate(raw)
	if err != nil {
		return nil, err
	}
	return CalculatorResult{Expression: raw, Result: value}, nil
}

// Evaluate parses and computes an arithmetic expression.
//
// Fails with ErrInvalidExpression on malformed input, on any non-numeric
// result, and on division by zero (govaluate yields Inf for float division
// by zero rather than an error, so the result is checked explicitly).
func Evaluate(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	if !expressionPattern.MatchString(trimmed) {
		return nil, fmt.Errorf("%w: unsupported characters in %q", ErrInvalidExpression, raw)
	}

	expr, err := govaluate.NewEvaluableExpression(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	value, err := expr.Evaluate(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	result, ok := value.(float64)
	if !ok {
		return nil, fmt.Errorf("%w: non-numeric result", ErrInvalidExpression)
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return nil, fmt.Errorf("%w: division by zero", ErrInvalidExpression)
	}

	// Present whole numbers as integers so "2+2" reads as 4, not 4.0.
	if result == math.Trunc(result) && math.Abs(result) < 1e15 {
		return int64(result), nil
	}
	return result, nil
}
