/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cfg

import (
	"math"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
)

// parseValue classifies a raw value, in priority order:
//  1. a quoted string is stripped of its quotes and kept as a string.
//  2. an arithmetic expression, evaluated with govaluate and accepted only
//     if it consumes the whole string and produces a finite number.
//  3. a strtol-style integer.
//  4. a float.
//  5. otherwise a plain string.
func parseValue(section, key, value string) (*entry, error) {
	e := &entry{section: section, key: key, raw: value}

	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 && trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"' {
		e.raw = trimmed[1 : len(trimmed)-1]
		e.kind = KindString
		return e, nil
	}

	if dv, ok := evaluateExpression(trimmed); ok {
		e.dval = dv
		e.isExpr = true
		e.kind = KindDouble
		return e, nil
	}

	if iv, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		e.ival = iv
		e.kind = KindInteger
		return e, nil
	}

	if dv, err := strconv.ParseFloat(trimmed, 64); err == nil {
		e.dval = dv
		e.kind = KindDouble
		return e, nil
	}

	e.kind = KindString
	return e, nil
}

// exprTokenAllowed restricts expressions to decimal literals, the four
// arithmetic operators, parentheses, unary minus, and whitespace.
// govaluate's own grammar is broader (variables, comparisons, string
// literals, ternaries); any of those must fail classification rather
// than evaluate.
func exprTokenAllowed(s string) bool {
	hasDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == '.' || r == '+' || r == '-' || r == '*' || r == '/' ||
			r == '(' || r == ')' || r == ' ' || r == '\t':
		default:
			return false
		}
	}
	return hasDigit
}

// evaluateExpression attempts to parse and evaluate s as an arithmetic
// expression. It returns ok=false if s contains any character outside
// the grammar, fails to parse, or does not evaluate to a finite
// float64. A plain numeric literal is not an expression; classifying it
// as Integer keeps 64-bit values exact instead of rounding them through
// a float64 evaluation result.
func evaluateExpression(s string) (float64, bool) {
	if s == "" || !exprTokenAllowed(s) {
		return 0, false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return 0, false
	}

	expr, err := govaluate.NewEvaluableExpression(s)
	if err != nil {
		return 0, false
	}

	result, err := expr.Evaluate(nil)
	if err != nil {
		return 0, false
	}

	f, ok := result.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
