// Package condition evaluates a rule's condition list against a record's
// field values. Semantics are flat AND: the overall result matches only when
// every condition matches. Evaluation is defensive throughout: an operator
// that is incompatible with the field's declared type, an unparseable
// numeric, or an unexpected value shape all make that condition false with a
// recorded reason. The evaluator never returns an error and never lets a
// panic escape.
package condition

import (
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/c360/ruleflow/field"
	"github.com/c360/ruleflow/rule"
)

// Result is the outcome of evaluating one rule's condition list
type Result struct {
	Matched bool
	Details []rule.ConditionDetail
}

// Evaluator evaluates condition lists against record field values
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates a condition evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{
		logger: slog.Default().With("component", "condition-evaluator"),
	}
}

// Evaluate checks every condition against the record's fields. All
// conditions are evaluated even after the first miss so the details list is
// complete for logging and dry-run output.
func (e *Evaluator) Evaluate(conds []rule.Condition, fields map[string]any, schema field.Schema) Result {
	result := Result{
		Matched: true,
		Details: make([]rule.ConditionDetail, 0, len(conds)),
	}

	for _, cond := range conds {
		matched, reason := e.evalCondition(cond, fields, schema)
		if !matched {
			result.Matched = false
		}
		result.Details = append(result.Details, rule.ConditionDetail{
			Field:    cond.Field,
			Operator: cond.Operator,
			Value:    cond.Value,
			Actual:   fields[cond.Field],
			Matched:  matched,
			Reason:   reason,
		})
	}

	return result
}

// evalCondition evaluates one condition, fail-closed on anything unexpected
func (e *Evaluator) evalCondition(cond rule.Condition, fields map[string]any, schema field.Schema) (matched bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("condition evaluation panicked",
				"field", cond.Field, "operator", cond.Operator, "panic", r)
			matched = false
			reason = fmt.Sprintf("evaluation panic: %v", r)
		}
	}()

	if !cond.Operator.Valid() {
		return false, fmt.Sprintf("unknown operator %q", cond.Operator)
	}

	ftype, ok := schema.TypeOf(cond.Field)
	if !ok {
		return false, fmt.Sprintf("field %q not defined on entity", cond.Field)
	}
	if !cond.Operator.CompatibleWith(ftype) {
		return false, fmt.Sprintf("operator %q not compatible with field type %q", cond.Operator, ftype)
	}

	actual := fields[cond.Field]

	switch cond.Operator {
	case rule.OpIsNull:
		if field.IsNullValue(actual) {
			return true, ""
		}
		return false, "field has a value"
	case rule.OpIsNotNull:
		if !field.IsNullValue(actual) {
			return true, ""
		}
		return false, "field is null"

	case rule.OpEq:
		return evalEquality(actual, cond.Value, ftype)
	case rule.OpNe:
		eq, _ := evalEquality(actual, cond.Value, ftype)
		if eq {
			return false, "values are equal"
		}
		return true, ""

	case rule.OpGt, rule.OpGte, rule.OpLt, rule.OpLte:
		return evalOrdering(cond.Operator, actual, cond.Value)

	case rule.OpContains, rule.OpNotContains, rule.OpStartsWith, rule.OpEndsWith:
		return evalSubstring(cond.Operator, actual, cond.Value)

	case rule.OpIn, rule.OpNotIn:
		return evalMembership(cond.Operator, actual, cond.Value, ftype)
	}

	return false, fmt.Sprintf("unhandled operator %q", cond.Operator)
}

// evalEquality compares per declared type: numbers numerically, booleans as
// booleans, arrays as exact sets, everything else as strings. A null actual
// only equals a null expected.
func evalEquality(actual, expected any, ftype field.Type) (bool, string) {
	if field.IsNullValue(actual) || field.IsNullValue(expected) {
		if field.IsNullValue(actual) && field.IsNullValue(expected) {
			return true, ""
		}
		return false, "field is null"
	}

	switch {
	case ftype.Numeric():
		a, aok := field.AsNumber(actual)
		b, bok := field.AsNumber(expected)
		if !aok || !bok {
			return false, "value is not a number"
		}
		if a == b {
			return true, ""
		}
		return false, "values differ"
	case ftype == field.TypeBoolean:
		a, aok := asBool(actual)
		b, bok := asBool(expected)
		if !aok || !bok {
			return false, "value is not a boolean"
		}
		if a == b {
			return true, ""
		}
		return false, "values differ"
	case ftype == field.TypeMultiSelect:
		a, aok := field.AsStringSlice(actual)
		b, bok := field.AsStringSlice(expected)
		if !aok || !bok {
			return false, "value is not a list"
		}
		if sameSet(a, b) {
			return true, ""
		}
		return false, "values differ"
	case ftype == field.TypeJSON:
		if reflect.DeepEqual(actual, expected) {
			return true, ""
		}
		return false, "values differ"
	default:
		a, aok := field.AsString(actual)
		b, bok := field.AsString(expected)
		if !aok || !bok {
			return false, "value is not text"
		}
		if a == b {
			return true, ""
		}
		return false, "values differ"
	}
}

func evalOrdering(op rule.Operator, actual, expected any) (bool, string) {
	if field.IsNullValue(actual) {
		return false, "field is null"
	}
	a, ok := field.AsNumber(actual)
	if !ok {
		return false, "field value is not a number"
	}
	b, ok := field.AsNumber(expected)
	if !ok {
		return false, "comparison value is not a number"
	}

	var matched bool
	switch op {
	case rule.OpGt:
		matched = a > b
	case rule.OpGte:
		matched = a >= b
	case rule.OpLt:
		matched = a < b
	case rule.OpLte:
		matched = a <= b
	}
	if matched {
		return true, ""
	}
	return false, fmt.Sprintf("%v %s %v is false", a, op, b)
}

// evalSubstring does case-insensitive substring and prefix/suffix checks
func evalSubstring(op rule.Operator, actual, expected any) (bool, string) {
	if field.IsNullValue(actual) {
		return false, "field is null"
	}
	rawHaystack, hok := field.AsString(actual)
	rawNeedle, nok := field.AsString(expected)
	if !hok || !nok {
		return false, "value is not text"
	}
	haystack := strings.ToLower(rawHaystack)
	needle := strings.ToLower(rawNeedle)

	var matched bool
	switch op {
	case rule.OpContains:
		matched = strings.Contains(haystack, needle)
	case rule.OpNotContains:
		matched = !strings.Contains(haystack, needle)
	case rule.OpStartsWith:
		matched = strings.HasPrefix(haystack, needle)
	case rule.OpEndsWith:
		matched = strings.HasSuffix(haystack, needle)
	}
	if matched {
		return true, ""
	}
	return false, fmt.Sprintf("%s check failed", op)
}

// evalMembership handles in/not_in. Scalar fields test membership of the
// field value in the condition list; multiselect fields test overlap between
// the two sets: in matches on any shared element, not_in on none.
func evalMembership(op rule.Operator, actual, expected any, ftype field.Type) (bool, string) {
	candidates, ok := field.AsStringSlice(expected)
	if !ok || len(candidates) == 0 {
		return false, "comparison value is not a list"
	}
	canonSet := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		canonSet[canon(c)] = struct{}{}
	}

	var overlap bool
	if ftype == field.TypeMultiSelect {
		values, _ := field.AsStringSlice(actual)
		for _, v := range values {
			if _, ok := canonSet[canon(v)]; ok {
				overlap = true
				break
			}
		}
	} else if !field.IsNullValue(actual) {
		// a null scalar is a member of nothing
		s, sok := field.AsString(actual)
		if !sok {
			return false, "field value is not comparable"
		}
		_, overlap = canonSet[canon(s)]
	}

	if op == rule.OpIn {
		if overlap {
			return true, ""
		}
		return false, "no matching element"
	}
	if overlap {
		return false, "matching element present"
	}
	return true, ""
}

// canon normalizes a value for membership comparison so "5" and 5 agree
func canon(s string) string {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			return false
		}
	}
	return true
}

func asBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(val)
		return b, err == nil
	default:
		return false, false
	}
}
