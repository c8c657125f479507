package rule

import "github.com/c360/ruleflow/field"

// Operator is a condition comparison operator
type Operator string

// Condition operators
const (
	OpEq          Operator = "eq"
	OpNe          Operator = "ne"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpIsNull      Operator = "is_null"
	OpIsNotNull   Operator = "is_not_null"
)

// allOperators indexes every operator for validation
var allOperators = map[Operator]struct{}{
	OpEq: {}, OpNe: {},
	OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpContains: {}, OpNotContains: {}, OpStartsWith: {}, OpEndsWith: {},
	OpIn: {}, OpNotIn: {},
	OpIsNull: {}, OpIsNotNull: {},
}

// Valid reports whether op is a known operator
func (op Operator) Valid() bool {
	_, ok := allOperators[op]
	return ok
}

// Ordering reports whether op compares magnitudes (gt/gte/lt/lte)
func (op Operator) Ordering() bool {
	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		return true
	default:
		return false
	}
}

// Substring reports whether op operates on string content
func (op Operator) Substring() bool {
	switch op {
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		return true
	default:
		return false
	}
}

// Membership reports whether op tests list membership (in/not_in)
func (op Operator) Membership() bool {
	return op == OpIn || op == OpNotIn
}

// NullCheck reports whether op ignores the condition value (is_null/is_not_null)
func (op Operator) NullCheck() bool {
	return op == OpIsNull || op == OpIsNotNull
}

// CompatibleWith reports whether op may be applied to a field of type t.
// This is the authoring-time compatibility table; the condition evaluator
// additionally fails closed when an incompatible pair reaches it at runtime.
func (op Operator) CompatibleWith(t field.Type) bool {
	switch {
	case op == OpEq || op == OpNe || op.NullCheck():
		return true
	case op.Ordering():
		return t.Numeric()
	case op.Substring():
		return t.TextLike()
	case op.Membership():
		return t == field.TypeText || t == field.TypeNumber ||
			t == field.TypeSelect || t == field.TypeMultiSelect
	default:
		return false
	}
}
