package rule

import (
	"fmt"
	"strings"

	"github.com/c360/ruleflow/errors"
	"github.com/c360/ruleflow/field"
)

// CodeConditionInvalid is the stable machine-readable code carried by
// rule validation failures.
const CodeConditionInvalid = "RULE_CONDITION_INVALID"

// ValidationError aggregates every violation found in one rule. Validation
// never stops at the first problem so API callers can surface the full list.
type ValidationError struct {
	Code       string   `json:"code"`
	Violations []string `json:"violations"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, strings.Join(e.Violations, "; "))
}

// Unwrap lets errors.Is match the condition-invalid sentinel
func (e *ValidationError) Unwrap() error {
	return errors.ErrConditionInvalid
}

// ValidateRule checks a rule against the entity schema it targets. It
// applies action defaults first, then collects ALL violations into a single
// ValidationError. A nil return means the rule is well-formed.
func ValidateRule(r *Rule, schema field.Schema) error {
	var violations []string

	if r.Name == "" {
		violations = append(violations, "rule name must not be empty")
	}
	if !r.RunOn.Valid() {
		violations = append(violations, fmt.Sprintf("invalid run_on %q", r.RunOn))
	}
	if len(r.Conditions) == 0 {
		violations = append(violations, "rule must have at least one condition")
	}
	if len(r.Actions) == 0 {
		violations = append(violations, "rule must have at least one action")
	}

	for i, cond := range r.Conditions {
		if cond.Field == "" {
			violations = append(violations, fmt.Sprintf("condition %d: field must not be empty", i))
			continue
		}
		if !cond.Operator.Valid() {
			violations = append(violations, fmt.Sprintf("condition %d: unknown operator %q", i, cond.Operator))
			continue
		}
		ft, ok := schema.TypeOf(cond.Field)
		if !ok {
			violations = append(violations, fmt.Sprintf("condition %d: field %q does not exist on entity", i, cond.Field))
			continue
		}
		if !cond.Operator.CompatibleWith(ft) {
			violations = append(violations, fmt.Sprintf(
				"condition %d: operator %q is not compatible with field %q of type %q",
				i, cond.Operator, cond.Field, ft))
		}
		if !cond.Operator.NullCheck() && cond.Value == nil {
			violations = append(violations, fmt.Sprintf(
				"condition %d: operator %q requires a comparison value", i, cond.Operator))
		}
	}

	for i, action := range r.Actions {
		action.ApplyDefaults()
		if err := action.Validate(); err != nil {
			violations = append(violations, fmt.Sprintf("action %d: %v", i, err))
			continue
		}
		// field-mutating actions must target fields that exist
		switch action.Type {
		case ActionTag:
			if _, ok := schema.TypeOf(action.Tag.Field); !ok {
				violations = append(violations, fmt.Sprintf(
					"action %d: tag field %q does not exist on entity", i, action.Tag.Field))
			}
		case ActionRate:
			ft, ok := schema.TypeOf(action.Rate.Field)
			if !ok {
				violations = append(violations, fmt.Sprintf(
					"action %d: rate field %q does not exist on entity", i, action.Rate.Field))
			} else if ft != field.TypeRating {
				violations = append(violations, fmt.Sprintf(
					"action %d: rate field %q must be a rating field, got %q", i, action.Rate.Field, ft))
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Code: CodeConditionInvalid, Violations: violations}
}
