package engine

import (
	"context"

	"github.com/c360/ruleflow/errors"
	"github.com/c360/ruleflow/rule"
)

// TestRequest is a dry-run: candidate conditions and actions evaluated
// against author-supplied sample field values.
type TestRequest struct {
	TenantID     string           `json:"tenant_id"`
	EntityID     string           `json:"entity_id"`
	Conditions   []rule.Condition `json:"conditions"`
	Actions      []rule.Action    `json:"actions"`
	SampleFields map[string]any   `json:"sample_fields"`
}

// TestResult reports what a live trigger with the sample fields would do
type TestResult struct {
	Matched             bool                   `json:"matched"`
	ConditionsMet       int                    `json:"conditions_met"`
	TotalConditions     int                    `json:"total_conditions"`
	Details             []rule.ConditionDetail `json:"details"`
	ActionsWouldExecute int                    `json:"actions_would_execute"`
	SimulatedResults    []rule.ActionResult    `json:"simulated_results,omitempty"`
}

// Test evaluates a candidate rule against sample data without writing a
// log, calling a webhook, or mutating any record. Actions are simulated
// only when the conditions match, mirroring live execution.
func (e *Executor) Test(ctx context.Context, req *TestRequest) (*TestResult, error) {
	schema, err := e.fields.EntityFields(ctx, req.EntityID)
	if err != nil {
		return nil, errors.Wrap(err, "engine", "Test", "load entity schema")
	}

	evalResult := e.evaluator.Evaluate(req.Conditions, req.SampleFields, schema)

	result := &TestResult{
		Matched:         evalResult.Matched,
		TotalConditions: len(evalResult.Details),
		Details:         evalResult.Details,
	}
	for _, d := range evalResult.Details {
		if d.Matched {
			result.ConditionsMet++
		}
	}

	if !evalResult.Matched {
		return result, nil
	}

	evalCtx := &rule.Context{
		Record: &rule.Record{ID: "dry-run", Fields: req.SampleFields},
		Entity: &rule.Entity{ID: req.EntityID},
		Tenant: &rule.Tenant{ID: req.TenantID},
	}
	summary := e.dispatcher.Dispatch(ctx, req.Actions, evalCtx, true)

	result.ActionsWouldExecute = summary.Executed
	result.SimulatedResults = summary.Results
	return result, nil
}
