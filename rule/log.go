package rule

import "time"

// LogStatus is the overall outcome of one rule execution against one trigger
type LogStatus string

// Log statuses. Status reflects condition evaluation only: a rule whose
// conditions matched is "matched" even if every action failed.
const (
	StatusMatched LogStatus = "matched"
	StatusSkipped LogStatus = "skipped"
	StatusFailed  LogStatus = "failed"
)

// ConditionDetail records the evaluation of a single condition
type ConditionDetail struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Actual   any      `json:"actual,omitempty"`
	Matched  bool     `json:"matched"`
	Reason   string   `json:"reason,omitempty"`
}

// ActionResult records the outcome of a single dispatched action
type ActionResult struct {
	ActionType ActionType     `json:"action_type"`
	Success    bool           `json:"success"`
	DurationMS int64          `json:"duration_ms"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// LogOutput is the structured detail payload of a Log entry
type LogOutput struct {
	Reason          string            `json:"reason,omitempty"`
	Error           string            `json:"error,omitempty"`
	ConditionsMet   int               `json:"conditions_met"`
	TotalConditions int               `json:"total_conditions"`
	Details         []ConditionDetail `json:"details,omitempty"`
	ActionsExecuted int               `json:"actions_executed"`
	ActionsFailed   int               `json:"actions_failed"`
	ActionResults   []ActionResult    `json:"action_results,omitempty"`
}

// Log is the append-only audit record: exactly one per rule per trigger
type Log struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	RuleID     string    `json:"rule_id"`
	RecordID   string    `json:"record_id"`
	Status     LogStatus `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Output     LogOutput `json:"output"`
	CreatedAt  time.Time `json:"created_at"`
}
