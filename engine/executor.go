// Package engine executes rules against trigger events. For every trigger
// the executor re-fetches the active rules and the record, evaluates each
// rule's conditions, dispatches actions for matches, and appends exactly one
// log entry per rule. A rule's log status reflects condition evaluation
// only: action failures are recorded in the log output but never change a
// matched rule's status. One misbehaving rule never stops the rest of the
// batch.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/ruleflow/condition"
	"github.com/c360/ruleflow/dispatch"
	"github.com/c360/ruleflow/errors"
	"github.com/c360/ruleflow/field"
	"github.com/c360/ruleflow/metric"
	"github.com/c360/ruleflow/pkg/retry"
	"github.com/c360/ruleflow/rule"
)

// RuleSource provides the rules to run for a trigger. Implementations must
// return fresh definitions on every call; the executor never caches rules
// across triggers.
type RuleSource interface {
	ActiveRules(ctx context.Context, tenantID, entityID string, kind rule.TriggerKind) ([]rule.Rule, error)
}

// RecordSource reads records for the pre-dispatch existence check
type RecordSource interface {
	GetRecord(ctx context.Context, tenantID, recordID string) (*rule.Record, error)
}

// LogStore appends execution logs. Logs are append-only.
type LogStore interface {
	AppendLog(ctx context.Context, entry *rule.Log) error
}

// ActionDispatcher runs a matched rule's actions
type ActionDispatcher interface {
	Dispatch(ctx context.Context, actions []rule.Action, evalCtx *rule.Context, simulate bool) dispatch.Summary
}

// Executor runs rules for trigger events and serves dry-run requests
type Executor struct {
	rules      RuleSource
	records    RecordSource
	logs       LogStore
	fields     field.Registry
	evaluator  *condition.Evaluator
	dispatcher ActionDispatcher
	logger     *slog.Logger
	metrics    *executorMetrics
	retryCfg   retry.Config
}

// NewExecutor creates a rule executor. registry may be nil to skip metric
// registration (tests).
func NewExecutor(
	rules RuleSource,
	records RecordSource,
	logs LogStore,
	fields field.Registry,
	dispatcher ActionDispatcher,
	registry *metric.Registry,
) (*Executor, error) {
	metrics, err := newExecutorMetrics(registry)
	if err != nil {
		return nil, errors.WrapFatal(err, "engine", "NewExecutor", "register metrics")
	}
	return &Executor{
		rules:      rules,
		records:    records,
		logs:       logs,
		fields:     fields,
		evaluator:  condition.NewEvaluator(),
		dispatcher: dispatcher,
		logger:     slog.Default().With("component", "rule-executor"),
		metrics:    metrics,
		retryCfg:   retry.DefaultConfig(),
	}, nil
}

// HandleTrigger runs every candidate rule for one trigger event. A returned
// error means the trigger could not be processed at all (schema or rule
// fetch failed) and should be redelivered; per-rule problems are absorbed
// into that rule's log entry.
func (e *Executor) HandleTrigger(ctx context.Context, event *rule.TriggerEvent) error {
	start := time.Now()

	if event.Record == nil || event.Record.ID == "" {
		e.metrics.observeTrigger("invalid", time.Since(start))
		return errors.WrapInvalid(fmt.Errorf("trigger has no record"), "engine", "HandleTrigger", "validate event")
	}
	tenant := ""
	if event.Tenant != nil {
		tenant = event.Tenant.ID
	}

	schema, err := e.fields.EntityFields(ctx, event.EntityID)
	if err != nil {
		e.metrics.observeTrigger("error", time.Since(start))
		return errors.WrapTransient(err, "engine", "HandleTrigger", "load entity schema")
	}

	candidates, err := e.rules.ActiveRules(ctx, tenant, event.EntityID, event.Kind)
	if err != nil {
		e.metrics.observeTrigger("error", time.Since(start))
		return errors.WrapTransient(err, "engine", "HandleTrigger", "load active rules")
	}
	if len(candidates) == 0 {
		e.metrics.observeTrigger("no_rules", time.Since(start))
		return nil
	}

	// The record may have been deleted between the trigger firing and this
	// task running. Re-fetch to check, and to evaluate against current
	// field values rather than the event snapshot.
	record, err := e.records.GetRecord(ctx, tenant, event.Record.ID)
	switch {
	case stderrors.Is(err, errors.ErrRecordNotFound):
		for i := range candidates {
			e.appendLog(ctx, e.skippedLog(&candidates[i], event, "record deleted"))
			e.metrics.observeRule(string(rule.StatusSkipped), 0)
		}
		e.metrics.observeTrigger("record_deleted", time.Since(start))
		return nil
	case err != nil:
		e.metrics.observeTrigger("error", time.Since(start))
		return errors.WrapTransient(err, "engine", "HandleTrigger", "load record")
	}

	for i := range candidates {
		entry := e.executeRule(ctx, &candidates[i], event, record, schema)
		e.appendLog(ctx, entry)
		e.metrics.observeRule(string(entry.Status), entry.Output.ActionsFailed)
	}

	e.metrics.observeTrigger("ok", time.Since(start))
	return nil
}

// executeRule evaluates one rule and dispatches its actions on a match.
// Panics are converted into a failed log entry so the batch continues.
func (e *Executor) executeRule(ctx context.Context, r *rule.Rule, event *rule.TriggerEvent, record *rule.Record, schema field.Schema) (entry *rule.Log) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("rule execution panicked", "rule_id", r.ID, "panic", rec)
			entry = e.newLog(r, event, rule.StatusFailed)
			entry.Output.Error = fmt.Sprintf("execution panic: %v", rec)
			entry.DurationMS = time.Since(start).Milliseconds()
		}
	}()

	result := e.evaluator.Evaluate(r.Conditions, record.Fields, schema)

	met := 0
	for _, d := range result.Details {
		if d.Matched {
			met++
		}
	}

	entry = e.newLog(r, event, rule.StatusSkipped)
	entry.Output.ConditionsMet = met
	entry.Output.TotalConditions = len(result.Details)
	entry.Output.Details = result.Details

	if !result.Matched {
		entry.Output.Reason = "conditions not met"
		entry.DurationMS = time.Since(start).Milliseconds()
		return entry
	}

	evalCtx := &rule.Context{
		Record: record,
		Entity: event.EntityContext(),
		Tenant: event.Tenant,
		User:   event.User,
		Rule:   r,
	}
	summary := e.dispatcher.Dispatch(ctx, r.Actions, evalCtx, false)

	// action failures never demote a matched rule
	entry.Status = rule.StatusMatched
	entry.Output.ActionsExecuted = summary.Executed
	entry.Output.ActionsFailed = summary.Failed
	entry.Output.ActionResults = summary.Results
	entry.DurationMS = time.Since(start).Milliseconds()
	return entry
}

// appendLog writes the entry, retrying transient store errors. A log that
// still cannot be written is reported and dropped rather than failing the
// trigger; the execution itself already happened.
func (e *Executor) appendLog(ctx context.Context, entry *rule.Log) {
	err := retry.Do(ctx, e.retryCfg, func() error {
		appendErr := e.logs.AppendLog(ctx, entry)
		if appendErr != nil && !errors.IsTransient(appendErr) {
			return retry.NonRetryable(appendErr)
		}
		return appendErr
	})
	if err != nil {
		e.logger.Error("failed to append rule log",
			"rule_id", entry.RuleID, "record_id", entry.RecordID, "error", err)
	}
}

func (e *Executor) newLog(r *rule.Rule, event *rule.TriggerEvent, status rule.LogStatus) *rule.Log {
	return &rule.Log{
		ID:        uuid.NewString(),
		TenantID:  r.TenantID,
		RuleID:    r.ID,
		RecordID:  event.Record.ID,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

func (e *Executor) skippedLog(r *rule.Rule, event *rule.TriggerEvent, reason string) *rule.Log {
	entry := e.newLog(r, event, rule.StatusSkipped)
	entry.Output.Reason = reason
	return entry
}
