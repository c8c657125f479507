package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ruleflow/dispatch"
	rferrors "github.com/c360/ruleflow/errors"
	"github.com/c360/ruleflow/field"
	"github.com/c360/ruleflow/rule"
)

type fakeRuleSource struct {
	rules []rule.Rule
	err   error
	calls int
}

func (s *fakeRuleSource) ActiveRules(_ context.Context, _, entityID string, kind rule.TriggerKind) ([]rule.Rule, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]rule.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.EntityID == entityID && r.IsActive && r.RunOn.Matches(kind) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeRecordSource struct {
	records map[string]*rule.Record
	err     error
}

func (s *fakeRecordSource) GetRecord(_ context.Context, _, recordID string) (*rule.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[recordID]
	if !ok {
		return nil, rferrors.ErrRecordNotFound
	}
	return rec, nil
}

type fakeLogStore struct {
	mu      sync.Mutex
	entries []*rule.Log
	failN   int
}

func (s *fakeLogStore) AppendLog(_ context.Context, entry *rule.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return rferrors.ErrStorageUnavailable
	}
	s.entries = append(s.entries, entry)
	return nil
}

type fakeFieldRegistry struct {
	schema field.Schema
	err    error
}

func (r *fakeFieldRegistry) EntityFields(_ context.Context, _ string) (field.Schema, error) {
	return r.schema, r.err
}

type fakeDispatcher struct {
	mu       sync.Mutex
	calls    []dispatchCall
	failEach int
}

type dispatchCall struct {
	ruleID   string
	actions  int
	simulate bool
}

func (d *fakeDispatcher) Dispatch(_ context.Context, actions []rule.Action, evalCtx *rule.Context, simulate bool) dispatch.Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{ruleID: ruleIDOf(evalCtx), actions: len(actions), simulate: simulate})

	summary := dispatch.Summary{Executed: len(actions), Failed: d.failEach}
	for _, a := range actions {
		summary.Results = append(summary.Results, rule.ActionResult{ActionType: a.Type, Success: true})
	}
	for i := 0; i < d.failEach && i < len(summary.Results); i++ {
		summary.Results[i].Success = false
		summary.Results[i].Error = "boom"
	}
	return summary
}

func ruleIDOf(evalCtx *rule.Context) string {
	if evalCtx.Rule != nil {
		return evalCtx.Rule.ID
	}
	return ""
}

func testRule(id string, created time.Time, conds []rule.Condition) rule.Rule {
	return rule.Rule{
		ID:         id,
		TenantID:   "ten-1",
		EntityID:   "ent-1",
		Name:       "rule " + id,
		IsActive:   true,
		RunOn:      rule.RunOnBoth,
		Conditions: conds,
		Actions: []rule.Action{
			{Type: rule.ActionNotify, Notify: &rule.NotifyConfig{Message: "m"}},
		},
		CreatedAt: created,
	}
}

func testEvent() *rule.TriggerEvent {
	return &rule.TriggerEvent{
		EntityID: "ent-1",
		Kind:     rule.TriggerUpdate,
		Record:   &rule.Record{ID: "rec-1", Fields: map[string]any{"amount": float64(500)}},
		Tenant:   &rule.Tenant{ID: "ten-1"},
	}
}

func newTestExecutor(t *testing.T, rules *fakeRuleSource, records *fakeRecordSource, logs *fakeLogStore, disp ActionDispatcher) *Executor {
	t.Helper()
	registry := &fakeFieldRegistry{schema: field.Schema{
		"amount": field.TypeNumber,
		"stage":  field.TypeSelect,
	}}
	e, err := NewExecutor(rules, records, logs, registry, disp, nil)
	require.NoError(t, err)
	return e
}

func TestHandleTriggerMatchedAndSkipped(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rules := &fakeRuleSource{rules: []rule.Rule{
		testRule("r1", base, []rule.Condition{{Field: "amount", Operator: rule.OpGt, Value: 100}}),
		testRule("r2", base.Add(time.Hour), []rule.Condition{{Field: "amount", Operator: rule.OpGt, Value: 1000}}),
	}}
	records := &fakeRecordSource{records: map[string]*rule.Record{
		"rec-1": {ID: "rec-1", Fields: map[string]any{"amount": float64(500)}},
	}}
	logs := &fakeLogStore{}
	disp := &fakeDispatcher{}
	e := newTestExecutor(t, rules, records, logs, disp)

	require.NoError(t, e.HandleTrigger(context.Background(), testEvent()))

	// exactly one log per rule
	require.Len(t, logs.entries, 2)
	byRule := map[string]*rule.Log{}
	for _, entry := range logs.entries {
		byRule[entry.RuleID] = entry
	}

	assert.Equal(t, rule.StatusMatched, byRule["r1"].Status)
	assert.Equal(t, 1, byRule["r1"].Output.ConditionsMet)
	assert.Equal(t, 1, byRule["r1"].Output.ActionsExecuted)

	assert.Equal(t, rule.StatusSkipped, byRule["r2"].Status)
	assert.Equal(t, "conditions not met", byRule["r2"].Output.Reason)
	assert.Equal(t, 0, byRule["r2"].Output.ActionsExecuted)

	// only the matched rule dispatched, live not simulated
	require.Len(t, disp.calls, 1)
	assert.Equal(t, "r1", disp.calls[0].ruleID)
	assert.False(t, disp.calls[0].simulate)
}

func TestHandleTriggerActionFailuresKeepMatchedStatus(t *testing.T) {
	rules := &fakeRuleSource{rules: []rule.Rule{
		testRule("r1", time.Now(), []rule.Condition{{Field: "amount", Operator: rule.OpGt, Value: 100}}),
	}}
	records := &fakeRecordSource{records: map[string]*rule.Record{
		"rec-1": {ID: "rec-1", Fields: map[string]any{"amount": float64(500)}},
	}}
	logs := &fakeLogStore{}
	e := newTestExecutor(t, rules, records, logs, &fakeDispatcher{failEach: 1})

	require.NoError(t, e.HandleTrigger(context.Background(), testEvent()))

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	assert.Equal(t, rule.StatusMatched, entry.Status)
	assert.Equal(t, 1, entry.Output.ActionsExecuted)
	assert.Equal(t, 1, entry.Output.ActionsFailed)
}

type captureSink struct {
	mu    sync.Mutex
	notes []dispatch.Notification
}

func (s *captureSink) Notify(_ context.Context, n dispatch.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	return nil
}

type noopRecordStore struct{}

func (noopRecordStore) UpdateRecordField(context.Context, string, string, string, any) error {
	return nil
}

func TestHandleTriggerResolvesEntityPlaceholders(t *testing.T) {
	r := testRule("r1", time.Now(), []rule.Condition{{Field: "amount", Operator: rule.OpGt, Value: 100}})
	r.Actions = []rule.Action{
		{Type: rule.ActionNotify, Notify: &rule.NotifyConfig{
			Message:  "matched on {{entity.name}} ({{entity.id}})",
			Channels: []string{rule.ChannelUI},
		}},
	}
	rules := &fakeRuleSource{rules: []rule.Rule{r}}
	records := &fakeRecordSource{records: map[string]*rule.Record{
		"rec-1": {ID: "rec-1", Fields: map[string]any{"amount": float64(500)}},
	}}
	sink := &captureSink{}
	e := newTestExecutor(t, rules, records, &fakeLogStore{}, dispatch.NewDispatcher(noopRecordStore{}, sink))

	event := testEvent()
	event.Entity = &rule.Entity{ID: "ent-1", Name: "Deals", Slug: "deals"}
	require.NoError(t, e.HandleTrigger(context.Background(), event))

	require.Len(t, sink.notes, 1)
	assert.Equal(t, "matched on Deals (ent-1)", sink.notes[0].Message)

	// A trigger that carries only the entity id still resolves {{entity.id}}
	sink.notes = nil
	require.NoError(t, e.HandleTrigger(context.Background(), testEvent()))
	require.Len(t, sink.notes, 1)
	assert.Equal(t, "matched on {{entity.name}} (ent-1)", sink.notes[0].Message)
}

func TestHandleTriggerRecordDeleted(t *testing.T) {
	rules := &fakeRuleSource{rules: []rule.Rule{
		testRule("r1", time.Now(), []rule.Condition{{Field: "amount", Operator: rule.OpGt, Value: 100}}),
		testRule("r2", time.Now(), []rule.Condition{{Field: "amount", Operator: rule.OpLt, Value: 100}}),
	}}
	records := &fakeRecordSource{records: map[string]*rule.Record{}}
	logs := &fakeLogStore{}
	disp := &fakeDispatcher{}
	e := newTestExecutor(t, rules, records, logs, disp)

	require.NoError(t, e.HandleTrigger(context.Background(), testEvent()))

	require.Len(t, logs.entries, 2)
	for _, entry := range logs.entries {
		assert.Equal(t, rule.StatusSkipped, entry.Status)
		assert.Equal(t, "record deleted", entry.Output.Reason)
	}
	assert.Empty(t, disp.calls)
}

func TestHandleTriggerEvaluatesCurrentFieldValues(t *testing.T) {
	// event snapshot says 50 but the stored record says 500: the stored
	// value wins
	rules := &fakeRuleSource{rules: []rule.Rule{
		testRule("r1", time.Now(), []rule.Condition{{Field: "amount", Operator: rule.OpGt, Value: 100}}),
	}}
	records := &fakeRecordSource{records: map[string]*rule.Record{
		"rec-1": {ID: "rec-1", Fields: map[string]any{"amount": float64(500)}},
	}}
	logs := &fakeLogStore{}
	e := newTestExecutor(t, rules, records, logs, &fakeDispatcher{})

	event := testEvent()
	event.Record.Fields["amount"] = float64(50)
	require.NoError(t, e.HandleTrigger(context.Background(), event))

	require.Len(t, logs.entries, 1)
	assert.Equal(t, rule.StatusMatched, logs.entries[0].Status)
}

func TestHandleTriggerRuleFetchErrorIsTransient(t *testing.T) {
	rules := &fakeRuleSource{err: errors.New("db down")}
	e := newTestExecutor(t, rules, &fakeRecordSource{}, &fakeLogStore{}, &fakeDispatcher{})

	err := e.HandleTrigger(context.Background(), testEvent())
	require.Error(t, err)
	assert.True(t, rferrors.IsTransient(err))
}

func TestHandleTriggerRulesRefetchedPerTrigger(t *testing.T) {
	rules := &fakeRuleSource{rules: []rule.Rule{
		testRule("r1", time.Now(), []rule.Condition{{Field: "amount", Operator: rule.OpGt, Value: 100}}),
	}}
	records := &fakeRecordSource{records: map[string]*rule.Record{
		"rec-1": {ID: "rec-1", Fields: map[string]any{"amount": float64(500)}},
	}}
	e := newTestExecutor(t, rules, records, &fakeLogStore{}, &fakeDispatcher{})

	require.NoError(t, e.HandleTrigger(context.Background(), testEvent()))
	require.NoError(t, e.HandleTrigger(context.Background(), testEvent()))
	assert.Equal(t, 2, rules.calls)
}

func TestHandleTriggerLogAppendRetriesTransient(t *testing.T) {
	rules := &fakeRuleSource{rules: []rule.Rule{
		testRule("r1", time.Now(), []rule.Condition{{Field: "amount", Operator: rule.OpGt, Value: 100}}),
	}}
	records := &fakeRecordSource{records: map[string]*rule.Record{
		"rec-1": {ID: "rec-1", Fields: map[string]any{"amount": float64(500)}},
	}}
	logs := &fakeLogStore{failN: 2}
	e := newTestExecutor(t, rules, records, logs, &fakeDispatcher{})
	e.retryCfg.InitialDelay = time.Millisecond
	e.retryCfg.MaxDelay = 2 * time.Millisecond

	require.NoError(t, e.HandleTrigger(context.Background(), testEvent()))
	require.Len(t, logs.entries, 1)
}

func TestExecutorTestDryRun(t *testing.T) {
	disp := &fakeDispatcher{}
	e := newTestExecutor(t, &fakeRuleSource{}, &fakeRecordSource{}, &fakeLogStore{}, disp)

	req := &TestRequest{
		TenantID: "ten-1",
		EntityID: "ent-1",
		Conditions: []rule.Condition{
			{Field: "amount", Operator: rule.OpGt, Value: 100},
			{Field: "stage", Operator: rule.OpEq, Value: "open"},
		},
		Actions: []rule.Action{
			{Type: rule.ActionNotify, Notify: &rule.NotifyConfig{Message: "m"}},
			{Type: rule.ActionTag, Tag: &rule.TagConfig{Field: "stage", Value: "hot"}},
		},
		SampleFields: map[string]any{"amount": float64(500), "stage": "open"},
	}

	result, err := e.Test(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.Equal(t, 2, result.ConditionsMet)
	assert.Equal(t, 2, result.TotalConditions)
	assert.Equal(t, 2, result.ActionsWouldExecute)
	require.Len(t, disp.calls, 1)
	assert.True(t, disp.calls[0].simulate)
}

func TestExecutorTestNoMatchSkipsSimulation(t *testing.T) {
	disp := &fakeDispatcher{}
	e := newTestExecutor(t, &fakeRuleSource{}, &fakeRecordSource{}, &fakeLogStore{}, disp)

	req := &TestRequest{
		EntityID:     "ent-1",
		Conditions:   []rule.Condition{{Field: "amount", Operator: rule.OpGt, Value: 1000}},
		Actions:      []rule.Action{{Type: rule.ActionNotify, Notify: &rule.NotifyConfig{Message: "m"}}},
		SampleFields: map[string]any{"amount": float64(10)},
	}

	result, err := e.Test(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.Equal(t, 0, result.ActionsWouldExecute)
	assert.Empty(t, disp.calls)
	assert.Empty(t, result.SimulatedResults)
	require.Len(t, result.Details, 1)
	assert.NotEmpty(t, result.Details[0].Reason)
}
