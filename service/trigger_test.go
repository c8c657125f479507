package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ruleflow/dispatch"
	"github.com/c360/ruleflow/engine"
	"github.com/c360/ruleflow/field"
	"github.com/c360/ruleflow/natsclient"
	"github.com/c360/ruleflow/rule"
	"github.com/c360/ruleflow/store/memory"
)

type nullSink struct{}

func (nullSink) Notify(context.Context, dispatch.Notification) error { return nil }

func newTestService(t *testing.T) (*TriggerService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.PutSchema("ent-1", field.Schema{
		"amount": field.TypeNumber,
		"stage":  field.TypeSelect,
	})

	dispatcher := dispatch.NewDispatcher(store, nullSink{})
	executor, err := engine.NewExecutor(store, store, store, store, dispatcher, nil)
	require.NoError(t, err)

	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	svc, err := NewTriggerService(client, executor, Config{Workers: 2, QueueSize: 4}, nil)
	require.NoError(t, err)
	return svc, store
}

func TestNewTriggerServiceValidation(t *testing.T) {
	client, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = NewTriggerService(nil, nil, Config{}, nil)
	assert.Error(t, err)

	_, err = NewTriggerService(client, nil, Config{}, nil)
	assert.Error(t, err)
}

func TestNewTriggerServiceAppliesDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Equal(t, 2, svc.cfg.Workers)
	assert.Equal(t, DefaultConfig().ConsumerName, svc.cfg.ConsumerName)
}

func TestTriggerKeyRoutesByRecord(t *testing.T) {
	event := &rule.TriggerEvent{Record: &rule.Record{ID: "rec-7"}}
	assert.Equal(t, "rec-7", triggerKey(event))
	assert.Equal(t, "", triggerKey(&rule.TriggerEvent{}))
}

func TestHandleTriggerMessageDropsPoison(t *testing.T) {
	svc, _ := newTestService(t)

	// malformed JSON and invalid events are acked (nil) and counted
	assert.NoError(t, svc.handleTriggerMessage(context.Background(), []byte("{not json")))

	missingRecord, _ := json.Marshal(rule.TriggerEvent{
		EntityID: "ent-1", Kind: rule.TriggerCreate,
	})
	assert.NoError(t, svc.handleTriggerMessage(context.Background(), missingRecord))

	badKind, _ := json.Marshal(map[string]any{
		"entity_id":    "ent-1",
		"trigger_kind": "archived",
		"record":       map[string]any{"id": "rec-1"},
	})
	assert.NoError(t, svc.handleTriggerMessage(context.Background(), badKind))

	health := svc.Health()
	assert.Equal(t, int64(3), health.Received)
	assert.Equal(t, int64(3), health.Dropped)
}

func TestHandleTriggerMessageBackpressure(t *testing.T) {
	svc, _ := newTestService(t)

	// pool not started: submit fails and the message is nak'd for redelivery
	event, _ := json.Marshal(rule.TriggerEvent{
		EntityID: "ent-1",
		Kind:     rule.TriggerCreate,
		Record:   &rule.Record{ID: "rec-1"},
	})
	assert.Error(t, svc.handleTriggerMessage(context.Background(), event))
}

func TestHandleDryRun(t *testing.T) {
	svc, _ := newTestService(t)

	req := engine.TestRequest{
		TenantID: "ten-1",
		EntityID: "ent-1",
		Conditions: []rule.Condition{
			{Field: "amount", Operator: rule.OpGt, Value: 100},
		},
		Actions: []rule.Action{
			{Type: rule.ActionNotify, Notify: &rule.NotifyConfig{Message: "m"}},
		},
		SampleFields: map[string]any{"amount": float64(500)},
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	resp := svc.handleDryRun(context.Background(), data)

	var result engine.TestResult
	require.NoError(t, json.Unmarshal(resp, &result))
	assert.True(t, result.Matched)
	assert.Equal(t, 1, result.ConditionsMet)
	assert.Equal(t, 1, result.ActionsWouldExecute)
}

func TestHandleDryRunMalformed(t *testing.T) {
	svc, _ := newTestService(t)

	resp := svc.handleDryRun(context.Background(), []byte("nope"))

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp, &out))
	assert.Contains(t, out["error"], "malformed request")
}

func TestHandleDryRunUnknownEntity(t *testing.T) {
	svc, _ := newTestService(t)

	data, _ := json.Marshal(engine.TestRequest{EntityID: "ghost"})
	resp := svc.handleDryRun(context.Background(), data)

	var out map[string]string
	require.NoError(t, json.Unmarshal(resp, &out))
	assert.NotEmpty(t, out["error"])
}
