package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ruleflow/errors"
	"github.com/c360/ruleflow/field"
	"github.com/c360/ruleflow/rule"
)

func TestActiveRulesFilteringAndOrder(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	rules := []rule.Rule{
		{ID: "r-old", TenantID: "t1", EntityID: "e1", IsActive: true, RunOn: rule.RunOnBoth, CreatedAt: base},
		{ID: "r-new", TenantID: "t1", EntityID: "e1", IsActive: true, RunOn: rule.RunOnBoth, CreatedAt: base.Add(time.Hour)},
		{ID: "r-inactive", TenantID: "t1", EntityID: "e1", IsActive: false, RunOn: rule.RunOnBoth, CreatedAt: base},
		{ID: "r-create-only", TenantID: "t1", EntityID: "e1", IsActive: true, RunOn: rule.RunOnCreate, CreatedAt: base},
		{ID: "r-other-entity", TenantID: "t1", EntityID: "e2", IsActive: true, RunOn: rule.RunOnBoth, CreatedAt: base},
		{ID: "r-other-tenant", TenantID: "t2", EntityID: "e1", IsActive: true, RunOn: rule.RunOnBoth, CreatedAt: base},
	}
	for i := range rules {
		require.NoError(t, s.SaveRule(ctx, &rules[i]))
	}

	got, err := s.ActiveRules(ctx, "t1", "e1", rule.TriggerUpdate)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r-old", got[0].ID)
	assert.Equal(t, "r-new", got[1].ID)

	got, err = s.ActiveRules(ctx, "t1", "e1", rule.TriggerCreate)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRecordLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.GetRecord(ctx, "t1", "missing")
	assert.ErrorIs(t, err, errors.ErrRecordNotFound)

	require.NoError(t, s.PutRecord(ctx, "t1", &rule.Record{
		ID:     "rec-1",
		Fields: map[string]any{"name": "Acme"},
	}))

	require.NoError(t, s.UpdateRecordField(ctx, "t1", "rec-1", "stage", "open"))

	rec, err := s.GetRecord(ctx, "t1", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", rec.Fields["name"])
	assert.Equal(t, "open", rec.Fields["stage"])
	require.NotNil(t, rec.UpdatedAt)

	// returned record is a copy
	rec.Fields["name"] = "mutated"
	again, err := s.GetRecord(ctx, "t1", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", again.Fields["name"])

	require.NoError(t, s.DeleteRecord(ctx, "t1", "rec-1"))
	_, err = s.GetRecord(ctx, "t1", "rec-1")
	assert.ErrorIs(t, err, errors.ErrRecordNotFound)
}

func TestSchemaRegistry(t *testing.T) {
	s := NewStore()
	s.PutSchema("e1", field.Schema{"name": field.TypeText})

	schema, err := s.EntityFields(context.Background(), "e1")
	require.NoError(t, err)
	ft, ok := schema.TypeOf("name")
	assert.True(t, ok)
	assert.Equal(t, field.TypeText, ft)

	_, err = s.EntityFields(context.Background(), "ghost")
	assert.ErrorIs(t, err, errors.ErrEntityNotFound)
}

func TestLogsAppendOnly(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendLog(ctx, &rule.Log{
			ID: string(rune('a' + i)), TenantID: "t1", RuleID: "r1", RecordID: "rec-1",
			Status: rule.StatusMatched,
		}))
	}
	require.NoError(t, s.AppendLog(ctx, &rule.Log{
		ID: "other", TenantID: "t1", RuleID: "r1", RecordID: "rec-2",
	}))

	logs, err := s.LogsByRecord(ctx, "t1", "rec-1")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "a", logs[0].ID)
	assert.Equal(t, "c", logs[2].ID)
}
