package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/ruleflow/errors"
	"github.com/c360/ruleflow/field"
	"github.com/c360/ruleflow/natsclient"
	"github.com/c360/ruleflow/rule"
)

// RuleWriter persists rule definitions
type RuleWriter interface {
	SaveRule(ctx context.Context, r *rule.Rule) error
	DeleteRule(ctx context.Context, id string) error
	GetRule(ctx context.Context, id string) (*rule.Rule, error)
}

// RuleAdvisory announces a rule change on rules.changed.{tenant}. The
// executor re-fetches rules on every trigger, so these events are advisory
// only; dashboards and caches subscribe to them.
type RuleAdvisory struct {
	TenantID  string    `json:"tenant_id"`
	RuleID    string    `json:"rule_id"`
	Op        string    `json:"op"`
	ChangedAt time.Time `json:"changed_at"`
}

// Rule change operations
const (
	RuleOpSaved   = "saved"
	RuleOpDeleted = "deleted"
)

// RuleAdmin validates and persists rule definitions and announces changes
type RuleAdmin struct {
	store  RuleWriter
	fields field.Registry
	client *natsclient.Client
	logger *slog.Logger
}

// NewRuleAdmin creates a rule admin surface. client may be nil to skip
// change advisories (validate-only tooling).
func NewRuleAdmin(store RuleWriter, fields field.Registry, client *natsclient.Client) *RuleAdmin {
	return &RuleAdmin{
		store:  store,
		fields: fields,
		client: client,
		logger: slog.Default().With("component", "rule-admin"),
	}
}

// SaveRule validates a rule against its entity's schema, persists it, and
// publishes a change advisory. Validation failures carry every violation.
func (a *RuleAdmin) SaveRule(ctx context.Context, r *rule.Rule) error {
	schema, err := a.fields.EntityFields(ctx, r.EntityID)
	if err != nil {
		return errors.Wrap(err, "service", "SaveRule", "load entity schema")
	}
	if err := rule.ValidateRule(r, schema); err != nil {
		return err
	}
	if err := a.store.SaveRule(ctx, r); err != nil {
		return errors.Wrap(err, "service", "SaveRule", "persist rule")
	}

	a.publishAdvisory(ctx, r.TenantID, r.ID, RuleOpSaved)
	return nil
}

// DeleteRule removes a rule and publishes a change advisory
func (a *RuleAdmin) DeleteRule(ctx context.Context, id string) error {
	r, err := a.store.GetRule(ctx, id)
	if err != nil {
		return errors.Wrap(err, "service", "DeleteRule", "load rule")
	}
	if err := a.store.DeleteRule(ctx, id); err != nil {
		return errors.Wrap(err, "service", "DeleteRule", "delete rule")
	}

	a.publishAdvisory(ctx, r.TenantID, id, RuleOpDeleted)
	return nil
}

// publishAdvisory is best-effort: a failed publish is logged, not returned,
// since consumers re-fetch rules anyway.
func (a *RuleAdmin) publishAdvisory(ctx context.Context, tenantID, ruleID, op string) {
	if a.client == nil {
		return
	}
	advisory := RuleAdvisory{
		TenantID:  tenantID,
		RuleID:    ruleID,
		Op:        op,
		ChangedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(advisory)
	if err != nil {
		a.logger.Error("failed to encode rule advisory", "rule_id", ruleID, "error", err)
		return
	}
	subject := fmt.Sprintf("%s.%s", RulesChangedPrefix, tenantID)
	if err := a.client.Publish(ctx, subject, data); err != nil {
		a.logger.Warn("failed to publish rule advisory",
			"subject", subject, "rule_id", ruleID, "error", err)
	}
}
