// Package rule defines the automation rule data model: rules, conditions,
// the action union, execution logs, and authoring-time validation.
package rule

import (
	"time"
)

// TriggerKind is the record event kind that caused a rule evaluation
type TriggerKind string

// Trigger kinds
const (
	TriggerCreate TriggerKind = "create"
	TriggerUpdate TriggerKind = "update"
)

// Valid reports whether k is a known trigger kind
func (k TriggerKind) Valid() bool {
	return k == TriggerCreate || k == TriggerUpdate
}

// RunOn restricts which trigger kinds a rule evaluates on
type RunOn string

// RunOn values
const (
	RunOnCreate RunOn = "create"
	RunOnUpdate RunOn = "update"
	RunOnBoth   RunOn = "both"
)

// Valid reports whether r is a known run_on value
func (r RunOn) Valid() bool {
	return r == RunOnCreate || r == RunOnUpdate || r == RunOnBoth
}

// Matches reports whether a rule with this run_on evaluates for kind
func (r RunOn) Matches(kind TriggerKind) bool {
	switch r {
	case RunOnBoth:
		return true
	case RunOnCreate:
		return kind == TriggerCreate
	case RunOnUpdate:
		return kind == TriggerUpdate
	default:
		return false
	}
}

// Condition is a single field/operator/value predicate. All conditions on a
// rule are combined with AND; there is no OR or grouping.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// Rule is a tenant+entity scoped automation definition. The engine treats
// rules as read-only; authoring happens elsewhere.
type Rule struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	EntityID   string      `json:"entity_id"`
	Name       string      `json:"name"`
	IsActive   bool        `json:"is_active"`
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`
	RunOn      RunOn       `json:"run_on"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	CreatedBy  string      `json:"created_by,omitempty"`
}

// Record is one instance of an entity with dynamically-typed field values
type Record struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}

// Entity identifies the dynamic data type a record belongs to
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Tenant identifies the owning tenant
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User identifies the actor that produced the trigger
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TriggerEvent is the input to the rule executor: one create or update
// event on a record, produced by the record-ingestion side.
type TriggerEvent struct {
	EntityID string      `json:"entity_id"`
	Record   *Record     `json:"record"`
	Kind     TriggerKind `json:"trigger_kind"`
	Entity   *Entity     `json:"entity,omitempty"`
	Tenant   *Tenant     `json:"tenant,omitempty"`
	User     *User       `json:"user,omitempty"`
}

// EntityContext returns the entity metadata for template interpolation.
// Publishers that only set EntityID still get the id resolved.
func (e *TriggerEvent) EntityContext() *Entity {
	if e.Entity != nil {
		return e.Entity
	}
	return &Entity{ID: e.EntityID}
}
