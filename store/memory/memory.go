// Package memory provides mutex-guarded in-memory implementations of the
// engine's storage collaborators. It backs tests and local development; the
// postgres package is the production counterpart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/ruleflow/errors"
	"github.com/c360/ruleflow/field"
	"github.com/c360/ruleflow/rule"
)

// Store holds rules, records, schemas, and logs for every tenant
type Store struct {
	mu      sync.RWMutex
	rules   map[string]*rule.Rule   // rule ID -> rule
	records map[string]*rule.Record // tenant/record key -> record
	schemas map[string]field.Schema // entity ID -> schema
	logs    []*rule.Log
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		rules:   make(map[string]*rule.Rule),
		records: make(map[string]*rule.Record),
		schemas: make(map[string]field.Schema),
	}
}

func recordKey(tenantID, recordID string) string {
	return tenantID + "/" + recordID
}

// SaveRule inserts or replaces a rule, assigning an ID when absent
func (s *Store) SaveRule(_ context.Context, r *rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	clone := *r
	s.rules[r.ID] = &clone
	return nil
}

// GetRule fetches one rule by ID
func (s *Store) GetRule(_ context.Context, id string) (*rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, errors.ErrRuleNotFound
	}
	clone := *r
	return &clone, nil
}

// DeleteRule removes a rule by ID
func (s *Store) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return errors.ErrRuleNotFound
	}
	delete(s.rules, id)
	return nil
}

// ActiveRules returns the active rules for an entity whose run_on covers the
// trigger kind, ordered by creation time ascending so execution order is
// stable.
func (s *Store) ActiveRules(_ context.Context, tenantID, entityID string, kind rule.TriggerKind) ([]rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []rule.Rule
	for _, r := range s.rules {
		if r.TenantID == tenantID && r.EntityID == entityID && r.IsActive && r.RunOn.Matches(kind) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// PutRecord inserts or replaces a record
func (s *Store) PutRecord(_ context.Context, tenantID string, rec *rule.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	if rec.Fields != nil {
		clone.Fields = make(map[string]any, len(rec.Fields))
		for k, v := range rec.Fields {
			clone.Fields[k] = v
		}
	}
	s.records[recordKey(tenantID, rec.ID)] = &clone
	return nil
}

// GetRecord fetches a record by tenant and ID
func (s *Store) GetRecord(_ context.Context, tenantID, recordID string) (*rule.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey(tenantID, recordID)]
	if !ok {
		return nil, errors.ErrRecordNotFound
	}
	clone := *rec
	clone.Fields = make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		clone.Fields[k] = v
	}
	return &clone, nil
}

// DeleteRecord removes a record
func (s *Store) DeleteRecord(_ context.Context, tenantID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(tenantID, recordID)
	if _, ok := s.records[key]; !ok {
		return errors.ErrRecordNotFound
	}
	delete(s.records, key)
	return nil
}

// UpdateRecordField sets one field on a record
func (s *Store) UpdateRecordField(_ context.Context, tenantID, recordID, fieldKey string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordKey(tenantID, recordID)]
	if !ok {
		return errors.ErrRecordNotFound
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]any)
	}
	rec.Fields[fieldKey] = value
	now := time.Now().UTC()
	rec.UpdatedAt = &now
	return nil
}

// PutSchema registers an entity's field schema
func (s *Store) PutSchema(entityID string, schema field.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[entityID] = schema
}

// EntityFields implements field.Registry
func (s *Store) EntityFields(_ context.Context, entityID string) (field.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[entityID]
	if !ok {
		return nil, errors.ErrEntityNotFound
	}
	return schema, nil
}

// AppendLog stores an execution log entry
func (s *Store) AppendLog(_ context.Context, entry *rule.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *entry
	s.logs = append(s.logs, &clone)
	return nil
}

// LogsByRecord returns the log entries for one record in append order
func (s *Store) LogsByRecord(_ context.Context, tenantID, recordID string) ([]rule.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rule.Log
	for _, entry := range s.logs {
		if entry.TenantID == tenantID && entry.RecordID == recordID {
			out = append(out, *entry)
		}
	}
	return out, nil
}
