// Package postgres implements the engine's storage collaborators on
// PostgreSQL via pgx. Rules and actions are stored as JSONB documents;
// record fields live in a single JSONB column updated per field, which is
// safe under last-write-wins because triggers for one record are serialized
// upstream.
package postgres

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/c360/ruleflow/errors"
	"github.com/c360/ruleflow/field"
	"github.com/c360/ruleflow/rule"
)

// Store provides rule, record, schema, and log persistence
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore connects a pool and verifies the database is reachable
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.WrapFatal(err, "postgres", "NewStore", "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WrapTransient(err, "postgres", "NewStore", "ping database")
	}
	return &Store{
		pool:   pool,
		logger: slog.Default().With("component", "postgres-store"),
	}, nil
}

// Close releases the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

const activeRulesQuery = `
SELECT id, tenant_id, entity_id, name, is_active, conditions, actions, run_on,
       created_at, updated_at, created_by
FROM rules
WHERE tenant_id = $1
  AND entity_id = $2
  AND is_active
  AND run_on IN ($3, 'both')
ORDER BY created_at ASC`

// ActiveRules returns the active rules for an entity whose run_on covers
// the trigger kind, ordered by creation time so execution order is stable.
func (s *Store) ActiveRules(ctx context.Context, tenantID, entityID string, kind rule.TriggerKind) ([]rule.Rule, error) {
	rows, err := s.pool.Query(ctx, activeRulesQuery, tenantID, entityID, string(kind))
	if err != nil {
		return nil, errors.WrapTransient(err, "postgres", "ActiveRules", "query rules")
	}
	defer rows.Close()

	var out []rule.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "postgres", "ActiveRules", "scan rule")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "postgres", "ActiveRules", "iterate rules")
	}
	return out, nil
}

// GetRule fetches one rule by ID
func (s *Store) GetRule(ctx context.Context, id string) (*rule.Rule, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, tenant_id, entity_id, name, is_active, conditions, actions, run_on,
       created_at, updated_at, created_by
FROM rules WHERE id = $1`, id)
	if err != nil {
		return nil, errors.WrapTransient(err, "postgres", "GetRule", "query rule")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.WrapTransient(err, "postgres", "GetRule", "iterate rule")
		}
		return nil, errors.ErrRuleNotFound
	}
	r, err := scanRule(rows)
	if err != nil {
		return nil, errors.Wrap(err, "postgres", "GetRule", "scan rule")
	}
	return r, nil
}

// SaveRule inserts or replaces a rule definition
func (s *Store) SaveRule(ctx context.Context, r *rule.Rule) error {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return errors.WrapInvalid(err, "postgres", "SaveRule", "marshal conditions")
	}
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return errors.WrapInvalid(err, "postgres", "SaveRule", "marshal actions")
	}

	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err = s.pool.Exec(ctx, `
INSERT INTO rules (id, tenant_id, entity_id, name, is_active, conditions, actions,
                   run_on, created_at, updated_at, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    is_active = EXCLUDED.is_active,
    conditions = EXCLUDED.conditions,
    actions = EXCLUDED.actions,
    run_on = EXCLUDED.run_on,
    updated_at = EXCLUDED.updated_at`,
		r.ID, r.TenantID, r.EntityID, r.Name, r.IsActive, conditions, actions,
		string(r.RunOn), r.CreatedAt, r.UpdatedAt, r.CreatedBy)
	if err != nil {
		return errors.WrapTransient(err, "postgres", "SaveRule", "upsert rule")
	}
	return nil
}

// DeleteRule removes a rule by ID
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return errors.WrapTransient(err, "postgres", "DeleteRule", "delete rule")
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrRuleNotFound
	}
	return nil
}

// GetRecord fetches a record by tenant and ID
func (s *Store) GetRecord(ctx context.Context, tenantID, recordID string) (*rule.Record, error) {
	var (
		rec       rule.Record
		fields    []byte
		updatedAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, fields, created_at, updated_at
FROM records WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, recordID).Scan(&rec.ID, &fields, &rec.CreatedAt, &updatedAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.WrapTransient(err, "postgres", "GetRecord", "query record")
	}
	rec.UpdatedAt = updatedAt
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, errors.WrapInvalid(err, "postgres", "GetRecord", "decode fields")
	}
	return &rec, nil
}

// UpdateRecordField sets one key in the record's JSONB fields document
func (s *Store) UpdateRecordField(ctx context.Context, tenantID, recordID, fieldKey string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(err, "postgres", "UpdateRecordField", "encode value")
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE records
SET fields = jsonb_set(fields, ARRAY[$3], $4::jsonb, true),
    updated_at = now()
WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, recordID, fieldKey, encoded)
	if err != nil {
		return errors.WrapTransient(err, "postgres", "UpdateRecordField", "update record")
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrRecordNotFound
	}
	return nil
}

// EntityFields implements field.Registry from the entity_fields table
func (s *Store) EntityFields(ctx context.Context, entityID string) (field.Schema, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, field_type FROM entity_fields WHERE entity_id = $1`, entityID)
	if err != nil {
		return nil, errors.WrapTransient(err, "postgres", "EntityFields", "query fields")
	}
	defer rows.Close()

	schema := make(field.Schema)
	for rows.Next() {
		var key, rawType string
		if err := rows.Scan(&key, &rawType); err != nil {
			return nil, errors.Wrap(err, "postgres", "EntityFields", "scan field")
		}
		ft, err := field.ParseType(rawType)
		if err != nil {
			s.logger.Warn("skipping field with unknown type",
				"entity_id", entityID, "key", key, "type", rawType)
			continue
		}
		schema[key] = ft
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "postgres", "EntityFields", "iterate fields")
	}
	if len(schema) == 0 {
		return nil, errors.ErrEntityNotFound
	}
	return schema, nil
}

// AppendLog inserts one execution log row. The table is append-only.
func (s *Store) AppendLog(ctx context.Context, entry *rule.Log) error {
	output, err := json.Marshal(entry.Output)
	if err != nil {
		return errors.WrapInvalid(err, "postgres", "AppendLog", "marshal output")
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO rule_logs (id, tenant_id, rule_id, record_id, status, duration_ms, output, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.TenantID, entry.RuleID, entry.RecordID,
		string(entry.Status), entry.DurationMS, output, entry.CreatedAt)
	if err != nil {
		return errors.WrapTransient(err, "postgres", "AppendLog", "insert log")
	}
	return nil
}

// LogsByRecord returns a record's execution logs, oldest first
func (s *Store) LogsByRecord(ctx context.Context, tenantID, recordID string) ([]rule.Log, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, tenant_id, rule_id, record_id, status, duration_ms, output, created_at
FROM rule_logs
WHERE tenant_id = $1 AND record_id = $2
ORDER BY created_at ASC`, tenantID, recordID)
	if err != nil {
		return nil, errors.WrapTransient(err, "postgres", "LogsByRecord", "query logs")
	}
	defer rows.Close()

	var out []rule.Log
	for rows.Next() {
		var (
			entry  rule.Log
			status string
			output []byte
		)
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.RuleID, &entry.RecordID,
			&status, &entry.DurationMS, &output, &entry.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "postgres", "LogsByRecord", "scan log")
		}
		entry.Status = rule.LogStatus(status)
		if err := json.Unmarshal(output, &entry.Output); err != nil {
			return nil, errors.WrapInvalid(err, "postgres", "LogsByRecord", "decode output")
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "postgres", "LogsByRecord", "iterate logs")
	}
	return out, nil
}

// scanRule decodes one rules row
func scanRule(rows pgx.Rows) (*rule.Rule, error) {
	var (
		r          rule.Rule
		conditions []byte
		actions    []byte
		runOn      string
	)
	if err := rows.Scan(&r.ID, &r.TenantID, &r.EntityID, &r.Name, &r.IsActive,
		&conditions, &actions, &runOn, &r.CreatedAt, &r.UpdatedAt, &r.CreatedBy); err != nil {
		return nil, err
	}
	r.RunOn = rule.RunOn(runOn)
	if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actions, &r.Actions); err != nil {
		return nil, err
	}
	return &r, nil
}
