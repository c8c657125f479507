// Package ruleflow is a multi-tenant record automation engine. Tenants
// define rules over their entities' dynamic fields: a flat AND list of typed
// conditions plus an ordered list of actions (webhook, notify, tag, rate,
// slack). Record create/update events arrive over NATS JetStream, are
// serialized per record through a keyed worker pool, evaluated against the
// current rule set, and every rule execution is captured in an append-only
// log. A dry-run endpoint lets authors test candidate rules against sample
// data with fully simulated actions.
package ruleflow
