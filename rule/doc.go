// Package rule defines the automation rule data model: rules with their
// flat-AND condition lists and tagged-union actions, trigger events, the
// evaluation context handed to templates, and the append-only execution log.
//
// Authoring-time validation lives here too: ValidateRule checks a rule
// against its entity's field schema and reports every violation at once
// under the RULE_CONDITION_INVALID code. Runtime evaluation against live
// records is the condition package's job; this package only decides whether
// a rule is well-formed.
package rule
