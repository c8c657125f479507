// Package errors provides standardized error handling patterns for ruleflow components.
//
// # Overview
//
// The package implements a three-class error classification system: Transient
// (temporary, retryable), Invalid (bad input, non-retryable), and Fatal
// (unrecoverable, stop processing). Classification lets the trigger consumer and
// the rule executor make retry decisions without string matching on error text.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // retryable
//	errors.WrapInvalid(err, "Component", "Method", "action")    // validation
//	errors.WrapFatal(err, "Component", "Method", "action")      // unrecoverable
//
// The generic Wrap() preserves the original error's classification.
//
// # Classification Rules
//
//   - Transient: connection loss, timeouts, storage unavailability, context
//     deadline; unknown errors default here so the owning queue may retry.
//   - Invalid: malformed rules, condition/operator incompatibility, parse errors.
//     Invalid work is never retried - replaying it cannot succeed.
//   - Fatal: invalid or missing configuration.
//
// All types support errors.Is, errors.As, and Unwrap chains.
package errors
