// Package errors defines the two error taxonomies used across the bridge:
// transport/runtime codes returned by the executor, and task-protocol codes
// reported inside a TaskReport. Both are sentinel string codes rather than
// Go error types, because they cross the wire verbatim as part of an
// ExecutionResponse or TaskReport payload.
package errors

import "fmt"

// TransportCode is a stable prefix identifying a class of dispatch failure.
// It is never translated or localized; callers match on the prefix.
type TransportCode string

const (
	// Disconnected means no peer was attached when the dispatch was
	// attempted; the dispatch was never sent.
	Disconnected TransportCode = "DISCONNECTED"
	// Timeout means no reply arrived before the caller's deadline.
	Timeout TransportCode = "TIMEOUT"
	// ExecutionError means the outbound frame could not be written, or
	// the transport otherwise failed mid-flight.
	ExecutionError TransportCode = "EXECUTION_ERROR"
	// ProxyError is the catch-all for unexpected bridge failures that
	// don't fit the other three codes.
	ProxyError TransportCode = "PROXY_ERROR"
)

// Format prefixes message with the code, e.g. "TIMEOUT: Script execution
// timed out after 0.1s".
func (c TransportCode) Format(message string) string {
	return fmt.Sprintf("%s: %s", c, message)
}

// DisconnectedSentinel leads every DISCONNECTED-class message so callers can
// detect it with a simple prefix check and stop retrying, per the spec's
// "prominent sentinel" requirement.
const DisconnectedSentinel = "ILLUSTRATOR_DISCONNECTED"

// FormatDisconnected builds the user-visible DISCONNECTED message, distinct
// from Disconnected.Format because the wire sentinel and the transport code
// string differ (ILLUSTRATOR_DISCONNECTED vs DISCONNECTED).
func FormatDisconnected(message string) string {
	return fmt.Sprintf("%s: %s", DisconnectedSentinel, message)
}

// TaskCode identifies a task-protocol failure reported in TaskReport.errors.
// Codes are grouped by prefix: V (validation, pre-mutation), R (runtime,
// during collect/compute/apply), S (system, from the script host itself).
type TaskCode string

const (
	// V001 — the task payload itself is structurally invalid (missing
	// required fields, wrong types).
	V001InvalidPayload TaskCode = "V001"
	// V002 — a required host precondition is missing: no open document,
	// or (for a selection target) no active selection.
	V002NoDocument TaskCode = "V002"
	// V003 — the target selector failed its own validation: a query
	// target with no filter, or a compound target with an empty anyOf.
	V003InvalidTargets TaskCode = "V003"
	// V004 — ID assignment would collide with an identity already
	// present on another item.
	V004IdentityCollision TaskCode = "V004"
	// V005 — the target selector names a variant the runtime doesn't
	// recognize.
	V005UnknownTargetType TaskCode = "V005"
	// V006 — a required task parameter is missing.
	V006MissingParam TaskCode = "V006"
	// V007 — a task parameter has an invalid value.
	V007InvalidParam TaskCode = "V007"
	// V008 — params failed schema validation.
	V008SchemaMismatch TaskCode = "V008"

	// R001 — collect stage failed to resolve targets.
	R001CollectFailed TaskCode = "R001"
	// R002 — compute stage failed to produce actions.
	R002ComputeFailed TaskCode = "R002"
	// R003 — apply stage failed globally (before any per-item outcome).
	R003ApplyFailed TaskCode = "R003"
	// R004 — apply stage failed for a specific item; other items may
	// still have succeeded.
	R004ApplyItemFailed TaskCode = "R004"
	// R005 — a stage exceeded its allotted time.
	R005StageTimeout TaskCode = "R005"
	// R006 — a locator or index referenced a position outside the
	// document's current bounds.
	R006OutOfBounds TaskCode = "R006"

	// S001 — the host application reported an error (e.g. Illustrator
	// itself threw).
	S001AppError TaskCode = "S001"
	// S002 — the script host's interpreter failed independent of the
	// host application.
	S002ScriptHostError TaskCode = "S002"
	// S003 — a file I/O operation requested by the task failed.
	S003IOError TaskCode = "S003"
	// S004 — the script host ran out of memory.
	S004MemoryError TaskCode = "S004"
)

// NeverRetryable reports whether code must never trigger a stage retry,
// regardless of the caller's RetryPolicy. R003 and R004 are apply-stage
// failures; apply is never retried per the spec's mandatory rule (a).
func (c TaskCode) NeverRetryable() bool {
	return c == R003ApplyFailed || c == R004ApplyItemFailed
}

// IsValidation reports whether code is in the V-prefixed validation space.
func (c TaskCode) IsValidation() bool {
	return len(c) > 0 && c[0] == 'V'
}

// IsRuntime reports whether code is in the R-prefixed runtime space.
func (c TaskCode) IsRuntime() bool {
	return len(c) > 0 && c[0] == 'R'
}

// IsSystem reports whether code is in the S-prefixed system space.
func (c TaskCode) IsSystem() bool {
	return len(c) > 0 && c[0] == 'S'
}
