// Package task implements the declarative task protocol: a TargetSelector
// resolves to host items, a pipeline of validate/collect/compute/apply
// stages turns a TaskPayload into mutations, and a TaskReport summarizes
// the outcome. Collect is a pure function of a Document snapshot so it can
// be exercised without a live Illustrator host; compute/apply are supplied
// by the caller as they are domain-specific to each task.
package task

import "github.com/illustrator-bridge/core/internal/errors"

// SelectorKind tags which TargetSelector variant is populated.
type SelectorKind string

const (
	SelectorSelection SelectorKind = "selection"
	SelectorLayer     SelectorKind = "layer"
	SelectorAll       SelectorKind = "all"
	SelectorQuery     SelectorKind = "query"
	SelectorCompound  SelectorKind = "compound"
)

// OrderBy names a deterministic ordering key for collected items.
type OrderBy string

const (
	OrderZOrder        OrderBy = "zOrder"
	OrderZOrderReverse OrderBy = "zOrderReverse"
	OrderReading       OrderBy = "reading"
	OrderColumn        OrderBy = "column"
	OrderName          OrderBy = "name"
	OrderPositionX     OrderBy = "positionX"
	OrderPositionY     OrderBy = "positionY"
	OrderArea          OrderBy = "area"
)

// ExcludeFilter removes items with the corresponding flag set. Zero value
// excludes nothing.
type ExcludeFilter struct {
	Locked  bool `json:"locked,omitempty"`
	Hidden  bool `json:"hidden,omitempty"`
	Guides  bool `json:"guides,omitempty"`
	Clipped bool `json:"clipped,omitempty"`
}

// LayerSelector matches every item under a named layer.
type LayerSelector struct {
	Name      string `json:"name"`
	Recursive bool   `json:"recursive"`
}

// AllSelector matches every item in the document.
type AllSelector struct {
	Recursive bool `json:"recursive"`
}

// QuerySelector matches items by type, name pattern, and/or layer scope.
// At least one of ItemType, Pattern, or Layer must be set.
type QuerySelector struct {
	ItemType  string `json:"itemType,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Layer     string `json:"layer,omitempty"`
	Recursive bool   `json:"recursive"`
}

// CompoundSelector unions its children, then applies its own exclude before
// the parent selector's global exclude and ordering are applied.
type CompoundSelector struct {
	AnyOf   []TargetSelector `json:"anyOf"`
	Exclude *ExcludeFilter   `json:"exclude,omitempty"`
}

// TargetSelector is the tagged union describing which host items a task
// operates on, plus ordering and exclusion. OrderBy and Exclude apply only
// at the top level; a selector nested inside a CompoundSelector's AnyOf
// must not set them.
type TargetSelector struct {
	Kind     SelectorKind      `json:"kind"`
	Layer    *LayerSelector    `json:"layer,omitempty"`
	All      *AllSelector      `json:"all,omitempty"`
	Query    *QuerySelector    `json:"query,omitempty"`
	Compound *CompoundSelector `json:"compound,omitempty"`
	OrderBy  OrderBy           `json:"orderBy,omitempty"`
	Exclude  *ExcludeFilter    `json:"exclude,omitempty"`
}

// IDSource records where an ItemRef's persistent identity lives.
type IDSource string

const (
	IDSourceNone IDSource = "none"
	IDSourceNote IDSource = "note"
	IDSourceName IDSource = "name"
)

// IDPolicy governs whether and how the runtime assigns persistent
// identities to items during a task.
type IDPolicy string

const (
	IDPolicyNone     IDPolicy = "none"
	IDPolicyOptIn    IDPolicy = "opt_in"
	IDPolicyAlways   IDPolicy = "always"
	IDPolicyPreserve IDPolicy = "preserve"
)

// Idempotency is the caller-declared safety class used by RetryPolicy's
// requireIdempotent rule.
type Idempotency string

const (
	IdempotencyUnknown Idempotency = ""
	IdempotencySafe    Idempotency = "safe"
	IdempotencyUnsafe  Idempotency = "unsafe"
)

// ItemRef is a stable reference to a host item: a volatile positional
// locator, a persistent identity, and user-authored tags. Each concern is
// independent — a ref may carry any subset.
type ItemRef struct {
	LayerPath string            `json:"layerPath"`
	IndexPath []int             `json:"indexPath"`
	ItemID    string            `json:"itemId,omitempty"`
	IDSource  IDSource          `json:"idSource,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	ItemType  string            `json:"itemType,omitempty"`
	Name      string            `json:"name,omitempty"`
}

// Locator returns the volatile positional half of the ref, used for
// identity-by-position comparisons (deduplication, tie-breaking).
func (r ItemRef) Locator() Locator {
	return Locator{LayerPath: r.LayerPath, IndexPath: append([]int(nil), r.IndexPath...)}
}

// RetryPolicy governs whether a failed stage is retried. Apply is never
// retryable regardless of what this declares; New validates that.
type RetryPolicy struct {
	MaxAttempts       int               `json:"maxAttempts"`
	RetryableStages   []string          `json:"retryableStages,omitempty"`
	RetryOnCodes      []errors.TaskCode `json:"retryOnCodes,omitempty"`
	RequireIdempotent bool              `json:"requireIdempotent"`
}

func (p RetryPolicy) stageRetryable(stage string) bool {
	for _, s := range p.RetryableStages {
		if s == stage {
			return true
		}
	}
	return false
}

func (p RetryPolicy) codeRetryable(code errors.TaskCode) bool {
	for _, c := range p.RetryOnCodes {
		if c == code {
			return true
		}
	}
	return false
}

// ShouldRetry reports whether a failure at stage with code should trigger a
// retry, given the task's declared idempotency class. Apply failures
// (R003/R004) are categorically excluded regardless of policy content.
func (p RetryPolicy) ShouldRetry(stage string, code errors.TaskCode, idempotency Idempotency) bool {
	if stage == "apply" || code.NeverRetryable() {
		return false
	}
	if !p.stageRetryable(stage) || !p.codeRetryable(code) {
		return false
	}
	if p.RequireIdempotent && idempotency != IdempotencySafe {
		return false
	}
	return true
}

// Validate rejects a policy that declares apply retryable, per the spec's
// mandatory rule (a).
func (p RetryPolicy) Validate() error {
	if p.stageRetryable("apply") {
		return errInvalidRetryPolicy
	}
	return nil
}

var errInvalidRetryPolicy = policyError("retry policy must not declare \"apply\" retryable")

type policyError string

func (e policyError) Error() string { return string(e) }

// Options carries per-task execution controls.
type Options struct {
	DryRun      bool        `json:"dryRun,omitempty"`
	Trace       bool        `json:"trace,omitempty"`
	IDPolicy    IDPolicy    `json:"idPolicy,omitempty"`
	TimeoutSec  float64     `json:"timeoutSeconds,omitempty"`
	Retry       RetryPolicy `json:"retry,omitempty"`
	Idempotency Idempotency `json:"idempotency,omitempty"`
}

// Payload is the declarative task envelope dispatched to the runtime.
type Payload struct {
	Task    string         `json:"task"`
	Version string         `json:"version"`
	Targets TargetSelector `json:"targets"`
	Params  map[string]any `json:"params,omitempty"`
	Options Options        `json:"options,omitempty"`
}

// Stats counts how many items a task touched.
type Stats struct {
	ItemsProcessed int `json:"itemsProcessed"`
	ItemsModified  int `json:"itemsModified"`
	ItemsSkipped   int `json:"itemsSkipped"`
}

// Timing records wall time spent in each stage, in milliseconds.
type Timing struct {
	CollectMs float64  `json:"collect_ms"`
	ComputeMs float64  `json:"compute_ms"`
	ApplyMs   float64  `json:"apply_ms"`
	ExportMs  *float64 `json:"export_ms,omitempty"`
	TotalMs   float64  `json:"total_ms"`
}

// ReportError is one entry in TaskReport.errors.
type ReportError struct {
	Stage   string          `json:"stage"`
	Code    errors.TaskCode `json:"code"`
	Message string          `json:"message"`
	ItemRef *ItemRef        `json:"itemRef,omitempty"`
}

// RetryInfo summarizes the retry attempts made, if any.
type RetryInfo struct {
	Attempts       int         `json:"attempts"`
	Succeeded      bool        `json:"succeeded"`
	RetriedStages  []string    `json:"retriedStages,omitempty"`
	Idempotency    Idempotency `json:"idempotency,omitempty"`
}

// Report is the canonical task reply.
type Report struct {
	OK        bool           `json:"ok"`
	Stats     Stats          `json:"stats"`
	Timing    Timing         `json:"timing"`
	Warnings  []string       `json:"warnings,omitempty"`
	Errors    []ReportError  `json:"errors,omitempty"`
	Artifacts map[string]any `json:"artifacts,omitempty"`
	Trace     []string       `json:"trace,omitempty"`
	RetryInfo *RetryInfo     `json:"retryInfo,omitempty"`
}
