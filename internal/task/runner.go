package task

import (
	"fmt"
	"time"

	"github.com/illustrator-bridge/core/internal/errors"
)

// Action is an opaque descriptor of a mutation to apply. Compute produces
// actions; Apply consumes them. The runner never inspects their contents.
type Action any

// Computer consumes the collected items and task params and produces the
// actions to apply. It must not mutate doc.
type Computer func(items []CollectedItem, params map[string]any) ([]Action, error)

// ApplyResult is what an Applier reports back per invocation.
type ApplyResult struct {
	Modified int
	Skipped  int
	Warnings []string
	Errors   []ReportError
}

// Applier mutates doc according to actions. When dryRun is true it must run
// its logic without persisting mutations, reporting suppressed side effects
// as warnings.
type Applier func(doc *Document, actions []Action, dryRun bool) ApplyResult

const retryDelay = 50 * time.Millisecond

// Run executes the validate → collect → compute → apply pipeline for
// payload against doc, retrying collect/compute per options.Retry. apply is
// never retried (mandatory rule (a) in RetryPolicy).
func Run(payload Payload, doc *Document, compute Computer, apply Applier) *Report {
	report := &Report{OK: true}
	start := time.Now()

	if err := validatePayload(payload); err != nil {
		report.OK = false
		report.Errors = append(report.Errors, reportErrorFrom("validate", err))
		report.Timing.TotalMs = elapsedMs(start)
		return report
	}

	var retryInfo *RetryInfo
	if payload.Options.Retry.MaxAttempts > 1 {
		retryInfo = &RetryInfo{Idempotency: payload.Options.Idempotency}
	}

	collected, collectMs, err := runStageWithRetry("collect", payload, retryInfo, func() ([]CollectedItem, error) {
		return Collect(doc, payload.Targets)
	})
	report.Timing.CollectMs = collectMs
	if err != nil {
		report.OK = false
		report.Errors = append(report.Errors, reportErrorFrom("collect", wrapCode(err, errors.R001CollectFailed)))
		report.Timing.TotalMs = elapsedMs(start)
		finalizeRetry(report, retryInfo, false)
		return report
	}
	report.Stats.ItemsProcessed = len(collected)

	if idErr := assignIdentities(doc, collected, payload.Options.IDPolicy); idErr != nil {
		report.OK = false
		report.Errors = append(report.Errors, reportErrorFrom("validate", idErr))
		report.Timing.TotalMs = elapsedMs(start)
		return report
	}

	actions, computeMs, err := runStageWithRetry("compute", payload, retryInfo, func() ([]Action, error) {
		return compute(collected, payload.Params)
	})
	report.Timing.ComputeMs = computeMs
	if err != nil {
		report.OK = false
		report.Errors = append(report.Errors, reportErrorFrom("compute", wrapCode(err, errors.R002ComputeFailed)))
		report.Timing.TotalMs = elapsedMs(start)
		finalizeRetry(report, retryInfo, false)
		return report
	}

	applyStart := time.Now()
	result := apply(doc, actions, payload.Options.DryRun)
	report.Timing.ApplyMs = elapsedMs(applyStart)
	report.Stats.ItemsModified = result.Modified
	report.Stats.ItemsSkipped = result.Skipped
	report.Warnings = append(report.Warnings, result.Warnings...)
	report.Errors = append(report.Errors, result.Errors...)
	if len(result.Errors) > 0 {
		report.OK = false
	}

	report.Timing.TotalMs = elapsedMs(start)
	finalizeRetry(report, retryInfo, report.OK)
	return report
}

func finalizeRetry(report *Report, retryInfo *RetryInfo, succeeded bool) {
	if retryInfo == nil {
		return
	}
	retryInfo.Succeeded = succeeded
	report.RetryInfo = retryInfo
}

// runStageWithRetry runs fn once, then retries per policy while the
// resulting error's TaskCode is eligible, up to MaxAttempts total attempts.
func runStageWithRetry[T any](stage string, payload Payload, retryInfo *RetryInfo, fn func() (T, error)) (T, float64, error) {
	policy := payload.Options.Retry
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	var result T
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, elapsedMs(start), nil
		}
		if attempt == maxAttempts {
			break
		}
		code := codeFromError(err)
		if !policy.ShouldRetry(stage, code, payload.Options.Idempotency) {
			break
		}
		if retryInfo != nil {
			retryInfo.Attempts = attempt
			retryInfo.RetriedStages = appendUnique(retryInfo.RetriedStages, stage)
		}
		time.Sleep(retryDelay)
	}
	if retryInfo != nil && retryInfo.Attempts == 0 {
		retryInfo.Attempts = 1
	}
	return result, elapsedMs(start), err
}

func appendUnique(stages []string, stage string) []string {
	for _, s := range stages {
		if s == stage {
			return stages
		}
	}
	return append(stages, stage)
}

func elapsedMs(since time.Time) float64 {
	return float64(time.Since(since).Microseconds()) / 1000.0
}

func codeFromError(err error) errors.TaskCode {
	if ve, ok := err.(*validationError); ok {
		return ve.code
	}
	if ce, ok := err.(*codedError); ok {
		return ce.code
	}
	return errors.S002ScriptHostError
}

// codedError wraps an arbitrary stage error with a TaskCode, used when the
// caller's Computer/Collect step doesn't already carry one.
type codedError struct {
	code errors.TaskCode
	err  error
}

func (e *codedError) Error() string { return fmt.Sprintf("%s: %s", e.code, e.err) }
func (e *codedError) Unwrap() error { return e.err }

func wrapCode(err error, fallback errors.TaskCode) error {
	if _, ok := err.(*validationError); ok {
		return err
	}
	if _, ok := err.(*codedError); ok {
		return err
	}
	return &codedError{code: fallback, err: err}
}

func reportErrorFrom(stage string, err error) ReportError {
	code := codeFromError(err)
	msg := err.Error()
	if ve, ok := err.(*validationError); ok {
		msg = ve.message
	} else if ce, ok := err.(*codedError); ok {
		msg = ce.err.Error()
	}
	return ReportError{Stage: stage, Code: code, Message: msg}
}
