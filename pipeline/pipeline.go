// Package pipeline runs the iterative generate-score-improve loop: each
// pass asks the LLM for a process document, converts it to BPMN XML,
// scores the result, applies mechanical fixes, and feeds the remaining
// deficiencies back into the next prompt until the quality target, the
// iteration cap, or the time budget is hit.
package pipeline

import (
	"fmt"
	"time"

	"github.com/c360studio/bpmnforge/improve"
	"github.com/c360studio/bpmnforge/llm"
	"github.com/c360studio/bpmnforge/process"
	"github.com/c360studio/bpmnforge/quality"
)

// StopReason explains why the loop ended.
type StopReason string

const (
	// StopTargetReached means an iteration met or beat the quality target.
	StopTargetReached StopReason = "target_reached"

	// StopMaxIterations means the iteration cap was consumed without
	// reaching the target. The best candidate is still returned.
	StopMaxIterations StopReason = "max_iterations_exhausted"

	// StopTimeBudget means the run's own time budget expired.
	StopTimeBudget StopReason = "time_budget_exhausted"

	// StopCancelled means the caller's context was cancelled.
	StopCancelled StopReason = "cancelled"

	// StopFatalError means generation failed in a way retrying cannot
	// cure (auth failure, provider rejection, exhausted fallbacks).
	StopFatalError StopReason = "fatal_error"
)

// Request describes one pipeline run. Generator is the only external
// capability; everything else the controller builds itself.
type Request struct {
	// Context is the analyzed business context to model.
	Context *process.Context

	// Generator produces text from prompts.
	Generator llm.Generator

	// QualityTarget is the overall score that stops the loop, in [0,1].
	QualityTarget float64

	// MaxIterations caps generation passes. Must be at least 1.
	MaxIterations int

	// TimeBudget bounds the whole run including retries. 0 means no
	// budget beyond the caller's context.
	TimeBudget time.Duration

	// Temperature is passed through to the generator. nil uses the
	// provider default.
	Temperature *float64
}

// InvalidRequestError reports a request rejected before any generation.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func (r Request) validate() error {
	if r.Context == nil {
		return &InvalidRequestError{Field: "context", Reason: "is required"}
	}
	if r.Generator == nil {
		return &InvalidRequestError{Field: "generator", Reason: "is required"}
	}
	if r.QualityTarget < 0 || r.QualityTarget > 1 {
		return &InvalidRequestError{Field: "quality_target", Reason: "must be in [0, 1]"}
	}
	if r.MaxIterations < 1 {
		return &InvalidRequestError{Field: "max_iterations", Reason: "must be at least 1"}
	}
	if r.TimeBudget < 0 {
		return &InvalidRequestError{Field: "time_budget", Reason: "must not be negative"}
	}
	return nil
}

// Iteration records one generation pass. Append-only once recorded.
type Iteration struct {
	// Index is 1-based.
	Index int `json:"index"`

	// Prompt is the user prompt sent to the generator.
	Prompt string `json:"prompt"`

	// JSON is the extracted (and possibly mechanically patched) process
	// document. Empty when the response produced no usable document.
	JSON string `json:"json"`

	// XML is the emitted BPMN. Empty for schema-failed iterations.
	XML string `json:"xml"`

	// Metrics scores the XML. Schema-failed iterations carry zero
	// scores plus the schema problems as critical issues.
	Metrics quality.Metrics `json:"metrics"`

	// Fixes lists mechanical patches applied after scoring.
	Fixes []improve.Fix `json:"fixes,omitempty"`

	// Duration covers generation through scoring.
	Duration time.Duration `json:"duration"`

	// Delta is the overall-score change versus the previous iteration,
	// 0 for the first.
	Delta float64 `json:"delta"`
}

// Result is the outcome of a run.
type Result struct {
	// Success means the quality target was reached. A below-target run
	// reports false even when a usable diagram exists; FinalXML carries
	// the best candidate either way.
	Success bool `json:"success"`

	// FinalJSON and FinalXML come from the best iteration.
	FinalJSON string `json:"final_json,omitempty"`
	FinalXML  string `json:"final_xml,omitempty"`

	// FinalMetrics scores the best iteration.
	FinalMetrics quality.Metrics `json:"final_metrics"`

	// Iterations holds every pass in order.
	Iterations []Iteration `json:"iterations"`

	// StopReason explains why the loop ended.
	StopReason StopReason `json:"stop_reason"`

	// Err holds the terminal error for fatal_error stops.
	Err error `json:"-"`

	// Duration is the wall-clock time of the whole run.
	Duration time.Duration `json:"duration"`
}

// Best returns the iteration with the highest overall score that
// produced XML. Ties go to the later iteration. Nil when no iteration
// produced a diagram.
func (r *Result) Best() *Iteration {
	var best *Iteration
	for i := range r.Iterations {
		it := &r.Iterations[i]
		if it.XML == "" {
			continue
		}
		if best == nil || it.Metrics.Overall() >= best.Metrics.Overall() {
			best = it
		}
	}
	return best
}
