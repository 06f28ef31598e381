package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/bpmnforge/bpmn"
	"github.com/c360studio/bpmnforge/improve"
	"github.com/c360studio/bpmnforge/llm"
	"github.com/c360studio/bpmnforge/prompts"
	"github.com/c360studio/bpmnforge/quality"
	"github.com/c360studio/bpmnforge/validator"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithValidator overrides the default validator.
func WithValidator(v *validator.Validator) Option {
	return func(c *Controller) {
		c.validator = v
	}
}

// Controller drives the iteration loop. Safe for concurrent runs; all
// per-run state lives on the stack.
type Controller struct {
	validator *validator.Validator
	engine    *improve.Engine
	logger    *slog.Logger
	metrics   *Metrics
}

// NewController creates a Controller with default components.
func NewController(opts ...Option) *Controller {
	c := &Controller{
		validator: validator.New(),
		engine:    improve.NewEngine(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the loop until the target, the iteration cap, the time
// budget, or the caller's context stops it. The request is validated
// before any generation happens. A run that produced at least one
// diagram always returns a Result carrying the best candidate, even
// when it ends on cancellation or a fatal generation error.
func (c *Controller) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	runCtx := ctx
	if req.TimeBudget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.TimeBudget)
		defer cancel()
	}

	c.logger.Info("Starting generation run",
		"quality_target", req.QualityTarget,
		"max_iterations", req.MaxIterations,
		"time_budget", req.TimeBudget,
		"domain", req.Context.Domain)

	result := &Result{StopReason: StopMaxIterations}

	for index := 1; index <= req.MaxIterations; index++ {
		if err := runCtx.Err(); err != nil {
			result.StopReason = c.stopReasonFor(ctx, err)
			break
		}

		iter, err := c.runIteration(runCtx, req, result, index)
		if err != nil {
			if reason := c.stopReasonFor(ctx, err); reason != StopFatalError {
				result.StopReason = reason
			} else {
				result.StopReason = StopFatalError
				result.Err = err
				c.logger.Error("Generation failed", "iteration", index, "error", err)
			}
			break
		}

		result.Iterations = append(result.Iterations, *iter)
		c.observeIteration(iter)

		c.logger.Info("Iteration scored",
			"iteration", index,
			"overall", iter.Metrics.Overall(),
			"level", iter.Metrics.Level(),
			"issues", len(iter.Metrics.Issues),
			"fixes", len(iter.Fixes),
			"delta", iter.Delta)

		if iter.XML != "" && iter.Metrics.Overall() >= req.QualityTarget {
			result.StopReason = StopTargetReached
			break
		}
	}

	c.finalize(result, time.Since(start))
	return result, nil
}

// runIteration executes one generate-convert-score-fix pass. Only
// generation errors propagate; schema failures come back as a recorded
// iteration with zero scores.
func (c *Controller) runIteration(ctx context.Context, req Request, result *Result, index int) (*Iteration, error) {
	iterStart := time.Now()

	prompt, err := c.buildPrompt(req, result, index)
	if err != nil {
		return nil, llm.NewFatalError(err)
	}

	resp, err := req.Generator.Generate(ctx, llm.Request{
		System:      prompts.SystemPrompt(),
		User:        prompt,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	iter := &Iteration{Index: index, Prompt: prompt}
	defer func() {
		iter.Duration = time.Since(iterStart)
		iter.Delta = c.deltaFor(result, iter)
	}()

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		iter.Metrics = schemaFailureMetrics("response contained no JSON document")
		return iter, nil
	}
	iter.JSON = raw

	doc, err := bpmn.ParseDocument(raw)
	if err != nil {
		var schemaErr *bpmn.SchemaError
		if errors.As(err, &schemaErr) {
			iter.Metrics = schemaFailureMetrics(schemaErr.Problems...)
			return iter, nil
		}
		iter.Metrics = schemaFailureMetrics(err.Error())
		return iter, nil
	}

	def, convIssues := bpmn.Build(doc)
	iter.XML = bpmn.Write(def)
	iter.Metrics = c.validator.Validate(iter.XML, req.Context)

	if iter.Metrics.Overall() < req.QualityTarget {
		c.applyFixes(req, def, iter)
	}

	// Conversion problems (dropped message flows) are invisible in the
	// emitted XML, so they ride along regardless of the fix pass.
	iter.Metrics.Issues = append(iter.Metrics.Issues, convIssues...)

	if docJSON, err := prompts.DocumentJSON(bpmn.DocumentFromDefinitions(def)); err == nil {
		iter.JSON = docJSON
	}

	return iter, nil
}

// applyFixes patches the model mechanically and keeps the patched
// diagram when it scores at least as well as the raw one.
func (c *Controller) applyFixes(req Request, def *bpmn.Definitions, iter *Iteration) {
	fixes := c.engine.Apply(def)
	if len(fixes) == 0 {
		return
	}

	patched := c.validator.ValidateModel(def, req.Context)
	if patched.Overall() < iter.Metrics.Overall() {
		return
	}

	iter.Fixes = fixes
	iter.XML = bpmn.Write(def)
	iter.Metrics = patched
}

// buildPrompt picks initial or improvement mode. Improvement iterates
// on the best candidate so far; if nothing usable exists yet (schema
// failures only), it falls back to the initial prompt.
func (c *Controller) buildPrompt(req Request, result *Result, index int) (string, error) {
	if index == 1 {
		return prompts.BuildInitial(req.Context, req.QualityTarget), nil
	}

	best := result.Best()
	if best == nil || best.JSON == "" {
		return prompts.BuildInitial(req.Context, req.QualityTarget), nil
	}
	return prompts.BuildImprovement(req.Context, best.JSON, best.Metrics), nil
}

func (c *Controller) deltaFor(result *Result, iter *Iteration) float64 {
	if len(result.Iterations) == 0 {
		return 0
	}
	prev := result.Iterations[len(result.Iterations)-1]
	return iter.Metrics.Overall() - prev.Metrics.Overall()
}

// stopReasonFor distinguishes caller cancellation from time-budget
// expiry. The parent context being done means the caller cancelled;
// otherwise the run's own deadline fired.
func (c *Controller) stopReasonFor(parent context.Context, err error) StopReason {
	switch {
	case parent.Err() != nil:
		return StopCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return StopTimeBudget
	case errors.Is(err, context.Canceled):
		return StopCancelled
	default:
		return StopFatalError
	}
}

// finalize fills the result from the best iteration and records run
// metrics.
func (c *Controller) finalize(result *Result, elapsed time.Duration) {
	result.Duration = elapsed

	if best := result.Best(); best != nil {
		// Only reaching the target counts as success. Exhaustion,
		// cancellation and fatal errors all report failure, but the
		// best artifacts still ride along for inspection.
		result.Success = result.StopReason == StopTargetReached
		result.FinalJSON = best.JSON
		result.FinalXML = best.XML
		result.FinalMetrics = best.Metrics
	} else {
		result.Success = false
		if result.StopReason == StopTargetReached {
			// Unreachable by construction, target needs XML.
			result.StopReason = StopFatalError
		}
		if result.Err == nil && result.StopReason == StopFatalError {
			result.Err = fmt.Errorf("no diagram produced")
		}
	}

	c.observeRun(result)

	c.logger.Info("Run finished",
		"success", result.Success,
		"stop_reason", result.StopReason,
		"iterations", len(result.Iterations),
		"overall", result.FinalMetrics.Overall(),
		"duration", result.Duration)
}

func (c *Controller) observeIteration(iter *Iteration) {
	if c.metrics == nil {
		return
	}
	c.metrics.iterationDuration.Observe(iter.Duration.Seconds())
	c.metrics.iterationScore.Observe(iter.Metrics.Overall())
	c.metrics.fixesApplied.Add(float64(len(iter.Fixes)))
}

func (c *Controller) observeRun(result *Result) {
	if c.metrics == nil {
		return
	}
	c.metrics.runs.WithLabelValues(string(result.StopReason)).Inc()
	c.metrics.runIterations.Observe(float64(len(result.Iterations)))
	if result.FinalXML != "" {
		c.metrics.finalScore.Observe(result.FinalMetrics.Overall())
	}
}

// schemaFailureMetrics builds the zero-score metrics recorded when the
// response could not become a process document. The problems surface
// as critical issues so the next improvement prompt names them.
func schemaFailureMetrics(problems ...string) quality.Metrics {
	m := quality.Metrics{}
	for _, p := range problems {
		m.Issues = append(m.Issues, quality.Issue{
			RuleCode:   validator.RuleXMLWellFormed,
			Severity:   quality.SeverityCritical,
			Message:    p,
			Suggestion: "respond with a single JSON document matching the requested schema",
		})
	}
	return m
}
