// Package validator checks candidate BPMN XML against BPMN 2.0 rules and
// against the business context the diagram was generated from, producing
// quality metrics. The dimension boundary is: syntactic covers XML/schema
// validity (parseability, id uniqueness, reference resolution, naming),
// structural covers graph-level BPMN patterns (start/end events, gateway
// balance, reachability, pool organization), and semantic covers coverage
// of the requested process. A low score is a valid result, never an error.
package validator

import (
	"log/slog"
	"strings"

	"github.com/c360studio/bpmnforge/bpmn"
	"github.com/c360studio/bpmnforge/process"
	"github.com/c360studio/bpmnforge/quality"
)

// Rule codes reported in issues.
const (
	RuleStartEventRequired = "STRUCT_001"
	RuleEndEventRequired   = "STRUCT_002"
	RuleConnectivity       = "STRUCT_003"
	RuleGatewayFlows       = "STRUCT_004"
	RulePoolOrganization   = "STRUCT_005"
	RuleMessageFlowTarget  = "STRUCT_008"
	RuleElementNaming      = "SYN_005"
	RuleActivityCoverage   = "SEM_001"
	RuleActorCoverage      = "SEM_002"
	RuleXMLWellFormed      = "SYN_001"
	RuleUniqueIDs          = "SYN_002"
	RuleFlowReferences     = "SYN_003"

	// SYN_004 is reported by the converter, not a validator rule.
	RuleMessageFlowRefs = bpmn.RuleMessageFlowRefs
)

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// Validator computes quality metrics for candidate diagrams. Safe for
// concurrent use.
type Validator struct {
	logger *slog.Logger
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate scores the XML against BPMN rules and the originating context.
// It never fails: unparseable XML yields near-zero metrics with a
// critical syntactic issue.
func (v *Validator) Validate(xmlText string, pctx *process.Context) quality.Metrics {
	def, err := bpmn.Parse(xmlText)
	if err != nil {
		return quality.Metrics{
			Issues: []quality.Issue{{
				RuleCode:   RuleXMLWellFormed,
				Severity:   quality.SeverityCritical,
				Message:    "candidate is not well-formed BPMN XML: " + err.Error(),
				Suggestion: "regenerate the process document; the previous output could not be parsed",
			}},
			Suggestions: []string{"emit a single JSON document matching the requested schema"},
		}
	}

	metrics := v.ValidateModel(def, pctx)

	v.logger.Debug("Validated candidate diagram",
		"structural", metrics.Structural,
		"semantic", metrics.Semantic,
		"syntactic", metrics.Syntactic,
		"overall", metrics.Overall(),
		"issues", len(metrics.Issues))

	return metrics
}

// ValidateModel scores an already parsed model. The improvement engine
// uses this to re-score after mechanical patches without a serialize/parse
// round-trip.
func (v *Validator) ValidateModel(def *bpmn.Definitions, pctx *process.Context) quality.Metrics {
	var metrics quality.Metrics

	syntacticChecks := v.checkSyntactic(def, &metrics)
	structuralChecks := v.checkStructural(def, &metrics)
	metrics.Syntactic = passRatio(syntacticChecks)
	metrics.Structural = passRatio(structuralChecks)
	metrics.Semantic = v.checkSemantic(def, pctx, &metrics)

	return metrics
}

// checkResult is one pass/fail check outcome.
type checkResult struct {
	passed bool
}

func passRatio(results []checkResult) float64 {
	if len(results) == 0 {
		return 1.0
	}
	passed := 0
	for _, r := range results {
		if r.passed {
			passed++
		}
	}
	return float64(passed) / float64(len(results))
}

// checkSyntactic runs schema-level checks: the XML parsed (counted as the
// first passing check), ids are unique, every flow reference resolves,
// and elements carry names.
func (v *Validator) checkSyntactic(def *bpmn.Definitions, metrics *quality.Metrics) []checkResult {
	results := []checkResult{{passed: true}} // well-formed: Parse succeeded

	// Unique ids across the whole definitions document.
	seen := make(map[string]bool)
	unique := true
	for _, proc := range def.Processes {
		for _, node := range proc.Nodes {
			if seen[node.ID] {
				unique = false
				metrics.Issues = append(metrics.Issues, quality.Issue{
					RuleCode:   RuleUniqueIDs,
					Severity:   quality.SeverityCritical,
					Message:    "duplicate element id " + node.ID,
					ElementRef: node.ID,
					Suggestion: "assign a unique id to every element",
				})
			}
			seen[node.ID] = true
		}
	}
	results = append(results, checkResult{passed: unique})

	// Sequence flow references resolve within their process.
	refsOK := true
	for _, proc := range def.Processes {
		nodeIDs := make(map[string]bool, len(proc.Nodes))
		for _, node := range proc.Nodes {
			nodeIDs[node.ID] = true
		}
		for _, f := range proc.Flows {
			for _, ref := range []string{f.SourceRef, f.TargetRef} {
				if !nodeIDs[ref] {
					refsOK = false
					metrics.Issues = append(metrics.Issues, quality.Issue{
						RuleCode:   RuleFlowReferences,
						Severity:   quality.SeverityCritical,
						Message:    "sequence flow " + f.ID + " references missing element " + ref,
						ElementRef: f.ID,
						Suggestion: "connect the flow to elements defined in the same pool",
					})
				}
			}
		}
	}
	results = append(results, checkResult{passed: refsOK})

	// Elements are named.
	named := true
	for _, proc := range def.Processes {
		for _, node := range proc.Nodes {
			if strings.TrimSpace(node.Name) == "" {
				named = false
				metrics.Issues = append(metrics.Issues, quality.Issue{
					RuleCode:    RuleElementNaming,
					Severity:    quality.SeverityMinor,
					Message:     "element " + node.ID + " has no name",
					ElementRef:  node.ID,
					Suggestion:  "give every element a short business-meaningful name",
					AutoFixable: true,
				})
			}
		}
	}
	results = append(results, checkResult{passed: named})

	return results
}

// checkStructural runs graph-level checks per process: start/end events
// present, gateways balanced, every node reachable from a start event,
// and pools organized (lanes cover the nodes when lanes exist).
func (v *Validator) checkStructural(def *bpmn.Definitions, metrics *quality.Metrics) []checkResult {
	var results []checkResult

	for _, proc := range def.Processes {
		if len(proc.Nodes) == 0 {
			continue
		}

		starts := proc.NodesByType(bpmn.TypeStart)
		hasStart := len(starts) > 0
		if !hasStart {
			metrics.Issues = append(metrics.Issues, quality.Issue{
				RuleCode:    RuleStartEventRequired,
				Severity:    quality.SeverityCritical,
				Message:     "process " + proc.ID + " has no start event",
				ElementRef:  proc.ID,
				Suggestion:  "add a start event and connect it to the first activity",
				AutoFixable: true,
			})
		}
		results = append(results, checkResult{passed: hasStart})

		hasEnd := len(proc.NodesByType(bpmn.TypeEnd)) > 0
		if !hasEnd {
			metrics.Issues = append(metrics.Issues, quality.Issue{
				RuleCode:    RuleEndEventRequired,
				Severity:    quality.SeverityCritical,
				Message:     "process " + proc.ID + " has no end event",
				ElementRef:  proc.ID,
				Suggestion:  "add an end event after the final activity",
				AutoFixable: true,
			})
		}
		results = append(results, checkResult{passed: hasEnd})

		results = append(results, v.checkGateways(proc, metrics))
		results = append(results, v.checkReachability(proc, starts, metrics))
		results = append(results, v.checkLanes(proc, metrics))
	}

	results = append(results, v.checkMessageFlows(def, metrics)...)

	return results
}

// checkGateways verifies each gateway either splits (≥2 outgoing) or
// joins (≥2 incoming).
func (v *Validator) checkGateways(proc *bpmn.Process, metrics *quality.Metrics) checkResult {
	ok := true
	for _, gw := range proc.NodesByType(bpmn.TypeExclusiveGateway, bpmn.TypeParallelGateway) {
		in := len(proc.Incoming(gw.ID))
		out := len(proc.Outgoing(gw.ID))
		if in < 2 && out < 2 {
			ok = false
			metrics.Issues = append(metrics.Issues, quality.Issue{
				RuleCode:   RuleGatewayFlows,
				Severity:   quality.SeverityCritical,
				Message:    "gateway " + gw.ID + " neither splits nor joins (needs ≥2 outgoing or ≥2 incoming flows)",
				ElementRef: gw.ID,
				Suggestion: "give the gateway at least two outgoing branches or remove it",
			})
		}
	}
	return checkResult{passed: ok}
}

// checkReachability walks sequence flows from the start events and flags
// unreachable nodes.
func (v *Validator) checkReachability(proc *bpmn.Process, starts []*bpmn.FlowNode, metrics *quality.Metrics) checkResult {
	if len(starts) == 0 {
		// Without a start event reachability is unmeasurable; the missing
		// start is already flagged, so don't double-penalize.
		return checkResult{passed: false}
	}

	reached := make(map[string]bool, len(proc.Nodes))
	queue := make([]string, 0, len(starts))
	for _, s := range starts {
		reached[s.ID] = true
		queue = append(queue, s.ID)
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, f := range proc.Outgoing(current) {
			if !reached[f.TargetRef] {
				reached[f.TargetRef] = true
				queue = append(queue, f.TargetRef)
			}
		}
	}

	ok := true
	for _, node := range proc.Nodes {
		if !reached[node.ID] {
			ok = false
			metrics.Issues = append(metrics.Issues, quality.Issue{
				RuleCode:    RuleConnectivity,
				Severity:    quality.SeverityCritical,
				Message:     "element " + node.ID + " is unreachable from any start event",
				ElementRef:  node.ID,
				Suggestion:  "connect the element into the sequence flow",
				AutoFixable: true,
			})
		}
	}
	return checkResult{passed: ok}
}

// checkLanes verifies that when lanes exist, they reference the process
// nodes they partition.
func (v *Validator) checkLanes(proc *bpmn.Process, metrics *quality.Metrics) checkResult {
	if len(proc.Lanes) == 0 {
		return checkResult{passed: true}
	}

	inLane := make(map[string]bool)
	for _, lane := range proc.Lanes {
		for _, ref := range lane.FlowNodeRefs {
			inLane[ref] = true
		}
	}

	ok := true
	for _, node := range proc.Nodes {
		if !inLane[node.ID] {
			ok = false
			metrics.Issues = append(metrics.Issues, quality.Issue{
				RuleCode:   RulePoolOrganization,
				Severity:   quality.SeverityMajor,
				Message:    "element " + node.ID + " is not assigned to any lane",
				ElementRef: node.ID,
				Suggestion: "assign every element to the lane of the role performing it",
			})
		}
	}
	return checkResult{passed: ok}
}

// checkMessageFlows verifies message flow endpoints resolve, cross pool
// boundaries, and do not target start events directly (the compliant
// pattern is an intermediate catch event).
func (v *Validator) checkMessageFlows(def *bpmn.Definitions, metrics *quality.Metrics) []checkResult {
	if def.Collaboration == nil || len(def.Collaboration.MessageFlows) == 0 {
		return nil
	}

	ok := true
	for _, mf := range def.Collaboration.MessageFlows {
		srcProc, _ := def.NodeByID(mf.SourceRef)
		tgtProc, tgtNode := def.NodeByID(mf.TargetRef)

		switch {
		case srcProc == nil || tgtProc == nil:
			ok = false
			metrics.Issues = append(metrics.Issues, quality.Issue{
				RuleCode:   RuleMessageFlowTarget,
				Severity:   quality.SeverityMajor,
				Message:    "message flow " + mf.ID + " has an unresolved endpoint",
				ElementRef: mf.ID,
				Suggestion: "point the message flow at an existing event or task",
			})
		case srcProc == tgtProc:
			ok = false
			metrics.Issues = append(metrics.Issues, quality.Issue{
				RuleCode:   RuleMessageFlowTarget,
				Severity:   quality.SeverityMajor,
				Message:    "message flow " + mf.ID + " connects elements of the same pool",
				ElementRef: mf.ID,
				Suggestion: "use a sequence flow inside a pool; message flows connect different pools",
			})
		case tgtNode.Type == bpmn.TypeStart:
			ok = false
			metrics.Issues = append(metrics.Issues, quality.Issue{
				RuleCode:    RuleMessageFlowTarget,
				Severity:    quality.SeverityMajor,
				Message:     "message flow " + mf.ID + " targets start event " + mf.TargetRef,
				ElementRef:  mf.ID,
				Suggestion:  "target an intermediate catch event so the receiving pool starts independently",
				AutoFixable: true,
			})
		}
	}
	return []checkResult{{passed: ok}}
}

// checkSemantic measures how much of the requested process the diagram
// actually represents: the fraction of context activities matched by
// element names plus the fraction of actors matched by pool, lane, or
// element names, averaged. Without any context terms, semantic scoring
// is vacuous and returns 1.
func (v *Validator) checkSemantic(def *bpmn.Definitions, pctx *process.Context, metrics *quality.Metrics) float64 {
	if pctx == nil || (len(pctx.Activities) == 0 && len(pctx.Actors) == 0) {
		return 1.0
	}

	var names []string
	for _, proc := range def.Processes {
		if proc.Name != "" {
			names = append(names, proc.Name)
		}
		for _, lane := range proc.Lanes {
			names = append(names, lane.Name)
		}
		for _, node := range proc.Nodes {
			names = append(names, node.Name)
		}
	}
	if def.Collaboration != nil {
		for _, p := range def.Collaboration.Participants {
			names = append(names, p.Name)
		}
	}

	scores := make([]float64, 0, 2)

	if len(pctx.Activities) > 0 {
		matched := 0
		for _, activity := range pctx.Activities {
			if coveredBy(activity, names) {
				matched++
			} else {
				metrics.Issues = append(metrics.Issues, quality.Issue{
					RuleCode:   RuleActivityCoverage,
					Severity:   quality.SeverityMajor,
					Message:    "requested activity not represented: " + activity,
					Suggestion: "add a task covering: " + activity,
				})
			}
		}
		scores = append(scores, float64(matched)/float64(len(pctx.Activities)))
	}

	if len(pctx.Actors) > 0 {
		matched := 0
		for _, actor := range pctx.Actors {
			if coveredBy(actor, names) {
				matched++
			} else {
				metrics.Issues = append(metrics.Issues, quality.Issue{
					RuleCode:   RuleActorCoverage,
					Severity:   quality.SeverityMajor,
					Message:    "requested actor not represented: " + actor,
					Suggestion: "add a pool or lane for: " + actor,
				})
			}
		}
		scores = append(scores, float64(matched)/float64(len(pctx.Actors)))
	}

	total := 0.0
	for _, s := range scores {
		total += s
	}
	return total / float64(len(scores))
}

// coveredBy reports whether the term is fuzzily represented in any of the
// names: a majority of the term's significant tokens appear as substrings
// of a single name, or vice versa.
func coveredBy(term string, names []string) bool {
	termTokens := significantTokens(term)
	if len(termTokens) == 0 {
		return true
	}

	for _, name := range names {
		lower := strings.ToLower(name)
		if lower == "" {
			continue
		}
		matched := 0
		for _, tok := range termTokens {
			if strings.Contains(lower, tok) {
				matched++
			}
		}
		if matched*2 >= len(termTokens) {
			return true
		}
	}
	return false
}

// stopwords excluded from token matching.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "to": true, "is": true, "in": true, "it": true,
	"its": true, "if": true, "then": true, "for": true,
}

func significantTokens(term string) []string {
	fields := strings.FieldsFunc(strings.ToLower(term), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 && !stopwords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
