// Package quality defines the scoring model for generated BPMN diagrams.
// A diagram is scored along three weighted dimensions: structural
// (graph-level BPMN pattern correctness), semantic (coverage of the
// requested business process), and syntactic (schema and reference
// validity of the emitted XML).
package quality

import "sort"

// Dimension weights. The overall score is always recomputed from these;
// it is never stored independently.
const (
	WeightStructural = 0.40
	WeightSemantic   = 0.35
	WeightSyntactic  = 0.25
)

// Severity classifies how badly an issue violates BPMN 2.0.
type Severity string

// Severity levels, ordered from most to least severe.
const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityWarning  Severity = "warning"
)

// severityRank orders severities for sorting. Lower is more severe.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityMajor:    1,
	SeverityMinor:    2,
	SeverityWarning:  3,
}

// Rank returns the sort rank of a severity. Unknown severities sort last.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// Issue describes a single compliance problem found in a candidate diagram.
type Issue struct {
	// RuleCode identifies the violated rule (e.g. "STRUCT_001").
	RuleCode string `json:"rule_code"`

	// Severity classifies the issue.
	Severity Severity `json:"severity"`

	// Message describes the problem.
	Message string `json:"message"`

	// ElementRef is the id of the offending element, if the issue is
	// attributable to one.
	ElementRef string `json:"element_ref,omitempty"`

	// Suggestion describes how to resolve the issue.
	Suggestion string `json:"suggestion,omitempty"`

	// AutoFixable marks issues the improvement engine can patch
	// mechanically without an LLM round-trip.
	AutoFixable bool `json:"auto_fixable,omitempty"`
}

// Metrics holds the per-dimension scores for one candidate diagram.
// All scores are in [0,1].
type Metrics struct {
	Structural float64 `json:"structural"`
	Semantic   float64 `json:"semantic"`
	Syntactic  float64 `json:"syntactic"`

	// Issues lists every problem found, in first-occurrence order.
	Issues []Issue `json:"issues,omitempty"`

	// Suggestions lists free-form improvement hints not tied to a rule.
	Suggestions []string `json:"suggestions,omitempty"`
}

// Overall returns the weighted composite score. It is computed on demand
// so the composite can never drift from its components.
func (m Metrics) Overall() float64 {
	return WeightStructural*m.Structural +
		WeightSemantic*m.Semantic +
		WeightSyntactic*m.Syntactic
}

// Level maps the overall score onto a human-readable compliance level.
func (m Metrics) Level() string {
	switch overall := m.Overall(); {
	case overall >= 0.9:
		return "excellent"
	case overall >= 0.75:
		return "good"
	case overall >= 0.5:
		return "fair"
	case overall >= 0.25:
		return "poor"
	default:
		return "invalid"
	}
}

// CountBySeverity returns the number of issues at the given severity.
func (m Metrics) CountBySeverity(s Severity) int {
	n := 0
	for _, issue := range m.Issues {
		if issue.Severity == s {
			n++
		}
	}
	return n
}

// RankIssues returns the issues sorted by severity (critical first) with
// first-occurrence order preserved within each severity class.
func RankIssues(issues []Issue) []Issue {
	ranked := make([]Issue, len(issues))
	copy(ranked, issues)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Severity.Rank() < ranked[j].Severity.Rank()
	})
	return ranked
}
