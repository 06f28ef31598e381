package quality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallIsWeightedSum(t *testing.T) {
	tests := []struct {
		name       string
		structural float64
		semantic   float64
		syntactic  float64
		want       float64
	}{
		{"all zero", 0, 0, 0, 0},
		{"all perfect", 1, 1, 1, 1},
		{"structural only", 1, 0, 0, 0.40},
		{"semantic only", 0, 1, 0, 0.35},
		{"syntactic only", 0, 0, 1, 0.25},
		{"mixed", 0.5, 0.8, 0.25, 0.40*0.5 + 0.35*0.8 + 0.25*0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Metrics{Structural: tt.structural, Semantic: tt.semantic, Syntactic: tt.syntactic}
			assert.InDelta(t, tt.want, m.Overall(), 1e-9)
		})
	}
}

func TestOverallNeverDrifts(t *testing.T) {
	// Overall is derived, so mutating a component must move the composite.
	m := Metrics{Structural: 0.5, Semantic: 0.5, Syntactic: 0.5}
	before := m.Overall()
	m.Structural = 1.0
	after := m.Overall()
	assert.InDelta(t, WeightStructural*0.5, after-before, 1e-9)
}

func TestLevel(t *testing.T) {
	tests := []struct {
		overall float64
		want    string
	}{
		{0.95, "excellent"},
		{0.80, "good"},
		{0.60, "fair"},
		{0.30, "poor"},
		{0.10, "invalid"},
	}

	for _, tt := range tests {
		// Drive the composite through the syntactic-free dimensions so the
		// arithmetic stays exact enough for threshold comparison.
		m := Metrics{Structural: tt.overall, Semantic: tt.overall, Syntactic: tt.overall}
		require.InDelta(t, tt.overall, m.Overall(), 1e-9)
		assert.Equal(t, tt.want, m.Level(), "overall=%v", tt.overall)
	}
}

func TestRankIssuesSeverityThenOccurrence(t *testing.T) {
	issues := []Issue{
		{RuleCode: "SEM_001", Severity: SeverityMinor, Message: "first minor"},
		{RuleCode: "STRUCT_001", Severity: SeverityCritical, Message: "first critical"},
		{RuleCode: "SEM_002", Severity: SeverityMajor, Message: "first major"},
		{RuleCode: "STRUCT_002", Severity: SeverityCritical, Message: "second critical"},
		{RuleCode: "SYN_001", Severity: SeverityWarning, Message: "a warning"},
		{RuleCode: "SEM_003", Severity: SeverityMinor, Message: "second minor"},
	}

	ranked := RankIssues(issues)

	codes := make([]string, len(ranked))
	for i, issue := range ranked {
		codes[i] = issue.RuleCode
	}
	assert.Equal(t, []string{"STRUCT_001", "STRUCT_002", "SEM_002", "SEM_001", "SEM_003", "SYN_001"}, codes)

	// Input order untouched.
	assert.Equal(t, "SEM_001", issues[0].RuleCode)
}

func TestCountBySeverity(t *testing.T) {
	m := Metrics{Issues: []Issue{
		{Severity: SeverityCritical},
		{Severity: SeverityCritical},
		{Severity: SeverityMinor},
	}}
	assert.Equal(t, 2, m.CountBySeverity(SeverityCritical))
	assert.Equal(t, 0, m.CountBySeverity(SeverityMajor))
	assert.Equal(t, 1, m.CountBySeverity(SeverityMinor))
}

func TestWeightsSumToOne(t *testing.T) {
	assert.True(t, math.Abs(WeightStructural+WeightSemantic+WeightSyntactic-1.0) < 1e-9)
}
