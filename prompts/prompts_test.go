package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/bpmnforge/process"
	"github.com/c360studio/bpmnforge/quality"
)

func testContext(t *testing.T) *process.Context {
	t.Helper()
	ctx, err := process.NewAnalyzer().Analyze(
		"Customer submits order. System checks stock. If stock is available, system charges payment.",
		"Appendix: payment must be PCI compliant.",
		process.DomainGeneral)
	require.NoError(t, err)
	return ctx
}

func TestBuildInitialContainsContext(t *testing.T) {
	prompt := BuildInitial(testContext(t), 0.8)

	assert.Contains(t, prompt, "target quality: 80%")
	assert.Contains(t, prompt, "Customer submits order")
	assert.Contains(t, prompt, "## Participants To Represent")
	assert.Contains(t, prompt, "- Customer")
	assert.Contains(t, prompt, "## Decision Points")
	assert.Contains(t, prompt, "## Source Material")
	assert.Contains(t, prompt, "PCI compliant")
}

func TestBuildInitialOmitsEmptySections(t *testing.T) {
	ctx, err := process.NewAnalyzer().Analyze("Something happens here twice.", "", process.DomainGeneral)
	require.NoError(t, err)

	prompt := BuildInitial(ctx, 0.7)
	assert.NotContains(t, prompt, "## Source Material")
	assert.NotContains(t, prompt, "## Decision Points")
	assert.NotContains(t, prompt, "## Domain")
}

func TestBuildImprovementOrdersIssuesBySeverity(t *testing.T) {
	metrics := quality.Metrics{
		Issues: []quality.Issue{
			{Severity: quality.SeverityMinor, Message: "cosmetic problem"},
			{Severity: quality.SeverityCritical, Message: "missing end event"},
			{Severity: quality.SeverityMajor, Message: "lane not assigned"},
		},
		Suggestions: []string{"name the gateway branches"},
	}

	prompt := BuildImprovement(testContext(t), `{"elements": []}`, metrics)

	critical := strings.Index(prompt, "missing end event")
	major := strings.Index(prompt, "lane not assigned")
	minor := strings.Index(prompt, "cosmetic problem")
	require.True(t, critical >= 0 && major >= 0 && minor >= 0)
	assert.Less(t, critical, major)
	assert.Less(t, major, minor)

	assert.Contains(t, prompt, "Focus on the critical issues first.")
	assert.Contains(t, prompt, "1. [CRITICAL] missing end event")
	assert.Contains(t, prompt, "name the gateway branches")
	assert.Contains(t, prompt, "## Current Document")
	assert.Contains(t, prompt, `{"elements": []}`)
}

func TestBuildImprovementCapsIssueList(t *testing.T) {
	var issues []quality.Issue
	for i := 0; i < 15; i++ {
		issues = append(issues, quality.Issue{Severity: quality.SeverityMinor, Message: "issue"})
	}

	prompt := BuildImprovement(testContext(t), "{}", quality.Metrics{Issues: issues})
	assert.Contains(t, prompt, "(5 further issues omitted)")
	assert.NotContains(t, prompt, "11. [MINOR]")
}

func TestBuildImprovementKeepsOriginalRequirements(t *testing.T) {
	prompt := BuildImprovement(testContext(t), "{}", quality.Metrics{})
	assert.Contains(t, prompt, "## Original Requirements")
	assert.Contains(t, prompt, "- Participant: Customer")
}

func TestSystemPromptStatesSchema(t *testing.T) {
	prompt := SystemPrompt()
	assert.Contains(t, prompt, "process_name")
	assert.Contains(t, prompt, "intermediateCatchEvent")
	assert.Contains(t, prompt, "message flows connect")
}
