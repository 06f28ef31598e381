// Package prompts renders the generation and improvement prompts sent to
// the LLM. The model is asked for a constrained JSON document rather
// than raw XML: JSON is far less error-prone for an LLM to emit, and it
// has exactly one deterministic downstream transform into BPMN.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360studio/bpmnforge/bpmn"
	"github.com/c360studio/bpmnforge/process"
	"github.com/c360studio/bpmnforge/quality"
)

// maxPromptIssues caps how many issues an improvement prompt enumerates.
// Beyond this the model loses focus; the most severe issues come first
// and the rest wait for the next iteration.
const maxPromptIssues = 10

// maxPromptSuggestions caps free-form suggestions in the prompt.
const maxPromptSuggestions = 5

// SystemPrompt returns the system prompt shared by both modes.
func SystemPrompt() string {
	return `You are a BPMN 2.0 process modeling expert. You convert business
process descriptions into structured process documents.

## Rules

- Every process (pool) must have at least one start event and one end event
- Gateways must either split (2+ outgoing flows) or join (2+ incoming flows)
- Every element must be reachable from a start event through sequence flows
- Sequence flows connect elements within one pool; message flows connect
  elements of different pools, never two elements of the same pool
- Message flows must not target a start event; use an intermediate catch
  event in the receiving pool instead
- Every element needs a unique id and a short business-meaningful name

## Output Format

Respond with a single JSON document and nothing else:

` + "```json" + `
{
  "process_name": "Human-readable process name",
  "participants": [
    {"id": "p1", "name": "Pool name", "lanes": [{"id": "l1", "name": "Lane name"}]}
  ],
  "elements": [
    {"id": "e1", "type": "start", "name": "...", "participant": "p1", "lane": "l1"}
  ],
  "flows": [
    {"id": "f1", "source": "e1", "target": "e2", "condition": "optional branch label"}
  ],
  "message_flows": [
    {"id": "m1", "name": "message", "source": "e2", "target": "e9"}
  ]
}
` + "```" + `

Valid element types: start, end, task, userTask, serviceTask,
exclusiveGateway, parallelGateway, intermediateCatchEvent.`
}

// BuildInitial renders the first-pass generation prompt from the
// analyzed context and the quality bar the caller asked for.
func BuildInitial(ctx *process.Context, qualityTarget float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Model the following business process as BPMN 2.0 (target quality: %.0f%%).\n\n", qualityTarget*100)
	fmt.Fprintf(&b, "## Process Description\n\n%s\n", strings.TrimSpace(ctx.Description))

	if ctx.Domain != process.DomainGeneral {
		fmt.Fprintf(&b, "\n## Domain\n\n%s. Use the conventions of this industry.\n", ctx.Domain)
	}

	if len(ctx.Actors) > 0 {
		b.WriteString("\n## Participants To Represent\n\n")
		for _, actor := range ctx.Actors {
			fmt.Fprintf(&b, "- %s\n", actor)
		}
	}

	if len(ctx.Activities) > 0 {
		b.WriteString("\n## Activities To Cover\n\n")
		for _, activity := range ctx.Activities {
			fmt.Fprintf(&b, "- %s\n", activity)
		}
	}

	if len(ctx.DecisionPoints) > 0 {
		b.WriteString("\n## Decision Points (model as gateways)\n\n")
		for _, decision := range ctx.DecisionPoints {
			fmt.Fprintf(&b, "- %s\n", decision)
		}
	}

	if ctx.SourceMaterial != "" {
		fmt.Fprintf(&b, "\n## Source Material\n\n%s\n", strings.TrimSpace(ctx.SourceMaterial))
	}

	b.WriteString("\nProduce the JSON document now.")
	return b.String()
}

// BuildImprovement renders the iteration-N prompt: the prior document
// plus its unresolved issues in priority order (highest severity first)
// and the validator's suggestions, so the model targets concrete
// deficiencies instead of regenerating from scratch.
func BuildImprovement(ctx *process.Context, priorJSON string, priorMetrics quality.Metrics) string {
	var b strings.Builder

	b.WriteString("Improve the following BPMN process document. Fix the listed issues while preserving the business content.\n")

	focus := focusSeverity(priorMetrics.Issues)
	if focus != "" {
		fmt.Fprintf(&b, "\nFocus on the %s issues first.\n", focus)
	}

	ranked := quality.RankIssues(priorMetrics.Issues)
	if len(ranked) > 0 {
		b.WriteString("\n## Issues To Fix (in priority order)\n\n")
		for i, issue := range ranked {
			if i >= maxPromptIssues {
				fmt.Fprintf(&b, "- (%d further issues omitted)\n", len(ranked)-maxPromptIssues)
				break
			}
			line := fmt.Sprintf("%d. [%s] %s", i+1, strings.ToUpper(string(issue.Severity)), issue.Message)
			if issue.Suggestion != "" {
				line += ". Fix: " + issue.Suggestion
			}
			b.WriteString(line + "\n")
		}
	}

	if len(priorMetrics.Suggestions) > 0 {
		b.WriteString("\n## Suggestions\n\n")
		for i, suggestion := range priorMetrics.Suggestions {
			if i >= maxPromptSuggestions {
				break
			}
			fmt.Fprintf(&b, "- %s\n", suggestion)
		}
	}

	if len(ctx.Activities) > 0 || len(ctx.Actors) > 0 {
		b.WriteString("\n## Original Requirements (must stay represented)\n\n")
		for _, actor := range ctx.Actors {
			fmt.Fprintf(&b, "- Participant: %s\n", actor)
		}
		for _, activity := range ctx.Activities {
			fmt.Fprintf(&b, "- Activity: %s\n", activity)
		}
	}

	fmt.Fprintf(&b, "\n## Current Document\n\n```json\n%s\n```\n", strings.TrimSpace(priorJSON))
	b.WriteString("\nRespond with the complete corrected JSON document.")
	return b.String()
}

// focusSeverity names the most severe class present, mirroring the
// progressive category-by-category repair strategy: the model fixes the
// worst class before being distracted by style-level findings.
func focusSeverity(issues []quality.Issue) string {
	best := ""
	bestRank := len(issues) + 10
	for _, issue := range issues {
		if r := issue.Severity.Rank(); r < bestRank {
			bestRank = r
			best = string(issue.Severity)
		}
	}
	return best
}

// DocumentJSON renders a document as indented JSON for prompt embedding.
func DocumentJSON(doc *bpmn.Document) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal process document: %w", err)
	}
	return string(data), nil
}
