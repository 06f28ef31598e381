package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/bpmnforge/quality"
)

// Report renders a human-readable run summary: quality progression per
// iteration, applied fixes, and the issues still open on the final
// diagram.
func (r *Result) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s (%d iteration(s), %s)\n",
		r.StopReason, len(r.Iterations), r.Duration.Round(time.Millisecond))

	if len(r.Iterations) > 0 {
		b.WriteString("\nQuality progression:\n")
		for _, iter := range r.Iterations {
			line := fmt.Sprintf("  %d. %.2f (%s)", iter.Index, iter.Metrics.Overall(), iter.Metrics.Level())
			if iter.Delta != 0 {
				line += fmt.Sprintf(" %+.2f", iter.Delta)
			}
			if iter.XML == "" {
				line += " [no diagram]"
			}
			b.WriteString(line + "\n")

			for _, fix := range iter.Fixes {
				fmt.Fprintf(&b, "     fixed %s: %s\n", fix.RuleCode, fix.Description)
			}
		}
	}

	if r.FinalXML != "" {
		fmt.Fprintf(&b, "\nFinal score: %.2f (%s)\n", r.FinalMetrics.Overall(), r.FinalMetrics.Level())
		fmt.Fprintf(&b, "  structural %.2f, semantic %.2f, syntactic %.2f\n",
			r.FinalMetrics.Structural, r.FinalMetrics.Semantic, r.FinalMetrics.Syntactic)

		if open := quality.RankIssues(r.FinalMetrics.Issues); len(open) > 0 {
			b.WriteString("\nOpen issues:\n")
			for _, issue := range open {
				fmt.Fprintf(&b, "  [%s] %s: %s\n", issue.Severity, issue.RuleCode, issue.Message)
			}
		}
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "\nFailed: %v\n", r.Err)
	}

	return b.String()
}
