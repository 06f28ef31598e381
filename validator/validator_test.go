package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/bpmnforge/bpmn"
	"github.com/c360studio/bpmnforge/process"
	"github.com/c360studio/bpmnforge/quality"
)

const healthyProcessJSON = `{
  "process_name": "Order Fulfilment",
  "elements": [
    {"id": "start_1", "type": "start", "name": "Order placed"},
    {"id": "task_submit", "type": "userTask", "name": "Customer submits order"},
    {"id": "task_check", "type": "serviceTask", "name": "System checks stock"},
    {"id": "gw_1", "type": "exclusiveGateway", "name": "Stock available?"},
    {"id": "task_charge", "type": "serviceTask", "name": "System charges payment"},
    {"id": "task_ship", "type": "task", "name": "Warehouse ships order"},
    {"id": "end_ok", "type": "end", "name": "Order fulfilled"},
    {"id": "end_reject", "type": "end", "name": "Order rejected"}
  ],
  "flows": [
    {"id": "f1", "source": "start_1", "target": "task_submit"},
    {"id": "f2", "source": "task_submit", "target": "task_check"},
    {"id": "f3", "source": "task_check", "target": "gw_1"},
    {"id": "f4", "source": "gw_1", "target": "task_charge", "condition": "in stock"},
    {"id": "f5", "source": "gw_1", "target": "end_reject", "condition": "out of stock"},
    {"id": "f6", "source": "task_charge", "target": "task_ship"},
    {"id": "f7", "source": "task_ship", "target": "end_ok"}
  ]
}`

func mustXML(t *testing.T, jsonText string) string {
	t.Helper()
	doc, err := bpmn.ParseDocument(jsonText)
	require.NoError(t, err)
	xmlText, _ := bpmn.Convert(doc)
	return xmlText
}

func orderContext(t *testing.T) *process.Context {
	t.Helper()
	ctx, err := process.NewAnalyzer().Analyze(
		"Customer submits order. System checks stock. System charges payment. Warehouse ships order.",
		"", process.DomainGeneral)
	require.NoError(t, err)
	return ctx
}

func TestValidateHealthyDiagramScoresHigh(t *testing.T) {
	v := New()
	metrics := v.Validate(mustXML(t, healthyProcessJSON), orderContext(t))

	assert.Equal(t, 1.0, metrics.Syntactic, "issues: %v", metrics.Issues)
	assert.Equal(t, 1.0, metrics.Structural, "issues: %v", metrics.Issues)
	assert.Equal(t, 1.0, metrics.Semantic, "issues: %v", metrics.Issues)
	assert.GreaterOrEqual(t, metrics.Overall(), 0.9)
}

func TestValidateUnparseableXMLScoresNearZero(t *testing.T) {
	v := New()
	metrics := v.Validate("this is not xml at all", orderContext(t))

	assert.Equal(t, 0.0, metrics.Overall())
	require.NotEmpty(t, metrics.Issues)
	assert.Equal(t, RuleXMLWellFormed, metrics.Issues[0].RuleCode)
	assert.Equal(t, quality.SeverityCritical, metrics.Issues[0].Severity)
}

func TestValidateMissingStartAndEndEvents(t *testing.T) {
	xmlText := `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL" id="d1" targetNamespace="t">
  <bpmn:process id="Process_1" isExecutable="false">
    <bpmn:task id="t1" name="Only task"/>
  </bpmn:process>
</bpmn:definitions>`

	v := New()
	metrics := v.Validate(xmlText, nil)

	codes := ruleCodes(metrics.Issues)
	assert.Contains(t, codes, RuleStartEventRequired)
	assert.Contains(t, codes, RuleEndEventRequired)
	assert.Less(t, metrics.Structural, 0.5)
}

func TestValidateFlagsUnreachableElement(t *testing.T) {
	xmlText := mustXML(t, `{
		"elements": [
			{"id": "s", "type": "start", "name": "Start"},
			{"id": "t1", "type": "task", "name": "Connected"},
			{"id": "t2", "type": "task", "name": "Orphan"},
			{"id": "e", "type": "end", "name": "End"}
		],
		"flows": [
			{"id": "f1", "source": "s", "target": "t1"},
			{"id": "f2", "source": "t1", "target": "e"}
		]
	}`)

	v := New()
	metrics := v.Validate(xmlText, nil)

	var found *quality.Issue
	for i := range metrics.Issues {
		if metrics.Issues[i].RuleCode == RuleConnectivity {
			found = &metrics.Issues[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "t2", found.ElementRef)
	assert.True(t, found.AutoFixable)
	assert.Less(t, metrics.Structural, 1.0)
}

func TestValidateFlagsUnbalancedGateway(t *testing.T) {
	xmlText := mustXML(t, `{
		"elements": [
			{"id": "s", "type": "start", "name": "Start"},
			{"id": "gw", "type": "exclusiveGateway", "name": "Pointless?"},
			{"id": "e", "type": "end", "name": "End"}
		],
		"flows": [
			{"id": "f1", "source": "s", "target": "gw"},
			{"id": "f2", "source": "gw", "target": "e"}
		]
	}`)

	v := New()
	metrics := v.Validate(xmlText, nil)
	assert.Contains(t, ruleCodes(metrics.Issues), RuleGatewayFlows)
}

func TestValidateFlagsMessageFlowIntoStartEvent(t *testing.T) {
	xmlText := mustXML(t, `{
		"participants": [
			{"id": "a", "name": "Customer"},
			{"id": "b", "name": "Supplier"}
		],
		"elements": [
			{"id": "s1", "type": "start", "name": "Need identified", "participant": "a"},
			{"id": "t1", "type": "task", "name": "Send request", "participant": "a"},
			{"id": "e1", "type": "end", "name": "Done", "participant": "a"},
			{"id": "s2", "type": "start", "name": "Request received", "participant": "b"},
			{"id": "e2", "type": "end", "name": "Handled", "participant": "b"}
		],
		"flows": [
			{"id": "f1", "source": "s1", "target": "t1"},
			{"id": "f2", "source": "t1", "target": "e1"},
			{"id": "f3", "source": "s2", "target": "e2"}
		],
		"message_flows": [
			{"id": "m1", "source": "t1", "target": "s2"}
		]
	}`)

	v := New()
	metrics := v.Validate(xmlText, nil)

	var found *quality.Issue
	for i := range metrics.Issues {
		if metrics.Issues[i].RuleCode == RuleMessageFlowTarget {
			found = &metrics.Issues[i]
		}
	}
	require.NotNil(t, found)
	assert.True(t, found.AutoFixable)
	assert.Contains(t, found.Message, "targets start event")
}

func TestValidateSemanticCoverage(t *testing.T) {
	v := New()

	// Diagram that represents nothing the context asked for.
	xmlText := mustXML(t, `{
		"elements": [
			{"id": "s", "type": "start", "name": "Begin"},
			{"id": "t", "type": "task", "name": "Mystery work"},
			{"id": "e", "type": "end", "name": "Finish"}
		],
		"flows": [
			{"id": "f1", "source": "s", "target": "t"},
			{"id": "f2", "source": "t", "target": "e"}
		]
	}`)

	metrics := v.Validate(xmlText, orderContext(t))
	assert.Less(t, metrics.Semantic, 0.5)
	assert.Contains(t, ruleCodes(metrics.Issues), RuleActorCoverage)

	// Same diagram without context: semantic scoring is vacuous.
	noContext := v.Validate(xmlText, nil)
	assert.Equal(t, 1.0, noContext.Semantic)
}

func TestValidateLaneOrganization(t *testing.T) {
	xmlText := mustXML(t, `{
		"participants": [
			{"id": "p1", "name": "Back office", "lanes": [{"id": "l1", "name": "Clerks"}]}
		],
		"elements": [
			{"id": "s", "type": "start", "name": "Start", "participant": "p1", "lane": "l1"},
			{"id": "t", "type": "task", "name": "File papers", "participant": "p1"},
			{"id": "e", "type": "end", "name": "End", "participant": "p1", "lane": "l1"}
		],
		"flows": [
			{"id": "f1", "source": "s", "target": "t"},
			{"id": "f2", "source": "t", "target": "e"}
		]
	}`)

	v := New()
	metrics := v.Validate(xmlText, nil)

	var found *quality.Issue
	for i := range metrics.Issues {
		if metrics.Issues[i].RuleCode == RulePoolOrganization {
			found = &metrics.Issues[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "t", found.ElementRef)
}

func TestOverallMatchesWeightedComponents(t *testing.T) {
	v := New()
	metrics := v.Validate(mustXML(t, healthyProcessJSON), orderContext(t))

	want := quality.WeightStructural*metrics.Structural +
		quality.WeightSemantic*metrics.Semantic +
		quality.WeightSyntactic*metrics.Syntactic
	assert.InDelta(t, want, metrics.Overall(), 1e-9)
}

func ruleCodes(issues []quality.Issue) []string {
	codes := make([]string, len(issues))
	for i, issue := range issues {
		codes[i] = issue.RuleCode
	}
	return codes
}
