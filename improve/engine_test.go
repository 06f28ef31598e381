package improve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/bpmnforge/bpmn"
)

func buildDef(t *testing.T, jsonText string) *bpmn.Definitions {
	t.Helper()
	doc, err := bpmn.ParseDocument(jsonText)
	require.NoError(t, err)
	def, _ := bpmn.Build(doc)
	return def
}

func TestApplyAddsMissingEndEvent(t *testing.T) {
	def := buildDef(t, `{
		"elements": [
			{"id": "s", "type": "start", "name": "Start"},
			{"id": "t1", "type": "task", "name": "Work"},
			{"id": "t2", "type": "task", "name": "More work"}
		],
		"flows": [
			{"id": "f1", "source": "s", "target": "t1"},
			{"id": "f2", "source": "t1", "target": "t2"}
		]
	}`)

	engine := NewEngine()
	fixes := engine.Apply(def)

	require.Len(t, fixes, 1)
	assert.Equal(t, "STRUCT_002", fixes[0].RuleCode)

	proc := def.Processes[0]
	ends := proc.NodesByType(bpmn.TypeEnd)
	require.Len(t, ends, 1)

	// Wired from the terminal task.
	incoming := proc.Incoming(ends[0].ID)
	require.Len(t, incoming, 1)
	assert.Equal(t, "t2", incoming[0].SourceRef)
}

func TestApplyAddsMissingStartEvent(t *testing.T) {
	def := buildDef(t, `{
		"elements": [
			{"id": "t1", "type": "task", "name": "Work"},
			{"id": "e", "type": "end", "name": "Done"}
		],
		"flows": [
			{"id": "f1", "source": "t1", "target": "e"}
		]
	}`)

	engine := NewEngine()
	fixes := engine.Apply(def)

	require.Len(t, fixes, 1)
	assert.Equal(t, "STRUCT_001", fixes[0].RuleCode)

	proc := def.Processes[0]
	starts := proc.NodesByType(bpmn.TypeStart)
	require.Len(t, starts, 1)

	outgoing := proc.Outgoing(starts[0].ID)
	require.Len(t, outgoing, 1)
	assert.Equal(t, "t1", outgoing[0].TargetRef)
}

func TestApplyRetargetsMessageFlowIntoStartEvent(t *testing.T) {
	def := buildDef(t, `{
		"participants": [
			{"id": "a", "name": "Customer"},
			{"id": "b", "name": "Supplier"}
		],
		"elements": [
			{"id": "s1", "type": "start", "name": "Need identified", "participant": "a"},
			{"id": "t1", "type": "task", "name": "Send request", "participant": "a"},
			{"id": "e1", "type": "end", "name": "Done", "participant": "a"},
			{"id": "s2", "type": "start", "name": "Request received", "participant": "b"},
			{"id": "t2", "type": "task", "name": "Handle request", "participant": "b"},
			{"id": "e2", "type": "end", "name": "Handled", "participant": "b"}
		],
		"flows": [
			{"id": "f1", "source": "s1", "target": "t1"},
			{"id": "f2", "source": "t1", "target": "e1"},
			{"id": "f3", "source": "s2", "target": "t2"},
			{"id": "f4", "source": "t2", "target": "e2"}
		],
		"message_flows": [
			{"id": "m1", "name": "request", "source": "t1", "target": "s2"}
		]
	}`)

	engine := NewEngine()
	fixes := engine.Apply(def)

	require.Len(t, fixes, 1)
	assert.Equal(t, "STRUCT_008", fixes[0].RuleCode)

	mf := def.Collaboration.MessageFlows[0]
	proc, target := def.NodeByID(mf.TargetRef)
	require.NotNil(t, target)
	assert.Equal(t, bpmn.TypeIntermediateCatch, target.Type)
	assert.Equal(t, "Receive request", target.Name)
	assert.Equal(t, "Process_b", proc.ID)

	// Catch event spliced between the start event and the first task.
	outgoing := proc.Outgoing("s2")
	require.Len(t, outgoing, 1)
	assert.Equal(t, target.ID, outgoing[0].TargetRef)
	catchOut := proc.Outgoing(target.ID)
	require.Len(t, catchOut, 1)
	assert.Equal(t, "t2", catchOut[0].TargetRef)
}

func TestApplyReconnectsDanglingNode(t *testing.T) {
	def := buildDef(t, `{
		"elements": [
			{"id": "s", "type": "start", "name": "Start"},
			{"id": "t1", "type": "task", "name": "Connected"},
			{"id": "orphan", "type": "task", "name": "Orphan"},
			{"id": "e", "type": "end", "name": "End"}
		],
		"flows": [
			{"id": "f1", "source": "s", "target": "t1"},
			{"id": "f2", "source": "t1", "target": "e"}
		]
	}`)

	engine := NewEngine()
	fixes := engine.Apply(def)

	require.Len(t, fixes, 1)
	assert.Equal(t, "STRUCT_003", fixes[0].RuleCode)

	proc := def.Processes[0]
	assert.Len(t, proc.Incoming("orphan"), 1)
	assert.Len(t, proc.Outgoing("orphan"), 1)

	// The whole graph is now reachable from the start event.
	outgoing := proc.Outgoing("s")
	require.Len(t, outgoing, 1)
	assert.Equal(t, "orphan", outgoing[0].TargetRef)
}

func TestApplyHealthyDiagramIsUntouched(t *testing.T) {
	def := buildDef(t, `{
		"elements": [
			{"id": "s", "type": "start", "name": "Start"},
			{"id": "t", "type": "task", "name": "Work"},
			{"id": "e", "type": "end", "name": "Done"}
		],
		"flows": [
			{"id": "f1", "source": "s", "target": "t"},
			{"id": "f2", "source": "t", "target": "e"}
		]
	}`)

	before := bpmn.Write(def)
	fixes := NewEngine().Apply(def)
	assert.Empty(t, fixes)
	assert.Equal(t, before, bpmn.Write(def))
}

func TestApplyPatchedModelSerializes(t *testing.T) {
	def := buildDef(t, `{
		"elements": [
			{"id": "t1", "type": "task", "name": "Only work"}
		],
		"flows": []
	}`)

	fixes := NewEngine().Apply(def)
	require.Len(t, fixes, 2) // start + end added

	xmlText := bpmn.Write(def)
	parsed, err := bpmn.Parse(xmlText)
	require.NoError(t, err)
	proc := parsed.Processes[0]
	assert.Len(t, proc.NodesByType(bpmn.TypeStart), 1)
	assert.Len(t, proc.NodesByType(bpmn.TypeEnd), 1)
}
