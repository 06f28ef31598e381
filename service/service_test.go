package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/bpmnforge/llm/testutil"
	"github.com/c360studio/bpmnforge/pipeline"
	"github.com/c360studio/bpmnforge/process"
)

const serviceProcessJSON = `{
  "process_name": "Order Fulfilment",
  "elements": [
    {"id": "s", "type": "start", "name": "Order placed"},
    {"id": "t1", "type": "userTask", "name": "Customer submits order"},
    {"id": "t2", "type": "serviceTask", "name": "System checks stock"},
    {"id": "e", "type": "end", "name": "Order handled"}
  ],
  "flows": [
    {"id": "f1", "source": "s", "target": "t1"},
    {"id": "f2", "source": "t1", "target": "t2"},
    {"id": "f3", "source": "t2", "target": "e"}
  ]
}`

func testService(gen *testutil.MockGenerator) *Service {
	return &Service{
		subject:    "bpmn.generate",
		analyzer:   process.NewAnalyzer(),
		controller: pipeline.NewController(),
		generator:  gen,
		defaults: Defaults{
			QualityTarget: 0.6,
			MaxIterations: 2,
			TimeBudget:    time.Minute,
		},
		logger: slog.Default(),
	}
}

func TestHandleProducesDiagramReply(t *testing.T) {
	gen := &testutil.MockGenerator{Steps: []testutil.Step{{Content: serviceProcessJSON}}}
	s := testService(gen)

	req, err := json.Marshal(GenerateRequest{
		Description: "Customer submits order. System checks stock.",
	})
	require.NoError(t, err)

	reply := s.Handle(context.Background(), req)
	assert.True(t, reply.Success)
	assert.Empty(t, reply.Error)
	assert.Contains(t, reply.BPMNXML, "bpmn:definitions")
	assert.Equal(t, string(pipeline.StopTargetReached), reply.StopReason)
	require.Len(t, reply.Iterations, 1)
	assert.Equal(t, 1, reply.Iterations[0].Index)
	assert.Greater(t, reply.QualityScore, 0.6)
	assert.NotEmpty(t, reply.QualityLevel)
}

func TestHandleOverridesDefaults(t *testing.T) {
	gen := &testutil.MockGenerator{Steps: []testutil.Step{{Content: serviceProcessJSON}}}
	s := testService(gen)

	// The diagram never covers the auditor, so a perfect score is out
	// of reach and the iteration override gets fully consumed.
	req, _ := json.Marshal(GenerateRequest{
		Description:   "Customer submits order. Auditor certifies compliance report.",
		QualityTarget: 1.0,
		MaxIterations: 2,
	})

	reply := s.Handle(context.Background(), req)
	// Unreachable target: both iterations consumed, best returned with
	// the below-target run flagged as unsuccessful.
	assert.False(t, reply.Success)
	assert.NotEmpty(t, reply.BPMNXML)
	assert.Equal(t, string(pipeline.StopMaxIterations), reply.StopReason)
	assert.Len(t, reply.Iterations, 2)
	assert.Equal(t, 2, gen.Calls())
}

func TestHandleRejectsMalformedJSON(t *testing.T) {
	s := testService(&testutil.MockGenerator{})

	reply := s.Handle(context.Background(), []byte("{not json"))
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Error, "invalid request")
}

func TestHandleRejectsEmptyDescription(t *testing.T) {
	gen := &testutil.MockGenerator{}
	s := testService(gen)

	req, _ := json.Marshal(GenerateRequest{Description: "   "})
	reply := s.Handle(context.Background(), req)
	assert.False(t, reply.Success)
	assert.NotEmpty(t, reply.Error)
	assert.Equal(t, 0, gen.Calls())
}

func TestNewValidatesArguments(t *testing.T) {
	gen := &testutil.MockGenerator{}

	_, err := New(nil, "bpmn.generate", gen, Defaults{})
	assert.Error(t, err)
}
