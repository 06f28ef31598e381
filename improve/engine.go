// Package improve applies mechanical patches directly to a low-scoring
// diagram when the fix is unambiguous and purely structural. Patches
// run before the next LLM call, so the model iterates on an
// already-partially-fixed diagram instead of rediscovering known
// compliance gaps.
package improve

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/bpmnforge/bpmn"
)

// Fix records one mechanical patch applied to a diagram.
type Fix struct {
	// RuleCode is the rule the patch addresses.
	RuleCode string `json:"rule_code"`

	// Description says what changed.
	Description string `json:"description"`

	// ElementRef is the element created or rewired.
	ElementRef string `json:"element_ref,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine applies mechanical compliance patches. Safe for concurrent use;
// patches mutate only the model passed in, never previously recorded
// iterations.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply patches the model in place and returns the fixes made. Patches
// are applied in a fixed order so the result is deterministic:
// message-flow retargeting first (it may add catch events that the
// start/end patches must see), then missing start/end events, then
// dangling-node reconnection.
func (e *Engine) Apply(def *bpmn.Definitions) []Fix {
	var fixes []Fix
	fixes = append(fixes, e.retargetMessageFlows(def)...)
	fixes = append(fixes, e.addMissingStartEvents(def)...)
	fixes = append(fixes, e.addMissingEndEvents(def)...)
	fixes = append(fixes, e.reconnectDanglingNodes(def)...)

	if len(fixes) > 0 {
		e.logger.Debug("Applied mechanical fixes", "count", len(fixes))
	}
	return fixes
}

// retargetMessageFlows rewrites message flows that point at a start
// event to point at a synthesized intermediateCatchEvent placed after
// the start event. Targeting a start event from another pool is a
// common LLM mistake; the compliant pattern is that a pool starts
// independently and catches messages mid-flow.
func (e *Engine) retargetMessageFlows(def *bpmn.Definitions) []Fix {
	if def.Collaboration == nil {
		return nil
	}

	var fixes []Fix
	for _, mf := range def.Collaboration.MessageFlows {
		proc, target := def.NodeByID(mf.TargetRef)
		if target == nil || target.Type != bpmn.TypeStart {
			continue
		}

		catch := &bpmn.FlowNode{
			ID:   uniqueID(def, "catch_"+mf.ID),
			Name: catchName(mf, target),
			Type: bpmn.TypeIntermediateCatch,
		}
		proc.Nodes = append(proc.Nodes, catch)

		// Splice the catch event into the start event's outgoing path.
		outgoing := proc.Outgoing(target.ID)
		if len(outgoing) > 0 {
			first := outgoing[0]
			proc.Flows = append(proc.Flows, &bpmn.SequenceFlowNode{
				ID:        uniqueID(def, "flow_"+catch.ID),
				SourceRef: catch.ID,
				TargetRef: first.TargetRef,
			})
			first.TargetRef = catch.ID
		} else {
			proc.Flows = append(proc.Flows, &bpmn.SequenceFlowNode{
				ID:        uniqueID(def, "flow_"+catch.ID),
				SourceRef: target.ID,
				TargetRef: catch.ID,
			})
		}

		mf.TargetRef = catch.ID
		addToFirstLane(proc, catch.ID)

		fixes = append(fixes, Fix{
			RuleCode:    "STRUCT_008",
			Description: fmt.Sprintf("retargeted message flow %s from start event to new intermediate catch event", mf.ID),
			ElementRef:  catch.ID,
		})
	}
	return fixes
}

func catchName(mf *bpmn.MessageFlowNode, start *bpmn.FlowNode) string {
	if mf.Name != "" {
		return "Receive " + strings.ToLower(mf.Name)
	}
	if start.Name != "" {
		return "Receive " + strings.ToLower(start.Name)
	}
	return "Receive message"
}

// addMissingStartEvents inserts a start event into each process that has
// activities but no start. Pools fed purely by incoming message flows
// keep their event-driven entry and are skipped only when every entry
// node already receives a message.
func (e *Engine) addMissingStartEvents(def *bpmn.Definitions) []Fix {
	var fixes []Fix
	for _, proc := range def.Processes {
		if len(proc.Nodes) == 0 || len(proc.NodesByType(bpmn.TypeStart)) > 0 {
			continue
		}

		entry := firstEntryNode(proc)
		if entry == nil {
			continue
		}
		if receivesMessage(def, entry.ID) {
			continue
		}

		start := &bpmn.FlowNode{
			ID:   uniqueID(def, "start_"+proc.ID),
			Name: "Process started",
			Type: bpmn.TypeStart,
		}
		proc.Nodes = append([]*bpmn.FlowNode{start}, proc.Nodes...)
		proc.Flows = append(proc.Flows, &bpmn.SequenceFlowNode{
			ID:        uniqueID(def, "flow_"+start.ID),
			SourceRef: start.ID,
			TargetRef: entry.ID,
		})
		addToFirstLane(proc, start.ID)

		fixes = append(fixes, Fix{
			RuleCode:    "STRUCT_001",
			Description: fmt.Sprintf("added start event to process %s", proc.ID),
			ElementRef:  start.ID,
		})
	}
	return fixes
}

// addMissingEndEvents appends an end event to each process that has
// activities but no terminal node, wired from the last node without an
// outgoing flow.
func (e *Engine) addMissingEndEvents(def *bpmn.Definitions) []Fix {
	var fixes []Fix
	for _, proc := range def.Processes {
		if len(proc.Nodes) == 0 || len(proc.NodesByType(bpmn.TypeEnd)) > 0 {
			continue
		}

		terminal := lastTerminalNode(proc)
		if terminal == nil {
			continue
		}

		end := &bpmn.FlowNode{
			ID:   uniqueID(def, "end_"+proc.ID),
			Name: "Process completed",
			Type: bpmn.TypeEnd,
		}
		proc.Nodes = append(proc.Nodes, end)
		proc.Flows = append(proc.Flows, &bpmn.SequenceFlowNode{
			ID:        uniqueID(def, "flow_"+end.ID),
			SourceRef: terminal.ID,
			TargetRef: end.ID,
		})
		addToFirstLane(proc, end.ID)

		fixes = append(fixes, Fix{
			RuleCode:    "STRUCT_002",
			Description: fmt.Sprintf("added end event to process %s", proc.ID),
			ElementRef:  end.ID,
		})
	}
	return fixes
}

// reconnectDanglingNodes wires nodes with no flows at all into the main
// path, between the last connected non-terminal node and its successor.
// Only fully isolated nodes are touched; partially connected graphs are
// left for the LLM, where intent matters.
func (e *Engine) reconnectDanglingNodes(def *bpmn.Definitions) []Fix {
	var fixes []Fix
	for _, proc := range def.Processes {
		starts := proc.NodesByType(bpmn.TypeStart)
		if len(starts) == 0 {
			continue
		}

		for _, node := range proc.Nodes {
			if node.Type == bpmn.TypeStart || node.Type == bpmn.TypeEnd {
				continue
			}
			if len(proc.Incoming(node.ID)) > 0 || len(proc.Outgoing(node.ID)) > 0 {
				continue
			}

			// Splice after the start event's first outgoing hop.
			anchor := starts[0]
			outgoing := proc.Outgoing(anchor.ID)
			if len(outgoing) == 0 {
				continue
			}
			first := outgoing[0]
			proc.Flows = append(proc.Flows, &bpmn.SequenceFlowNode{
				ID:        uniqueID(def, "flow_"+node.ID),
				SourceRef: node.ID,
				TargetRef: first.TargetRef,
			})
			first.TargetRef = node.ID

			fixes = append(fixes, Fix{
				RuleCode:    "STRUCT_003",
				Description: fmt.Sprintf("connected dangling element %s into the sequence flow", node.ID),
				ElementRef:  node.ID,
			})
		}
	}
	return fixes
}

// firstEntryNode picks the first node with no incoming flows, preferring
// document order; falls back to the first node.
func firstEntryNode(proc *bpmn.Process) *bpmn.FlowNode {
	for _, node := range proc.Nodes {
		if node.Type != bpmn.TypeEnd && len(proc.Incoming(node.ID)) == 0 {
			return node
		}
	}
	if len(proc.Nodes) > 0 {
		return proc.Nodes[0]
	}
	return nil
}

// lastTerminalNode picks the last node with no outgoing flows.
func lastTerminalNode(proc *bpmn.Process) *bpmn.FlowNode {
	for i := len(proc.Nodes) - 1; i >= 0; i-- {
		node := proc.Nodes[i]
		if node.Type != bpmn.TypeStart && len(proc.Outgoing(node.ID)) == 0 {
			return node
		}
	}
	if len(proc.Nodes) > 0 {
		return proc.Nodes[len(proc.Nodes)-1]
	}
	return nil
}

// receivesMessage reports whether any message flow targets the node.
func receivesMessage(def *bpmn.Definitions, nodeID string) bool {
	if def.Collaboration == nil {
		return false
	}
	for _, mf := range def.Collaboration.MessageFlows {
		if mf.TargetRef == nodeID {
			return true
		}
	}
	return false
}

// addToFirstLane keeps lane organization intact for synthesized nodes.
func addToFirstLane(proc *bpmn.Process, nodeID string) {
	if len(proc.Lanes) > 0 {
		proc.Lanes[0].FlowNodeRefs = append(proc.Lanes[0].FlowNodeRefs, nodeID)
	}
}

// uniqueID returns base, suffixed if something in the definitions
// already uses it.
func uniqueID(def *bpmn.Definitions, base string) string {
	used := func(id string) bool {
		for _, proc := range def.Processes {
			for _, node := range proc.Nodes {
				if node.ID == id {
					return true
				}
			}
			for _, f := range proc.Flows {
				if f.ID == id {
					return true
				}
			}
		}
		return false
	}

	if !used(base) {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !used(candidate) {
			return candidate
		}
	}
}
