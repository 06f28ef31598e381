package bpmn

import (
	"fmt"

	"github.com/c360studio/bpmnforge/quality"
)

// RuleMessageFlowRefs is the rule code reported for message flows that
// cannot be wired into the collaboration.
const RuleMessageFlowRefs = "SYN_004"

// Convert transforms a validated JSON process document into BPMN 2.0 XML.
// The transform is deterministic: identical documents always yield
// byte-identical XML. Message flows whose endpoints do not resolve are
// recorded as issues but do not abort conversion, so the validator can
// still report them against concrete element positions.
func Convert(doc *Document) (string, []quality.Issue) {
	def, issues := Build(doc)
	return Write(def), issues
}

// Build constructs the working model from a JSON document without
// serializing it. The improvement engine uses the model directly.
func Build(doc *Document) (*Definitions, []quality.Issue) {
	def := &Definitions{ID: "Definitions_1"}

	elementIDs := make(map[string]bool, len(doc.Elements))
	for _, el := range doc.Elements {
		elementIDs[el.ID] = true
	}

	if len(doc.Participants) > 1 {
		buildCollaboration(def, doc)
	} else {
		buildSingleProcess(def, doc)
	}

	var issues []quality.Issue
	if len(doc.MessageFlows) > 0 {
		if def.Collaboration == nil {
			// Message flows require pools. Record and drop them.
			issues = append(issues, quality.Issue{
				RuleCode:   RuleMessageFlowRefs,
				Severity:   quality.SeverityMajor,
				Message:    "message flows defined but the document has fewer than two participants",
				Suggestion: "model each communicating party as its own participant pool",
			})
		} else {
			for _, mf := range doc.MessageFlows {
				issue, ok := messageFlowIssue(mf, elementIDs)
				if !ok {
					issues = append(issues, issue)
					continue
				}
				def.Collaboration.MessageFlows = append(def.Collaboration.MessageFlows, &MessageFlowNode{
					ID:        mf.ID,
					Name:      mf.Name,
					SourceRef: mf.Source,
					TargetRef: mf.Target,
				})
			}
		}
	}

	return def, issues
}

// messageFlowIssue checks one message flow's endpoints. ok is false when
// the flow must be dropped from the model.
func messageFlowIssue(mf MessageFlow, elementIDs map[string]bool) (quality.Issue, bool) {
	missing := ""
	switch {
	case !elementIDs[mf.Source]:
		missing = mf.Source
	case !elementIDs[mf.Target]:
		missing = mf.Target
	default:
		return quality.Issue{}, true
	}
	return quality.Issue{
		RuleCode:   RuleMessageFlowRefs,
		Severity:   quality.SeverityMajor,
		Message:    fmt.Sprintf("message flow %q references missing element %q", mf.ID, missing),
		ElementRef: mf.ID,
		Suggestion: "point the message flow at an existing event or task",
	}, false
}

// buildCollaboration creates one pool and process per participant.
func buildCollaboration(def *Definitions, doc *Document) {
	def.Collaboration = &Collaboration{ID: "Collaboration_1"}

	for _, participant := range doc.Participants {
		proc := &Process{
			ID:   "Process_" + participant.ID,
			Name: participant.Name,
		}
		def.Collaboration.Participants = append(def.Collaboration.Participants, &PoolParticipant{
			ID:         "Participant_" + participant.ID,
			Name:       participant.Name,
			ProcessRef: proc.ID,
		})

		laneRefs := make(map[string]*LaneNode, len(participant.Lanes))
		for _, lane := range participant.Lanes {
			node := &LaneNode{ID: lane.ID, Name: lane.Name}
			laneRefs[lane.ID] = node
			proc.Lanes = append(proc.Lanes, node)
		}

		owned := make(map[string]bool)
		for _, el := range doc.Elements {
			if el.Participant != participant.ID {
				continue
			}
			owned[el.ID] = true
			proc.Nodes = append(proc.Nodes, &FlowNode{ID: el.ID, Name: el.Name, Type: el.Type})
			if lane, ok := laneRefs[el.Lane]; ok {
				lane.FlowNodeRefs = append(lane.FlowNodeRefs, el.ID)
			}
		}

		// A sequence flow belongs to the pool that owns its source.
		for _, f := range doc.Flows {
			if owned[f.Source] {
				proc.Flows = append(proc.Flows, &SequenceFlowNode{
					ID:        f.ID,
					Name:      f.Name,
					SourceRef: f.Source,
					TargetRef: f.Target,
					Condition: f.Condition,
				})
			}
		}

		def.Processes = append(def.Processes, proc)
	}

	// Elements without a resolvable participant land in the first pool so
	// the diagram stays renderable; the validator flags the organization.
	first := def.Processes[0]
	assigned := make(map[string]bool)
	for _, proc := range def.Processes {
		for _, node := range proc.Nodes {
			assigned[node.ID] = true
		}
	}
	for _, el := range doc.Elements {
		if !assigned[el.ID] {
			first.Nodes = append(first.Nodes, &FlowNode{ID: el.ID, Name: el.Name, Type: el.Type})
		}
	}
	for _, f := range doc.Flows {
		if !flowAssigned(def, f.ID) {
			first.Flows = append(first.Flows, &SequenceFlowNode{
				ID:        f.ID,
				Name:      f.Name,
				SourceRef: f.Source,
				TargetRef: f.Target,
				Condition: f.Condition,
			})
		}
	}
}

func flowAssigned(def *Definitions, flowID string) bool {
	for _, proc := range def.Processes {
		for _, f := range proc.Flows {
			if f.ID == flowID {
				return true
			}
		}
	}
	return false
}

// buildSingleProcess creates one process holding everything, used when
// the document declares zero or one participant.
func buildSingleProcess(def *Definitions, doc *Document) {
	proc := &Process{ID: "Process_1", Name: doc.Name}
	if len(doc.Participants) == 1 {
		p := doc.Participants[0]
		proc.Name = p.Name
		for _, lane := range p.Lanes {
			proc.Lanes = append(proc.Lanes, &LaneNode{ID: lane.ID, Name: lane.Name})
		}
	}

	laneByID := make(map[string]*LaneNode, len(proc.Lanes))
	for _, lane := range proc.Lanes {
		laneByID[lane.ID] = lane
	}

	for _, el := range doc.Elements {
		proc.Nodes = append(proc.Nodes, &FlowNode{ID: el.ID, Name: el.Name, Type: el.Type})
		if lane, ok := laneByID[el.Lane]; ok {
			lane.FlowNodeRefs = append(lane.FlowNodeRefs, el.ID)
		}
	}
	for _, f := range doc.Flows {
		proc.Flows = append(proc.Flows, &SequenceFlowNode{
			ID:        f.ID,
			Name:      f.Name,
			SourceRef: f.Source,
			TargetRef: f.Target,
			Condition: f.Condition,
		})
	}

	def.Processes = []*Process{proc}
}

// DocumentFromDefinitions reverses the model back into the JSON schema.
// The improvement engine uses this so the next prompt iterates on the
// mechanically patched diagram rather than the unpatched one.
func DocumentFromDefinitions(def *Definitions) *Document {
	doc := &Document{}

	poolByProcess := make(map[string]*PoolParticipant)
	if def.Collaboration != nil {
		for _, p := range def.Collaboration.Participants {
			poolByProcess[p.ProcessRef] = p
			doc.Participants = append(doc.Participants, Participant{
				ID:   trimPrefix(p.ID, "Participant_"),
				Name: p.Name,
			})
		}
		for _, mf := range def.Collaboration.MessageFlows {
			doc.MessageFlows = append(doc.MessageFlows, MessageFlow{
				ID:     mf.ID,
				Name:   mf.Name,
				Source: mf.SourceRef,
				Target: mf.TargetRef,
			})
		}
	}

	for pi, proc := range def.Processes {
		participantID := ""
		if pool, ok := poolByProcess[proc.ID]; ok {
			participantID = trimPrefix(pool.ID, "Participant_")
		}

		laneOf := make(map[string]string)
		for _, lane := range proc.Lanes {
			if pi < len(doc.Participants) {
				doc.Participants[pi].Lanes = append(doc.Participants[pi].Lanes, Lane{ID: lane.ID, Name: lane.Name})
			}
			for _, ref := range lane.FlowNodeRefs {
				laneOf[ref] = lane.ID
			}
		}

		for _, node := range proc.Nodes {
			doc.Elements = append(doc.Elements, Element{
				ID:          node.ID,
				Type:        node.Type,
				Name:        node.Name,
				Participant: participantID,
				Lane:        laneOf[node.ID],
			})
		}
		for _, f := range proc.Flows {
			doc.Flows = append(doc.Flows, Flow{
				ID:        f.ID,
				Name:      f.Name,
				Source:    f.SourceRef,
				Target:    f.TargetRef,
				Condition: f.Condition,
			})
		}

		if doc.Name == "" && proc.Name != "" {
			doc.Name = proc.Name
		}
	}

	return doc
}

func trimPrefix(s, prefix string) string {
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}
