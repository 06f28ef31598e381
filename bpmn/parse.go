package bpmn

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Unmarshal shapes for candidate XML. Tags match by local name so both
// our own output and externally produced BPMN parse.
type xmlDefinitions struct {
	XMLName       xml.Name          `xml:"definitions"`
	ID            string            `xml:"id,attr"`
	Collaboration *xmlCollaboration `xml:"collaboration"`
	Processes     []xmlProcess      `xml:"process"`
}

type xmlCollaboration struct {
	ID           string            `xml:"id,attr"`
	Participants []xmlParticipant  `xml:"participant"`
	MessageFlows []xmlFlowRelation `xml:"messageFlow"`
}

type xmlParticipant struct {
	ID         string `xml:"id,attr"`
	Name       string `xml:"name,attr"`
	ProcessRef string `xml:"processRef,attr"`
}

type xmlProcess struct {
	ID                      string            `xml:"id,attr"`
	Name                    string            `xml:"name,attr"`
	LaneSets                []xmlLaneSet      `xml:"laneSet"`
	StartEvents             []xmlFlowElement  `xml:"startEvent"`
	EndEvents               []xmlFlowElement  `xml:"endEvent"`
	IntermediateCatchEvents []xmlFlowElement  `xml:"intermediateCatchEvent"`
	Tasks                   []xmlFlowElement  `xml:"task"`
	UserTasks               []xmlFlowElement  `xml:"userTask"`
	ServiceTasks            []xmlFlowElement  `xml:"serviceTask"`
	ExclusiveGateways       []xmlFlowElement  `xml:"exclusiveGateway"`
	ParallelGateways        []xmlFlowElement  `xml:"parallelGateway"`
	SequenceFlows           []xmlSequenceFlow `xml:"sequenceFlow"`
}

type xmlLaneSet struct {
	ID    string    `xml:"id,attr"`
	Lanes []xmlLane `xml:"lane"`
}

type xmlLane struct {
	ID           string   `xml:"id,attr"`
	Name         string   `xml:"name,attr"`
	FlowNodeRefs []string `xml:"flowNodeRef"`
}

type xmlFlowElement struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

type xmlSequenceFlow struct {
	ID        string `xml:"id,attr"`
	Name      string `xml:"name,attr"`
	SourceRef string `xml:"sourceRef,attr"`
	TargetRef string `xml:"targetRef,attr"`
	Condition string `xml:"conditionExpression"`
}

type xmlFlowRelation struct {
	ID        string `xml:"id,attr"`
	Name      string `xml:"name,attr"`
	SourceRef string `xml:"sourceRef,attr"`
	TargetRef string `xml:"targetRef,attr"`
}

// Parse reads BPMN 2.0 XML into the working model. It tolerates missing
// DI sections and foreign extension elements; it fails only when the XML
// itself is malformed or carries no definitions root.
func Parse(xmlText string) (*Definitions, error) {
	var raw xmlDefinitions
	if err := xml.Unmarshal([]byte(xmlText), &raw); err != nil {
		return nil, fmt.Errorf("parse BPMN XML: %w", err)
	}
	if raw.XMLName.Local != "definitions" {
		return nil, fmt.Errorf("parse BPMN XML: root element is %q, want definitions", raw.XMLName.Local)
	}

	def := &Definitions{ID: raw.ID}
	if def.ID == "" {
		def.ID = "Definitions_1"
	}

	if raw.Collaboration != nil {
		col := &Collaboration{ID: raw.Collaboration.ID}
		for _, p := range raw.Collaboration.Participants {
			col.Participants = append(col.Participants, &PoolParticipant{
				ID:         p.ID,
				Name:       p.Name,
				ProcessRef: p.ProcessRef,
			})
		}
		for _, mf := range raw.Collaboration.MessageFlows {
			col.MessageFlows = append(col.MessageFlows, &MessageFlowNode{
				ID:        mf.ID,
				Name:      mf.Name,
				SourceRef: mf.SourceRef,
				TargetRef: mf.TargetRef,
			})
		}
		def.Collaboration = col
	}

	for _, rp := range raw.Processes {
		proc := &Process{ID: rp.ID, Name: rp.Name}

		for _, ls := range rp.LaneSets {
			for _, lane := range ls.Lanes {
				proc.Lanes = append(proc.Lanes, &LaneNode{
					ID:           lane.ID,
					Name:         lane.Name,
					FlowNodeRefs: lane.FlowNodeRefs,
				})
			}
		}

		appendNodes := func(elements []xmlFlowElement, t ElementType) {
			for _, el := range elements {
				proc.Nodes = append(proc.Nodes, &FlowNode{ID: el.ID, Name: el.Name, Type: t})
			}
		}
		appendNodes(rp.StartEvents, TypeStart)
		appendNodes(rp.IntermediateCatchEvents, TypeIntermediateCatch)
		appendNodes(rp.Tasks, TypeTask)
		appendNodes(rp.UserTasks, TypeUserTask)
		appendNodes(rp.ServiceTasks, TypeServiceTask)
		appendNodes(rp.ExclusiveGateways, TypeExclusiveGateway)
		appendNodes(rp.ParallelGateways, TypeParallelGateway)
		appendNodes(rp.EndEvents, TypeEnd)

		for _, f := range rp.SequenceFlows {
			proc.Flows = append(proc.Flows, &SequenceFlowNode{
				ID:        f.ID,
				Name:      f.Name,
				SourceRef: f.SourceRef,
				TargetRef: f.TargetRef,
				Condition: strings.TrimSpace(f.Condition),
			})
		}

		def.Processes = append(def.Processes, proc)
	}

	if len(def.Processes) == 0 {
		return nil, fmt.Errorf("parse BPMN XML: no process elements found")
	}

	return def, nil
}
