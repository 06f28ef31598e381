package bpmn

// Definitions is the working model of a BPMN 2.0 document. The converter
// builds it from a JSON Document, the writer serializes it, and the
// validator and improvement engine operate on it after parsing candidate
// XML back in.
type Definitions struct {
	ID string

	// Collaboration is present when the diagram has participant pools.
	Collaboration *Collaboration

	Processes []*Process
}

// Collaboration groups the participant pools and their message flows.
type Collaboration struct {
	ID           string
	Participants []*PoolParticipant
	MessageFlows []*MessageFlowNode
}

// PoolParticipant binds a pool to its process.
type PoolParticipant struct {
	ID         string
	Name       string
	ProcessRef string
}

// Process is one executable process (one pool's contents).
type Process struct {
	ID    string
	Name  string
	Lanes []*LaneNode
	Nodes []*FlowNode
	Flows []*SequenceFlowNode
}

// LaneNode is a lane with its flow node references.
type LaneNode struct {
	ID           string
	Name         string
	FlowNodeRefs []string
}

// FlowNode is an event, task, or gateway inside a process.
type FlowNode struct {
	ID   string
	Name string
	Type ElementType
}

// SequenceFlowNode connects two flow nodes within one process.
type SequenceFlowNode struct {
	ID        string
	Name      string
	SourceRef string
	TargetRef string
	Condition string
}

// MessageFlowNode connects flow nodes across pools.
type MessageFlowNode struct {
	ID        string
	Name      string
	SourceRef string
	TargetRef string
}

// NodeByID returns the flow node with the given id and its owning
// process, or nils when absent.
func (d *Definitions) NodeByID(id string) (*Process, *FlowNode) {
	for _, proc := range d.Processes {
		for _, node := range proc.Nodes {
			if node.ID == id {
				return proc, node
			}
		}
	}
	return nil, nil
}

// ProcessByID returns the process with the given id, or nil.
func (d *Definitions) ProcessByID(id string) *Process {
	for _, proc := range d.Processes {
		if proc.ID == id {
			return proc
		}
	}
	return nil
}

// NodesByType returns the process nodes matching any of the given types,
// in document order.
func (p *Process) NodesByType(types ...ElementType) []*FlowNode {
	var nodes []*FlowNode
	for _, node := range p.Nodes {
		for _, t := range types {
			if node.Type == t {
				nodes = append(nodes, node)
				break
			}
		}
	}
	return nodes
}

// Incoming returns the sequence flows targeting the node.
func (p *Process) Incoming(nodeID string) []*SequenceFlowNode {
	var flows []*SequenceFlowNode
	for _, f := range p.Flows {
		if f.TargetRef == nodeID {
			flows = append(flows, f)
		}
	}
	return flows
}

// Outgoing returns the sequence flows originating at the node.
func (p *Process) Outgoing(nodeID string) []*SequenceFlowNode {
	var flows []*SequenceFlowNode
	for _, f := range p.Flows {
		if f.SourceRef == nodeID {
			flows = append(flows, f)
		}
	}
	return flows
}
