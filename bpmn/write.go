package bpmn

import (
	"fmt"
	"strings"
)

// BPMN 2.0 namespaces.
const (
	NamespaceBPMN   = "http://www.omg.org/spec/BPMN/20100524/MODEL"
	NamespaceBPMNDI = "http://www.omg.org/spec/BPMN/20100524/DI"
	NamespaceDC     = "http://www.omg.org/spec/DD/20100524/DC"
	NamespaceDI     = "http://www.omg.org/spec/DD/20100524/DI"

	targetNamespace = "http://bpmn.io/schema/bpmn"
	exporterName    = "bpmnforge"
	exporterVersion = "1.0.0"
)

// xmlTag returns the BPMN XML element name for a node type.
func xmlTag(t ElementType) string {
	switch t {
	case TypeStart:
		return "bpmn:startEvent"
	case TypeEnd:
		return "bpmn:endEvent"
	case TypeUserTask:
		return "bpmn:userTask"
	case TypeServiceTask:
		return "bpmn:serviceTask"
	case TypeExclusiveGateway:
		return "bpmn:exclusiveGateway"
	case TypeParallelGateway:
		return "bpmn:parallelGateway"
	case TypeIntermediateCatch:
		return "bpmn:intermediateCatchEvent"
	default:
		return "bpmn:task"
	}
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func esc(s string) string {
	return attrEscaper.Replace(s)
}

// Write serializes the model to BPMN 2.0 XML, including a BPMNDI diagram
// section with computed geometry so the output opens directly in
// standard BPMN modelers. Output is deterministic for a given model.
func Write(def *Definitions) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, `<bpmn:definitions xmlns:bpmn=%q xmlns:bpmndi=%q xmlns:dc=%q xmlns:di=%q id=%q targetNamespace=%q exporter=%q exporterVersion=%q>`+"\n",
		NamespaceBPMN, NamespaceBPMNDI, NamespaceDC, NamespaceDI,
		def.ID, targetNamespace, exporterName, exporterVersion)

	if def.Collaboration != nil {
		writeCollaboration(&b, def.Collaboration)
	}
	for _, proc := range def.Processes {
		writeProcess(&b, proc)
	}
	writeDiagram(&b, def, computeLayout(def))

	b.WriteString("</bpmn:definitions>\n")
	return b.String()
}

func writeCollaboration(b *strings.Builder, col *Collaboration) {
	fmt.Fprintf(b, "  <bpmn:collaboration id=%q>\n", esc(col.ID))
	for _, p := range col.Participants {
		fmt.Fprintf(b, "    <bpmn:participant id=%q name=%q processRef=%q/>\n",
			esc(p.ID), esc(p.Name), esc(p.ProcessRef))
	}
	for _, mf := range col.MessageFlows {
		if mf.Name != "" {
			fmt.Fprintf(b, "    <bpmn:messageFlow id=%q name=%q sourceRef=%q targetRef=%q/>\n",
				esc(mf.ID), esc(mf.Name), esc(mf.SourceRef), esc(mf.TargetRef))
		} else {
			fmt.Fprintf(b, "    <bpmn:messageFlow id=%q sourceRef=%q targetRef=%q/>\n",
				esc(mf.ID), esc(mf.SourceRef), esc(mf.TargetRef))
		}
	}
	b.WriteString("  </bpmn:collaboration>\n")
}

func writeProcess(b *strings.Builder, proc *Process) {
	if proc.Name != "" {
		fmt.Fprintf(b, "  <bpmn:process id=%q name=%q isExecutable=\"false\">\n", esc(proc.ID), esc(proc.Name))
	} else {
		fmt.Fprintf(b, "  <bpmn:process id=%q isExecutable=\"false\">\n", esc(proc.ID))
	}

	if len(proc.Lanes) > 0 {
		fmt.Fprintf(b, "    <bpmn:laneSet id=%q>\n", esc("LaneSet_"+proc.ID))
		for _, lane := range proc.Lanes {
			fmt.Fprintf(b, "      <bpmn:lane id=%q name=%q>\n", esc(lane.ID), esc(lane.Name))
			for _, ref := range lane.FlowNodeRefs {
				fmt.Fprintf(b, "        <bpmn:flowNodeRef>%s</bpmn:flowNodeRef>\n", esc(ref))
			}
			b.WriteString("      </bpmn:lane>\n")
		}
		b.WriteString("    </bpmn:laneSet>\n")
	}

	for _, node := range proc.Nodes {
		tag := xmlTag(node.Type)
		incoming := proc.Incoming(node.ID)
		outgoing := proc.Outgoing(node.ID)
		if len(incoming) == 0 && len(outgoing) == 0 {
			fmt.Fprintf(b, "    <%s id=%q name=%q/>\n", tag, esc(node.ID), esc(node.Name))
			continue
		}
		fmt.Fprintf(b, "    <%s id=%q name=%q>\n", tag, esc(node.ID), esc(node.Name))
		for _, f := range incoming {
			fmt.Fprintf(b, "      <bpmn:incoming>%s</bpmn:incoming>\n", esc(f.ID))
		}
		for _, f := range outgoing {
			fmt.Fprintf(b, "      <bpmn:outgoing>%s</bpmn:outgoing>\n", esc(f.ID))
		}
		fmt.Fprintf(b, "    </%s>\n", tag)
	}

	for _, f := range proc.Flows {
		attrs := fmt.Sprintf("id=%q", esc(f.ID))
		if f.Name != "" {
			attrs += fmt.Sprintf(" name=%q", esc(f.Name))
		}
		attrs += fmt.Sprintf(" sourceRef=%q targetRef=%q", esc(f.SourceRef), esc(f.TargetRef))
		if f.Condition != "" {
			fmt.Fprintf(b, "    <bpmn:sequenceFlow %s>\n", attrs)
			fmt.Fprintf(b, "      <bpmn:conditionExpression>%s</bpmn:conditionExpression>\n", esc(f.Condition))
			b.WriteString("    </bpmn:sequenceFlow>\n")
		} else {
			fmt.Fprintf(b, "    <bpmn:sequenceFlow %s/>\n", attrs)
		}
	}

	b.WriteString("  </bpmn:process>\n")
}

// bounds is a positioned rectangle in diagram coordinates.
type bounds struct {
	x, y, w, h int
}

// Layout constants, in diagram units.
const (
	poolWidth      = 1200
	poolHeight     = 200
	elementSpacing = 150
	layoutStartX   = 100
	layoutStartY   = 100
)

func elementSize(t ElementType) (int, int) {
	switch {
	case t.IsEvent():
		return 36, 36
	case t.IsGateway():
		return 50, 50
	default:
		return 100, 80
	}
}

// computeLayout assigns geometry: one horizontal band per pool, elements
// spaced left to right in document order.
func computeLayout(def *Definitions) map[string]bounds {
	positions := make(map[string]bounds)
	y := layoutStartY

	pooled := def.Collaboration != nil
	for _, proc := range def.Processes {
		if pooled {
			positions["shape_pool_"+proc.ID] = bounds{x: layoutStartX, y: y, w: poolWidth, h: poolHeight}
		}

		x := layoutStartX + 50
		rowY := y + 60
		for _, node := range proc.Nodes {
			w, h := elementSize(node.Type)
			positions[node.ID] = bounds{x: x, y: rowY + (80-h)/2, w: w, h: h}
			x += elementSpacing
		}

		y += poolHeight + 50
	}
	return positions
}

func writeDiagram(b *strings.Builder, def *Definitions, positions map[string]bounds) {
	b.WriteString("  <bpmndi:BPMNDiagram id=\"BPMNDiagram_1\">\n")

	planeRef := def.Processes[0].ID
	if def.Collaboration != nil {
		planeRef = def.Collaboration.ID
	}
	fmt.Fprintf(b, "    <bpmndi:BPMNPlane id=\"BPMNPlane_1\" bpmnElement=%q>\n", esc(planeRef))

	if def.Collaboration != nil {
		for _, p := range def.Collaboration.Participants {
			if pos, ok := positions["shape_pool_"+p.ProcessRef]; ok {
				writeShape(b, "shape_"+p.ID, p.ID, pos, true)
			}
		}
	}

	for _, proc := range def.Processes {
		for _, node := range proc.Nodes {
			if pos, ok := positions[node.ID]; ok {
				writeShape(b, "shape_"+node.ID, node.ID, pos, false)
			}
		}
		for _, f := range proc.Flows {
			writeEdge(b, "edge_"+f.ID, f.ID, positions[f.SourceRef], positions[f.TargetRef])
		}
	}
	if def.Collaboration != nil {
		for _, mf := range def.Collaboration.MessageFlows {
			writeEdge(b, "edge_"+mf.ID, mf.ID, positions[mf.SourceRef], positions[mf.TargetRef])
		}
	}

	b.WriteString("    </bpmndi:BPMNPlane>\n")
	b.WriteString("  </bpmndi:BPMNDiagram>\n")
}

func writeShape(b *strings.Builder, shapeID, elementID string, pos bounds, horizontal bool) {
	if horizontal {
		fmt.Fprintf(b, "      <bpmndi:BPMNShape id=%q bpmnElement=%q isHorizontal=\"true\">\n", esc(shapeID), esc(elementID))
	} else {
		fmt.Fprintf(b, "      <bpmndi:BPMNShape id=%q bpmnElement=%q>\n", esc(shapeID), esc(elementID))
	}
	fmt.Fprintf(b, "        <dc:Bounds x=\"%d\" y=\"%d\" width=\"%d\" height=\"%d\"/>\n", pos.x, pos.y, pos.w, pos.h)
	b.WriteString("      </bpmndi:BPMNShape>\n")
}

func writeEdge(b *strings.Builder, edgeID, elementID string, from, to bounds) {
	fmt.Fprintf(b, "      <bpmndi:BPMNEdge id=%q bpmnElement=%q>\n", esc(edgeID), esc(elementID))
	fmt.Fprintf(b, "        <di:waypoint x=\"%d\" y=\"%d\"/>\n", from.x+from.w, from.y+from.h/2)
	fmt.Fprintf(b, "        <di:waypoint x=\"%d\" y=\"%d\"/>\n", to.x, to.y+to.h/2)
	b.WriteString("      </bpmndi:BPMNEdge>\n")
}
