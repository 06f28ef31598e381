// Package bpmn implements the constrained JSON process schema emitted by
// the LLM and its deterministic transform into BPMN 2.0 XML. JSON is the
// generation target because an LLM emits it far more reliably than
// hand-rolled XML; the XML itself is produced by exactly one transform so
// identical JSON always yields byte-identical output.
package bpmn

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ElementType enumerates the node types of the JSON process schema.
type ElementType string

// Supported element types.
const (
	TypeStart             ElementType = "start"
	TypeEnd               ElementType = "end"
	TypeTask              ElementType = "task"
	TypeUserTask          ElementType = "userTask"
	TypeServiceTask       ElementType = "serviceTask"
	TypeExclusiveGateway  ElementType = "exclusiveGateway"
	TypeParallelGateway   ElementType = "parallelGateway"
	TypeIntermediateCatch ElementType = "intermediateCatchEvent"
)

var knownTypes = map[ElementType]bool{
	TypeStart:             true,
	TypeEnd:               true,
	TypeTask:              true,
	TypeUserTask:          true,
	TypeServiceTask:       true,
	TypeExclusiveGateway:  true,
	TypeParallelGateway:   true,
	TypeIntermediateCatch: true,
}

// normalizeType maps common LLM spellings onto canonical element types.
func normalizeType(raw string) ElementType {
	switch strings.TrimSpace(raw) {
	case "startEvent", "start_event":
		return TypeStart
	case "endEvent", "end_event":
		return TypeEnd
	case "user_task":
		return TypeUserTask
	case "service_task":
		return TypeServiceTask
	case "exclusive_gateway", "gateway":
		return TypeExclusiveGateway
	case "parallel_gateway":
		return TypeParallelGateway
	case "intermediate_catch_event", "intermediateCatch":
		return TypeIntermediateCatch
	default:
		return ElementType(strings.TrimSpace(raw))
	}
}

// IsGateway reports whether the type is a gateway.
func (t ElementType) IsGateway() bool {
	return t == TypeExclusiveGateway || t == TypeParallelGateway
}

// IsEvent reports whether the type is an event.
func (t ElementType) IsEvent() bool {
	return t == TypeStart || t == TypeEnd || t == TypeIntermediateCatch
}

// IsTask reports whether the type is an activity.
func (t ElementType) IsTask() bool {
	return t == TypeTask || t == TypeUserTask || t == TypeServiceTask
}

// Lane is a role partition within a participant pool.
type Lane struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Participant is a pool in the collaboration.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Lanes []Lane `json:"lanes,omitempty"`
}

// Element is a flow node: event, task, or gateway.
type Element struct {
	ID          string      `json:"id"`
	Type        ElementType `json:"type"`
	Name        string      `json:"name"`
	Participant string      `json:"participant,omitempty"`
	Lane        string      `json:"lane,omitempty"`

	// Outgoing optionally lists target element ids. It is an alternative
	// flow notation some responses use; Normalize folds it into Flows.
	Outgoing []string `json:"outgoing,omitempty"`
}

// Flow is a sequence flow between two elements in the same pool.
type Flow struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Condition string `json:"condition,omitempty"`
}

// MessageFlow is a message exchange between elements of different pools.
type MessageFlow struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Document is the constrained JSON process schema the LLM is asked to emit.
type Document struct {
	Name         string        `json:"process_name"`
	Participants []Participant `json:"participants"`
	Elements     []Element     `json:"elements"`
	Flows        []Flow        `json:"flows"`
	MessageFlows []MessageFlow `json:"message_flows,omitempty"`
}

// SchemaError reports why a JSON document cannot be converted: missing
// required fields, unknown element types, or duplicate ids. It is not
// retryable by the converter, but it signals to the controller that an
// improvement pass is warranted rather than a crash.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	if len(e.Problems) == 1 {
		return "schema error: " + e.Problems[0]
	}
	return fmt.Sprintf("schema error: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// ParseDocument decodes and validates a JSON process document. A non-nil
// error is always a *SchemaError describing every problem found.
func ParseDocument(jsonText string) (*Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(jsonText), &doc); err != nil {
		return nil, &SchemaError{Problems: []string{fmt.Sprintf("invalid JSON: %v", err)}}
	}

	doc.normalize()

	if problems := doc.validate(); len(problems) > 0 {
		return nil, &SchemaError{Problems: problems}
	}
	return &doc, nil
}

// normalize canonicalizes element types and folds element-level outgoing
// lists into the flows array when no explicit flow covers them. Generated
// flow ids are sequential so the transform stays deterministic.
func (d *Document) normalize() {
	for i := range d.Elements {
		d.Elements[i].Type = normalizeType(string(d.Elements[i].Type))
	}

	covered := make(map[string]bool, len(d.Flows))
	for _, f := range d.Flows {
		covered[f.Source+"->"+f.Target] = true
	}

	next := len(d.Flows) + 1
	for _, el := range d.Elements {
		for _, target := range el.Outgoing {
			key := el.ID + "->" + target
			if covered[key] {
				continue
			}
			covered[key] = true
			d.Flows = append(d.Flows, Flow{
				ID:     fmt.Sprintf("flow_%d", next),
				Source: el.ID,
				Target: target,
			})
			next++
		}
	}
}

// validate returns every fatal schema problem. Unresolved message-flow
// references are deliberately not fatal; the converter records them as
// issues so the validator can report them with positions.
func (d *Document) validate() []string {
	var problems []string

	if len(d.Elements) == 0 {
		problems = append(problems, "document has no elements")
	}

	participantIDs := make(map[string]bool, len(d.Participants))
	for i, p := range d.Participants {
		if p.ID == "" {
			problems = append(problems, fmt.Sprintf("participant %d has no id", i))
			continue
		}
		if participantIDs[p.ID] {
			problems = append(problems, fmt.Sprintf("duplicate participant id %q", p.ID))
		}
		participantIDs[p.ID] = true
	}

	elementIDs := make(map[string]bool, len(d.Elements))
	for i, el := range d.Elements {
		switch {
		case el.ID == "":
			problems = append(problems, fmt.Sprintf("element %d has no id", i))
		case elementIDs[el.ID]:
			problems = append(problems, fmt.Sprintf("duplicate element id %q", el.ID))
		default:
			elementIDs[el.ID] = true
		}
		if !knownTypes[el.Type] {
			problems = append(problems, fmt.Sprintf("element %q has unknown type %q", el.ID, el.Type))
		}
		if len(d.Participants) > 0 && el.Participant != "" && !participantIDs[el.Participant] {
			problems = append(problems, fmt.Sprintf("element %q references unknown participant %q", el.ID, el.Participant))
		}
	}

	flowIDs := make(map[string]bool, len(d.Flows))
	for i, f := range d.Flows {
		switch {
		case f.ID == "":
			problems = append(problems, fmt.Sprintf("flow %d has no id", i))
		case flowIDs[f.ID]:
			problems = append(problems, fmt.Sprintf("duplicate flow id %q", f.ID))
		default:
			flowIDs[f.ID] = true
		}
		if !elementIDs[f.Source] {
			problems = append(problems, fmt.Sprintf("flow %q source %q does not exist", f.ID, f.Source))
		}
		if !elementIDs[f.Target] {
			problems = append(problems, fmt.Sprintf("flow %q target %q does not exist", f.ID, f.Target))
		}
	}

	return problems
}

// ElementByID returns the element with the given id, or nil.
func (d *Document) ElementByID(id string) *Element {
	for i := range d.Elements {
		if d.Elements[i].ID == id {
			return &d.Elements[i]
		}
	}
	return nil
}
