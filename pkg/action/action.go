package action

import (
	"encoding/json"
	"fmt"

	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
)

// Name identifies an action verb. The set is closed; anything the model emits
// outside of it is resolved through the alias table or dropped at the schema
// boundary.
type Name string

const (
	NameCreateShape Name = "create_shape"
	NameUpdateShape Name = "update_shape"
	NameDeleteShape Name = "delete_shape"
	NameMove        Name = "move"
	NameResize      Name = "resize"
	NameRotate      Name = "rotate"
	NameGroup       Name = "group"
	NameUngroup     Name = "ungroup"
	NameAlign       Name = "align"
	NameDistribute  Name = "distribute"
	NameStack       Name = "stack"
	NameReorder     Name = "reorder"
	NameSetViewport Name = "set_viewport"
	NameThink       Name = "think"
	NameTodo        Name = "todo"
	NameAddDetail   Name = "add_detail"
	NameMessage     Name = "message"
)

// RawAction is the untyped form actions arrive in from the provider stream.
// Params stays opaque until the sanitizer decodes it against the verb.
type RawAction struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}

// AgentAction is a validated, canonical action. Params is a closed
// discriminated union keyed by Name.
type AgentAction struct {
	ID     string `json:"id"`
	Name   Name   `json:"name"`
	Params Params `json:"params"`
}

// Params is implemented by every per-verb payload type.
type Params interface {
	verb() Name
}

// UnmarshalJSON decodes the params payload against the verb, so envelopes
// survive a JSON round trip through clients.
func (a *AgentAction) UnmarshalJSON(data []byte) error {
	var raw RawAction
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p, err := decodeParams(Name(raw.Name), raw.Params)
	if err != nil {
		return err
	}
	a.ID = raw.ID
	a.Name = Name(raw.Name)
	a.Params = p
	return nil
}

// ShapeProps holds the sanitized style fields of a shape. Empty strings mean
// "not set"; the sanitizer never passes through an unresolved value.
type ShapeProps struct {
	W     float64 `json:"w,omitempty"`
	H     float64 `json:"h,omitempty"`
	Color string  `json:"color,omitempty"`
	Fill  string  `json:"fill,omitempty"`
	Dash  string  `json:"dash,omitempty"`
	Font  string  `json:"font,omitempty"`
	Size  string  `json:"size,omitempty"`
	Text  string  `json:"text,omitempty"`
}

type CreateShapeParams struct {
	ID    string     `json:"id"`
	Type  string     `json:"type"`
	X     float64    `json:"x"`
	Y     float64    `json:"y"`
	Props ShapeProps `json:"props"`
}

type UpdateShapeParams struct {
	ID    string     `json:"id"`
	Props ShapeProps `json:"props"`
}

type DeleteShapeParams struct {
	ID string `json:"id"`
}

type MoveParams struct {
	IDs []string      `json:"ids"`
	To  *canvas.Point `json:"to,omitempty"`
	DX  float64       `json:"dx,omitempty"`
	DY  float64       `json:"dy,omitempty"`
}

type ResizeParams struct {
	ID string  `json:"id"`
	W  float64 `json:"w"`
	H  float64 `json:"h"`
}

type RotateParams struct {
	ID      string  `json:"id"`
	Degrees float64 `json:"degrees"`
}

type GroupParams struct {
	ID       string   `json:"id"`
	ChildIDs []string `json:"child_ids"`
}

type UngroupParams struct {
	ID string `json:"id"`
}

type AlignParams struct {
	IDs  []string `json:"ids"`
	Mode string   `json:"mode"` // left, right, top, bottom, center-x, center-y
}

type DistributeParams struct {
	IDs  []string `json:"ids"`
	Axis string   `json:"axis"` // x, y
}

type StackParams struct {
	IDs  []string `json:"ids"`
	Axis string   `json:"axis"` // x, y
	Gap  float64  `json:"gap,omitempty"`
}

type ReorderParams struct {
	ID        string `json:"id"`
	Direction string `json:"direction"` // forward, backward, front, back
}

type SetViewportParams struct {
	Bounds canvas.Box `json:"bounds"`
}

type ThinkParams struct {
	Text string `json:"text"`
}

type TodoParams struct {
	Text string `json:"text"`
}

type AddDetailParams struct {
	Message   string   `json:"message"`
	Hint      string   `json:"hint,omitempty"`
	Strict    bool     `json:"strict,omitempty"`
	TargetIDs []string `json:"target_ids,omitempty"`
}

type MessageParams struct {
	Text string `json:"text"`
}

func (CreateShapeParams) verb() Name { return NameCreateShape }
func (UpdateShapeParams) verb() Name { return NameUpdateShape }
func (DeleteShapeParams) verb() Name { return NameDeleteShape }
func (MoveParams) verb() Name        { return NameMove }
func (ResizeParams) verb() Name      { return NameResize }
func (RotateParams) verb() Name      { return NameRotate }
func (GroupParams) verb() Name       { return NameGroup }
func (UngroupParams) verb() Name     { return NameUngroup }
func (AlignParams) verb() Name       { return NameAlign }
func (DistributeParams) verb() Name  { return NameDistribute }
func (StackParams) verb() Name       { return NameStack }
func (ReorderParams) verb() Name     { return NameReorder }
func (SetViewportParams) verb() Name { return NameSetViewport }
func (ThinkParams) verb() Name       { return NameThink }
func (TodoParams) verb() Name        { return NameTodo }
func (AddDetailParams) verb() Name   { return NameAddDetail }
func (MessageParams) verb() Name     { return NameMessage }

// Mutating reports whether the action changes canvas document state. The
// low-yield follow-up heuristic counts only mutating actions.
func (a AgentAction) Mutating() bool {
	switch a.Name {
	case NameThink, NameTodo, NameAddDetail, NameMessage, NameSetViewport:
		return false
	}
	return true
}

func unmarshalParams[T Params](raw json.RawMessage) (Params, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeParams decodes a raw payload into the typed union for the given verb.
func decodeParams(name Name, raw json.RawMessage) (Params, error) {
	var (
		p   Params
		err error
	)
	switch name {
	case NameCreateShape:
		p, err = unmarshalParams[CreateShapeParams](raw)
	case NameUpdateShape:
		p, err = unmarshalParams[UpdateShapeParams](raw)
	case NameDeleteShape:
		p, err = unmarshalParams[DeleteShapeParams](raw)
	case NameMove:
		p, err = unmarshalParams[MoveParams](raw)
	case NameResize:
		p, err = unmarshalParams[ResizeParams](raw)
	case NameRotate:
		p, err = unmarshalParams[RotateParams](raw)
	case NameGroup:
		p, err = unmarshalParams[GroupParams](raw)
	case NameUngroup:
		p, err = unmarshalParams[UngroupParams](raw)
	case NameAlign:
		p, err = unmarshalParams[AlignParams](raw)
	case NameDistribute:
		p, err = unmarshalParams[DistributeParams](raw)
	case NameStack:
		p, err = unmarshalParams[StackParams](raw)
	case NameReorder:
		p, err = unmarshalParams[ReorderParams](raw)
	case NameSetViewport:
		p, err = unmarshalParams[SetViewportParams](raw)
	case NameThink:
		p, err = unmarshalParams[ThinkParams](raw)
	case NameTodo:
		p, err = unmarshalParams[TodoParams](raw)
	case NameAddDetail:
		p, err = unmarshalParams[AddDetailParams](raw)
	case NameMessage:
		p, err = unmarshalParams[MessageParams](raw)
	default:
		return nil, fmt.Errorf("unknown action verb %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", name, err)
	}
	return p, nil
}
