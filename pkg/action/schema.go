package action

import "fmt"

var verbs = map[Name]struct{}{
	NameCreateShape: {}, NameUpdateShape: {}, NameDeleteShape: {},
	NameMove: {}, NameResize: {}, NameRotate: {},
	NameGroup: {}, NameUngroup: {}, NameAlign: {}, NameDistribute: {},
	NameStack: {}, NameReorder: {}, NameSetViewport: {},
	NameThink: {}, NameTodo: {}, NameAddDetail: {}, NameMessage: {},
}

// validate checks a normalized action against the canonical schema: required
// fields present, enum membership, numeric fields finite.
func validate(a AgentAction) error {
	if a.ID == "" {
		return fmt.Errorf("missing action id")
	}
	switch p := a.Params.(type) {
	case CreateShapeParams:
		if p.ID == "" {
			return fmt.Errorf("create_shape: missing shape id")
		}
		if !finite(p.X) || !finite(p.Y) {
			return fmt.Errorf("create_shape: non-finite position")
		}
	case UpdateShapeParams:
		if p.ID == "" {
			return fmt.Errorf("update_shape: missing shape id")
		}
	case DeleteShapeParams:
		if p.ID == "" {
			return fmt.Errorf("delete_shape: missing shape id")
		}
	case MoveParams:
		if len(p.IDs) == 0 {
			return fmt.Errorf("move: no target ids")
		}
		if !finite(p.DX) || !finite(p.DY) {
			return fmt.Errorf("move: non-finite delta")
		}
		if p.To != nil && (!finite(p.To.X) || !finite(p.To.Y)) {
			return fmt.Errorf("move: non-finite target")
		}
	case ResizeParams:
		if p.ID == "" {
			return fmt.Errorf("resize: missing shape id")
		}
		if !finite(p.W) || !finite(p.H) || p.W <= 0 || p.H <= 0 {
			return fmt.Errorf("resize: invalid dimensions")
		}
	case RotateParams:
		if p.ID == "" {
			return fmt.Errorf("rotate: missing shape id")
		}
		if !finite(p.Degrees) {
			return fmt.Errorf("rotate: non-finite angle")
		}
	case GroupParams:
		if p.ID == "" {
			return fmt.Errorf("group: missing group id")
		}
		if len(p.ChildIDs) < 2 {
			return fmt.Errorf("group: needs at least two children")
		}
	case UngroupParams:
		if p.ID == "" {
			return fmt.Errorf("ungroup: missing group id")
		}
	case AlignParams:
		if len(p.IDs) < 2 {
			return fmt.Errorf("align: needs at least two ids")
		}
		if _, ok := alignModes[p.Mode]; !ok {
			return fmt.Errorf("align: unknown mode %q", p.Mode)
		}
	case DistributeParams:
		if len(p.IDs) < 3 {
			return fmt.Errorf("distribute: needs at least three ids")
		}
		if _, ok := axes[p.Axis]; !ok {
			return fmt.Errorf("distribute: unknown axis %q", p.Axis)
		}
	case StackParams:
		if len(p.IDs) < 2 {
			return fmt.Errorf("stack: needs at least two ids")
		}
		if _, ok := axes[p.Axis]; !ok {
			return fmt.Errorf("stack: unknown axis %q", p.Axis)
		}
		if !finite(p.Gap) || p.Gap < 0 {
			return fmt.Errorf("stack: invalid gap")
		}
	case ReorderParams:
		if p.ID == "" {
			return fmt.Errorf("reorder: missing shape id")
		}
		if _, ok := reorderDirections[p.Direction]; !ok {
			return fmt.Errorf("reorder: unknown direction %q", p.Direction)
		}
	case SetViewportParams:
		b := p.Bounds
		if !finite(b.X) || !finite(b.Y) || !finite(b.W) || !finite(b.H) {
			return fmt.Errorf("set_viewport: non-finite bounds")
		}
		if b.W <= 0 || b.H <= 0 {
			return fmt.Errorf("set_viewport: empty bounds")
		}
	case ThinkParams:
		if p.Text == "" {
			return fmt.Errorf("think: empty text")
		}
	case TodoParams:
		if p.Text == "" {
			return fmt.Errorf("todo: empty text")
		}
	case AddDetailParams:
		if p.Message == "" {
			return fmt.Errorf("add_detail: empty message")
		}
	case MessageParams:
		if p.Text == "" {
			return fmt.Errorf("message: empty text")
		}
	default:
		return fmt.Errorf("unknown params type %T", a.Params)
	}
	return nil
}
