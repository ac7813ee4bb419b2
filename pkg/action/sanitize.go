package action

import (
	"math"

	"github.com/go-logr/logr"

	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
)

// Refs carries the id universe a batch is checked against: the live canvas
// snapshot and the ids this session has already created. Ids minted earlier in
// the same batch are tracked internally.
type Refs struct {
	Snapshot map[string]struct{}
	Session  map[string]struct{}
}

func (r Refs) known(id string) bool {
	if _, ok := r.Snapshot[id]; ok {
		return true
	}
	_, ok := r.Session[id]
	return ok
}

// DropCounts records why actions were removed from a batch. Drops are never
// fatal; they feed observability only.
type DropCounts struct {
	UnknownVerb   int `json:"unknown_verb"`
	UnknownShape  int `json:"unknown_shape"`
	InvalidSchema int `json:"invalid_schema"`
	Duplicate     int `json:"duplicate"`
	Dangling      int `json:"dangling"`
}

func (d DropCounts) Total() int {
	return d.UnknownVerb + d.UnknownShape + d.InvalidSchema + d.Duplicate + d.Dangling
}

// Result is the output of one sanitizer run.
type Result struct {
	Actions []AgentAction
	Drops   DropCounts
	// MintedIDs are entity ids created by surviving create_shape/group
	// actions, in order. The session registers them after dispatch.
	MintedIDs []string
	// SizedLineWarnings counts line shapes carrying explicit width/height.
	// The shape keeps its verb; the count is surfaced because some canvas
	// formats cannot render a sized line primitive.
	SizedLineWarnings int
}

// Sanitizer normalizes raw model output into canonical, validated,
// deduplicated action lists. It holds no per-session state; everything
// session-scoped arrives through Refs.
type Sanitizer struct {
	log logr.Logger
}

func NewSanitizer(log logr.Logger) *Sanitizer {
	return &Sanitizer{log: log.WithName("sanitizer")}
}

// Sanitize runs the full pipeline over one raw batch. partial marks an
// in-progress streaming batch: malformed entries in a partial batch are
// treated as incomplete fragments and dropped without counting, while the same
// entries in a final batch are counted as schema violations.
func (s *Sanitizer) Sanitize(batch []RawAction, refs Refs, off *canvas.OffsetManager, partial bool) Result {
	var res Result

	expanded := s.expandMacros(batch)
	minted := make(map[string]struct{})

	for _, raw := range expanded {
		act, verdict := s.normalize(raw, partial)
		switch verdict {
		case verdictOK:
		case verdictDropSilent:
			continue
		case verdictUnknownVerb:
			res.Drops.UnknownVerb++
			continue
		case verdictUnknownShape:
			res.Drops.UnknownShape++
			continue
		case verdictInvalidSchema:
			res.Drops.InvalidSchema++
			continue
		}

		if cp, ok := act.Params.(CreateShapeParams); ok && cp.Type == ShapeLine && (cp.Props.W != 0 || cp.Props.H != 0) {
			res.SizedLineWarnings++
			s.log.V(1).Info("line shape carries explicit size", "id", cp.ID)
		}

		act, ok := s.checkRefs(act, refs, minted, &res.Drops)
		if !ok {
			continue
		}

		act = interpretOffsets(act, off)
		res.Actions = append(res.Actions, act)
	}

	res.MintedIDs = orderedMinted(res.Actions)
	return res
}

// expandMacros runs preset expansion over the batch. Non-preset actions pass
// through untouched; preset names that decode to nothing vanish.
func (s *Sanitizer) expandMacros(batch []RawAction) []RawAction {
	out := make([]RawAction, 0, len(batch))
	for _, raw := range batch {
		if exp, isPreset := ExpandPreset(raw); isPreset {
			out = append(out, exp...)
			continue
		}
		out = append(out, raw)
	}
	return out
}

type verdict int

const (
	verdictOK verdict = iota
	verdictDropSilent
	verdictUnknownVerb
	verdictUnknownShape
	verdictInvalidSchema
)

// normalize resolves the verb, decodes params, sanitizes style properties and
// validates the schema of a single action.
func (s *Sanitizer) normalize(raw RawAction, partial bool) (AgentAction, verdict) {
	fail := func(v verdict, reason string) (AgentAction, verdict) {
		if partial {
			// Incomplete streaming fragment, not a violation.
			return AgentAction{}, verdictDropSilent
		}
		s.log.V(1).Info("action dropped", "id", raw.ID, "name", raw.Name, "reason", reason)
		return AgentAction{}, v
	}

	name := Name(normalizeToken(raw.Name))
	params, err := decodeParams(name, raw.Params)
	if err != nil {
		if _, known := verbs[name]; !known {
			return fail(verdictUnknownVerb, "unknown verb")
		}
		return fail(verdictInvalidSchema, "undecodable params")
	}

	if cp, ok := params.(CreateShapeParams); ok {
		canon, ok := ResolveShape(cp.Type)
		if !ok {
			return fail(verdictUnknownShape, "unresolvable shape type")
		}
		cp.Type = canon
		cp.Props = sanitizeProps(cp.Props)
		params = cp
	}
	if up, ok := params.(UpdateShapeParams); ok {
		up.Props = sanitizeProps(up.Props)
		params = up
	}

	act := AgentAction{ID: raw.ID, Name: name, Params: params}
	if err := validate(act); err != nil {
		return fail(verdictInvalidSchema, err.Error())
	}
	return act, verdictOK
}

// checkRefs applies the dedup and reference-integrity pass. Returns the
// (possibly id-filtered) action and whether it survives.
func (s *Sanitizer) checkRefs(act AgentAction, refs Refs, minted map[string]struct{}, drops *DropCounts) (AgentAction, bool) {
	exists := func(id string) bool {
		if _, ok := minted[id]; ok {
			return true
		}
		return refs.known(id)
	}

	filter := func(ids []string) []string {
		kept := ids[:0]
		for _, id := range ids {
			if exists(id) {
				kept = append(kept, id)
			}
		}
		return kept
	}

	switch p := act.Params.(type) {
	case CreateShapeParams:
		if exists(p.ID) {
			drops.Duplicate++
			s.log.V(1).Info("duplicate create dropped", "id", p.ID)
			return act, false
		}
		minted[p.ID] = struct{}{}
	case GroupParams:
		if exists(p.ID) {
			drops.Duplicate++
			return act, false
		}
		p.ChildIDs = filter(p.ChildIDs)
		if len(p.ChildIDs) < 2 {
			drops.Dangling++
			return act, false
		}
		minted[p.ID] = struct{}{}
		act.Params = p
	case UpdateShapeParams:
		if !exists(p.ID) {
			drops.Dangling++
			return act, false
		}
	case DeleteShapeParams:
		if !exists(p.ID) {
			drops.Dangling++
			return act, false
		}
	case ResizeParams:
		if !exists(p.ID) {
			drops.Dangling++
			return act, false
		}
	case RotateParams:
		if !exists(p.ID) {
			drops.Dangling++
			return act, false
		}
	case UngroupParams:
		if !exists(p.ID) {
			drops.Dangling++
			return act, false
		}
	case ReorderParams:
		if !exists(p.ID) {
			drops.Dangling++
			return act, false
		}
	case MoveParams:
		p.IDs = filter(p.IDs)
		if len(p.IDs) == 0 {
			drops.Dangling++
			return act, false
		}
		act.Params = p
	case AlignParams:
		p.IDs = filter(p.IDs)
		if len(p.IDs) < 2 {
			drops.Dangling++
			return act, false
		}
		act.Params = p
	case DistributeParams:
		p.IDs = filter(p.IDs)
		if len(p.IDs) < 3 {
			drops.Dangling++
			return act, false
		}
		act.Params = p
	case StackParams:
		p.IDs = filter(p.IDs)
		if len(p.IDs) < 2 {
			drops.Dangling++
			return act, false
		}
		act.Params = p
	}
	return act, true
}

// interpretOffsets converts positional fields from the model's local frame to
// world coordinates. Deltas and sizes are frame-independent.
func interpretOffsets(act AgentAction, off *canvas.OffsetManager) AgentAction {
	if off == nil {
		return act
	}
	switch p := act.Params.(type) {
	case CreateShapeParams:
		w := off.Interpret(canvas.Point{X: p.X, Y: p.Y})
		p.X, p.Y = w.X, w.Y
		act.Params = p
	case MoveParams:
		if p.To != nil {
			w := off.Interpret(*p.To)
			p.To = &w
			act.Params = p
		}
	case SetViewportParams:
		p.Bounds = off.InterpretBox(p.Bounds)
		act.Params = p
	}
	return act
}

func sanitizeProps(p ShapeProps) ShapeProps {
	resolve := func(v vocab, raw string) string {
		if raw == "" {
			return ""
		}
		canon, ok := v.resolve(raw)
		if !ok {
			// Unresolvable style values are dropped, never passed through.
			return ""
		}
		return canon
	}
	p.Color = resolve(colorVocab, p.Color)
	p.Fill = resolve(fillVocab, p.Fill)
	p.Dash = resolve(dashVocab, p.Dash)
	p.Font = resolve(fontVocab, p.Font)
	p.Size = resolve(sizeVocab, p.Size)
	if !finite(p.W) || p.W < 0 {
		p.W = 0
	}
	if !finite(p.H) || p.H < 0 {
		p.H = 0
	}
	return p
}

func orderedMinted(actions []AgentAction) []string {
	var ids []string
	for _, a := range actions {
		switch p := a.Params.(type) {
		case CreateShapeParams:
			ids = append(ids, p.ID)
		case GroupParams:
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
