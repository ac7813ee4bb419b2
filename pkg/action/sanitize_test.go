package action

import (
	"encoding/json"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
)

func raw(t *testing.T, id, name string, params any) RawAction {
	t.Helper()
	b, err := json.Marshal(params)
	require.NoError(t, err)
	return RawAction{ID: id, Name: name, Params: b}
}

func newTestSanitizer() *Sanitizer {
	return NewSanitizer(logr.Discard())
}

func TestSanitize_AliasResolution(t *testing.T) {
	s := newTestSanitizer()

	batch := []RawAction{
		raw(t, "r1", "create_shape", map[string]any{
			"id": "r1", "type": "box", "x": 10.0, "y": 10.0,
			"props": map[string]any{"w": 100, "h": 50, "color": "brutalist-orange"},
		}),
	}

	res := s.Sanitize(batch, Refs{}, canvas.NewOffsetManager(canvas.Point{}), false)
	require.Len(t, res.Actions, 1)
	require.Zero(t, res.Drops.Total())

	cp, ok := res.Actions[0].Params.(CreateShapeParams)
	require.True(t, ok)
	require.Equal(t, ShapeNote, cp.Type)
	require.Equal(t, "orange", cp.Props.Color)
	require.Equal(t, []string{"r1"}, res.MintedIDs)
}

func TestSanitize_UnknownShapeDropped(t *testing.T) {
	s := newTestSanitizer()
	batch := []RawAction{
		raw(t, "a1", "create_shape", map[string]any{"id": "a1", "type": "dodecahedron", "x": 0, "y": 0}),
	}

	res := s.Sanitize(batch, Refs{}, nil, false)
	require.Empty(t, res.Actions)
	require.Equal(t, 1, res.Drops.UnknownShape)
}

func TestSanitize_UnknownVerb(t *testing.T) {
	s := newTestSanitizer()
	batch := []RawAction{raw(t, "a1", "teleport", map[string]any{"id": "a1"})}

	final := s.Sanitize(batch, Refs{}, nil, false)
	require.Equal(t, 1, final.Drops.UnknownVerb)

	// The same garbage in a partial batch is an incomplete fragment, not a
	// violation.
	partial := s.Sanitize(batch, Refs{}, nil, true)
	require.Zero(t, partial.Drops.Total())
	require.Empty(t, partial.Actions)
}

func TestSanitize_DuplicateCreates(t *testing.T) {
	s := newTestSanitizer()

	create := func(id string) RawAction {
		return raw(t, id, "create_shape", map[string]any{"id": id, "type": "note", "x": 0, "y": 0})
	}

	t.Run("within batch", func(t *testing.T) {
		res := s.Sanitize([]RawAction{create("n1"), create("n1")}, Refs{}, nil, false)
		require.Len(t, res.Actions, 1)
		require.Equal(t, 1, res.Drops.Duplicate)
	})

	t.Run("against snapshot", func(t *testing.T) {
		refs := Refs{Snapshot: map[string]struct{}{"n1": {}}}
		res := s.Sanitize([]RawAction{create("n1")}, refs, nil, false)
		require.Empty(t, res.Actions)
		require.Equal(t, 1, res.Drops.Duplicate)
	})

	t.Run("against session created ids", func(t *testing.T) {
		refs := Refs{Session: map[string]struct{}{"n1": {}}}
		res := s.Sanitize([]RawAction{create("n1")}, refs, nil, false)
		require.Empty(t, res.Actions)
		require.Equal(t, 1, res.Drops.Duplicate)
	})
}

func TestSanitize_DanglingReferences(t *testing.T) {
	s := newTestSanitizer()
	refs := Refs{Snapshot: map[string]struct{}{"known": {}}}

	tests := []struct {
		name  string
		batch []RawAction
	}{
		{"update unknown", []RawAction{raw(t, "u1", "update_shape", map[string]any{"id": "ghost", "props": map[string]any{"text": "x"}})}},
		{"delete unknown", []RawAction{raw(t, "d1", "delete_shape", map[string]any{"id": "ghost"})}},
		{"resize unknown", []RawAction{raw(t, "z1", "resize", map[string]any{"id": "ghost", "w": 10, "h": 10})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Sanitize(tt.batch, refs, nil, false)
			require.Empty(t, res.Actions)
			require.Equal(t, 1, res.Drops.Dangling)
		})
	}
}

func TestSanitize_BatchLocalReference(t *testing.T) {
	s := newTestSanitizer()

	// An update may target a shape created earlier in the same batch.
	batch := []RawAction{
		raw(t, "c1", "create_shape", map[string]any{"id": "n1", "type": "note", "x": 0, "y": 0}),
		raw(t, "u1", "update_shape", map[string]any{"id": "n1", "props": map[string]any{"text": "hi"}}),
	}
	res := s.Sanitize(batch, Refs{}, nil, false)
	require.Len(t, res.Actions, 2)
	require.Zero(t, res.Drops.Total())
}

func TestSanitize_MultiTargetFiltering(t *testing.T) {
	s := newTestSanitizer()
	refs := Refs{Snapshot: map[string]struct{}{"a": {}, "b": {}}}

	t.Run("move keeps surviving ids", func(t *testing.T) {
		batch := []RawAction{raw(t, "m1", "move", map[string]any{"ids": []string{"a", "ghost"}, "dx": 5, "dy": 5})}
		res := s.Sanitize(batch, refs, nil, false)
		require.Len(t, res.Actions, 1)
		require.Equal(t, []string{"a"}, res.Actions[0].Params.(MoveParams).IDs)
	})

	t.Run("align below minimum drops", func(t *testing.T) {
		batch := []RawAction{raw(t, "al1", "align", map[string]any{"ids": []string{"a", "ghost"}, "mode": "left"})}
		res := s.Sanitize(batch, refs, nil, false)
		require.Empty(t, res.Actions)
		require.Equal(t, 1, res.Drops.Dangling)
	})

	t.Run("group needs two surviving children", func(t *testing.T) {
		batch := []RawAction{raw(t, "g1", "group", map[string]any{"id": "g1", "child_ids": []string{"a", "b", "ghost"}})}
		res := s.Sanitize(batch, refs, nil, false)
		require.Len(t, res.Actions, 1)
		require.Equal(t, []string{"a", "b"}, res.Actions[0].Params.(GroupParams).ChildIDs)
		require.Equal(t, []string{"g1"}, res.MintedIDs)
	})
}

func TestSanitize_SchemaValidation(t *testing.T) {
	s := newTestSanitizer()

	tests := []struct {
		name  string
		batch []RawAction
	}{
		{"missing shape id", []RawAction{raw(t, "c1", "create_shape", map[string]any{"type": "note", "x": 0, "y": 0})}},
		{"empty think", []RawAction{raw(t, "t1", "think", map[string]any{"text": ""})}},
		{"bad align mode", []RawAction{raw(t, "a1", "align", map[string]any{"ids": []string{"x", "y"}, "mode": "diagonal"})}},
		{"undecodable params", []RawAction{{ID: "b1", Name: "move", Params: json.RawMessage(`{"ids": "not-an-array"}`)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Sanitize(tt.batch, Refs{}, nil, false)
			require.Empty(t, res.Actions)
			require.Equal(t, 1, res.Drops.InvalidSchema)
		})
	}
}

func TestSanitize_OffsetInterpretation(t *testing.T) {
	s := newTestSanitizer()
	off := canvas.NewOffsetManager(canvas.Point{X: 1000, Y: 500})

	batch := []RawAction{
		raw(t, "c1", "create_shape", map[string]any{"id": "n1", "type": "note", "x": 10, "y": 20}),
		raw(t, "v1", "set_viewport", map[string]any{"bounds": map[string]any{"x": -100, "y": -100, "w": 200, "h": 200}}),
	}
	res := s.Sanitize(batch, Refs{}, off, false)
	require.Len(t, res.Actions, 2)

	cp := res.Actions[0].Params.(CreateShapeParams)
	require.Equal(t, 1010.0, cp.X)
	require.Equal(t, 520.0, cp.Y)

	vp := res.Actions[1].Params.(SetViewportParams)
	require.Equal(t, canvas.Box{X: 900, Y: 400, W: 200, H: 200}, vp.Bounds)
}

func TestSanitize_PresetExpansion(t *testing.T) {
	s := newTestSanitizer()

	batch := []RawAction{
		raw(t, "f1", "titled_frame", map[string]any{"id": "f1", "x": 0, "y": 0, "title": "Login flow"}),
	}
	res := s.Sanitize(batch, Refs{}, nil, false)
	require.Len(t, res.Actions, 2)
	require.Equal(t, []string{"f1-frame", "f1-title"}, res.MintedIDs)

	frame := res.Actions[0].Params.(CreateShapeParams)
	require.Equal(t, ShapeFrame, frame.Type)
}

func TestSanitize_SizedLineWarning(t *testing.T) {
	s := newTestSanitizer()

	batch := []RawAction{
		raw(t, "l1", "create_shape", map[string]any{
			"id": "l1", "type": "line", "x": 0, "y": 0,
			"props": map[string]any{"w": 120, "h": 40},
		}),
	}
	res := s.Sanitize(batch, Refs{}, nil, false)

	// The shape keeps its verb and type; only the warning counter moves.
	require.Len(t, res.Actions, 1)
	require.Equal(t, ShapeLine, res.Actions[0].Params.(CreateShapeParams).Type)
	require.Equal(t, 1, res.SizedLineWarnings)
}

func TestSanitize_UnknownPresetIsNoop(t *testing.T) {
	s := newTestSanitizer()

	exp, isPreset := ExpandPreset(RawAction{ID: "x", Name: "golden_ratio_grid"})
	require.False(t, isPreset)
	require.Nil(t, exp)

	// Unknown non-preset verbs still count as unknown verbs.
	res := s.Sanitize([]RawAction{raw(t, "x", "golden_ratio_grid", map[string]any{})}, Refs{}, nil, false)
	require.Equal(t, 1, res.Drops.UnknownVerb)
}

func TestSanitize_StylePropsSanitized(t *testing.T) {
	s := newTestSanitizer()

	batch := []RawAction{
		raw(t, "c1", "create_shape", map[string]any{
			"id": "n1", "type": "note", "x": 0, "y": 0,
			"props": map[string]any{"color": "chartreuse", "fill": "FILLED", "size": "huge", "w": -5},
		}),
	}
	res := s.Sanitize(batch, Refs{}, nil, false)
	require.Len(t, res.Actions, 1)

	props := res.Actions[0].Params.(CreateShapeParams).Props
	require.Empty(t, props.Color, "unresolvable color must be dropped, not passed through")
	require.Equal(t, "solid", props.Fill)
	require.Equal(t, "xl", props.Size)
	require.Zero(t, props.W)
}

func TestMutating(t *testing.T) {
	require.True(t, AgentAction{Name: NameCreateShape}.Mutating())
	require.True(t, AgentAction{Name: NameMove}.Mutating())
	require.False(t, AgentAction{Name: NameThink}.Mutating())
	require.False(t, AgentAction{Name: NameAddDetail}.Mutating())
	require.False(t, AgentAction{Name: NameSetViewport}.Mutating())
}
