package action

import (
	"encoding/json"
	"fmt"
)

// Presets are named style/layout shortcuts the model may emit instead of the
// canonical verbs. Each expands into zero or more canonical actions before the
// rest of the pipeline runs. An unknown preset expands to nothing: streaming
// models routinely invent names, and a no-op is safer than an error.

type presetFunc func(raw RawAction) []RawAction

var presets = map[string]presetFunc{
	"titled_frame": expandTitledFrame,
	"callout":      expandCallout,
	"swatch_row":   expandSwatchRow,
}

// ExpandPreset expands a preset action. The second return is false when the
// action is not a preset at all and should flow through the pipeline as-is.
func ExpandPreset(raw RawAction) ([]RawAction, bool) {
	fn, ok := presets[normalizeToken(raw.Name)]
	if !ok {
		return nil, false
	}
	return fn(raw), true
}

type presetGeom struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
	Title string  `json:"title"`
	Color string  `json:"color"`
}

func decodeGeom(raw RawAction) (presetGeom, bool) {
	g := presetGeom{W: 400, H: 300}
	if len(raw.Params) > 0 {
		if err := json.Unmarshal(raw.Params, &g); err != nil {
			return g, false
		}
	}
	if g.ID == "" {
		g.ID = raw.ID
	}
	return g, g.ID != ""
}

func mustRaw(id string, name Name, params any) RawAction {
	b, _ := json.Marshal(params)
	return RawAction{ID: id, Name: string(name), Params: b}
}

// titled_frame: a frame with a text heading pinned to its top-left corner.
func expandTitledFrame(raw RawAction) []RawAction {
	g, ok := decodeGeom(raw)
	if !ok {
		return nil
	}
	return []RawAction{
		mustRaw(g.ID+"-frame", NameCreateShape, CreateShapeParams{
			ID: g.ID + "-frame", Type: ShapeFrame, X: g.X, Y: g.Y,
			Props: ShapeProps{W: g.W, H: g.H},
		}),
		mustRaw(g.ID+"-title", NameCreateShape, CreateShapeParams{
			ID: g.ID + "-title", Type: ShapeText, X: g.X + 12, Y: g.Y - 28,
			Props: ShapeProps{Text: g.Title, Size: "l", Color: g.Color},
		}),
	}
}

// callout: a note plus an arrow pointing at it from the upper left.
func expandCallout(raw RawAction) []RawAction {
	g, ok := decodeGeom(raw)
	if !ok {
		return nil
	}
	return []RawAction{
		mustRaw(g.ID+"-note", NameCreateShape, CreateShapeParams{
			ID: g.ID + "-note", Type: ShapeNote, X: g.X, Y: g.Y,
			Props: ShapeProps{W: g.W, H: g.H, Text: g.Title, Color: g.Color},
		}),
		mustRaw(g.ID+"-arrow", NameCreateShape, CreateShapeParams{
			ID: g.ID + "-arrow", Type: ShapeArrow, X: g.X - 80, Y: g.Y - 60,
			Props: ShapeProps{W: 80, H: 60},
		}),
	}
}

// swatch_row: one small filled rectangle per palette color, laid out left to
// right starting at the preset position.
func expandSwatchRow(raw RawAction) []RawAction {
	g, ok := decodeGeom(raw)
	if !ok {
		return nil
	}
	out := make([]RawAction, 0, len(colorVocab.canonical))
	for i, c := range colorVocab.canonical {
		id := fmt.Sprintf("%s-swatch-%d", g.ID, i)
		out = append(out, mustRaw(id, NameCreateShape, CreateShapeParams{
			ID: id, Type: ShapeRectangle, X: g.X + float64(i)*48, Y: g.Y,
			Props: ShapeProps{W: 40, H: 40, Color: c, Fill: "solid"},
		}))
	}
	return out
}
