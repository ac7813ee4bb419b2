package action

import (
	"strings"

	"github.com/stoewer/go-strcase"
)

// Canonical shape kinds. The canvas renderer only understands these; anything
// else the model invents is funneled through shapeAliases or dropped.
const (
	ShapeNote      = "note"
	ShapeRectangle = "rectangle"
	ShapeEllipse   = "ellipse"
	ShapeArrow     = "arrow"
	ShapeLine      = "line"
	ShapeDraw      = "draw"
	ShapeText      = "text"
	ShapeFrame     = "frame"
)

var canonicalShapes = map[string]struct{}{
	ShapeNote: {}, ShapeRectangle: {}, ShapeEllipse: {}, ShapeArrow: {},
	ShapeLine: {}, ShapeDraw: {}, ShapeText: {}, ShapeFrame: {},
}

var shapeAliases = map[string]string{
	"box":         ShapeNote,
	"sticky":      ShapeNote,
	"sticky_note": ShapeNote,
	"postit":      ShapeNote,
	"card":        ShapeNote,
	"rect":        ShapeRectangle,
	"square":      ShapeRectangle,
	"geo":         ShapeRectangle,
	"circle":      ShapeEllipse,
	"oval":        ShapeEllipse,
	"connector":   ShapeArrow,
	"edge":        ShapeArrow,
	"segment":     ShapeLine,
	"stroke":      ShapeDraw,
	"freehand":    ShapeDraw,
	"scribble":    ShapeDraw,
	"label":       ShapeText,
	"heading":     ShapeText,
	"caption":     ShapeText,
	"container":   ShapeFrame,
	"region":      ShapeFrame,
	"section":     ShapeFrame,
}

// ResolveShape maps a free-form type string onto a canonical shape kind.
func ResolveShape(raw string) (string, bool) {
	key := normalizeToken(raw)
	if _, ok := canonicalShapes[key]; ok {
		return key, true
	}
	if canon, ok := shapeAliases[key]; ok {
		return canon, true
	}
	return "", false
}

// Canonical style vocabularies. Modeled on the standard canvas palette.
var colorVocab = vocab{
	canonical: []string{
		"black", "grey", "white", "red", "light-red", "orange", "yellow",
		"green", "light-green", "blue", "light-blue", "violet", "light-violet",
	},
	aliases: map[string]string{
		"gray":             "grey",
		"dark":             "black",
		"crimson":          "red",
		"scarlet":          "red",
		"pink":             "light-red",
		"salmon":           "light-red",
		"brutalist_orange": "orange",
		"amber":            "orange",
		"gold":             "yellow",
		"lime":             "light-green",
		"mint":             "light-green",
		"teal":             "light-blue",
		"cyan":             "light-blue",
		"sky":              "light-blue",
		"navy":             "blue",
		"indigo":           "violet",
		"purple":           "violet",
		"lavender":         "light-violet",
	},
}

var fillVocab = vocab{
	canonical: []string{"none", "semi", "solid", "pattern"},
	aliases: map[string]string{
		"empty":       "none",
		"transparent": "none",
		"translucent": "semi",
		"half":        "semi",
		"filled":      "solid",
		"full":        "solid",
		"hatch":       "pattern",
		"hatched":     "pattern",
	},
}

var dashVocab = vocab{
	canonical: []string{"draw", "solid", "dashed", "dotted"},
	aliases: map[string]string{
		"plain":  "solid",
		"dash":   "dashed",
		"dashes": "dashed",
		"dot":    "dotted",
		"dots":   "dotted",
		"sketch": "draw",
	},
}

var fontVocab = vocab{
	canonical: []string{"draw", "sans", "serif", "mono"},
	aliases: map[string]string{
		"handwritten": "draw",
		"arial":       "sans",
		"helvetica":   "sans",
		"times":       "serif",
		"georgia":     "serif",
		"courier":     "mono",
		"monospace":   "mono",
		"code":        "mono",
	},
}

var sizeVocab = vocab{
	canonical: []string{"s", "m", "l", "xl"},
	aliases: map[string]string{
		"small":  "s",
		"tiny":   "s",
		"medium": "m",
		"normal": "m",
		"large":  "l",
		"big":    "l",
		"huge":   "xl",
		"xlarge": "xl",
	},
}

// Alignment and distribution enums used by schema validation.
var alignModes = map[string]struct{}{
	"left": {}, "right": {}, "top": {}, "bottom": {}, "center-x": {}, "center-y": {},
}

var axes = map[string]struct{}{"x": {}, "y": {}}

var reorderDirections = map[string]struct{}{
	"forward": {}, "backward": {}, "front": {}, "back": {},
}

type vocab struct {
	canonical []string
	aliases   map[string]string
}

// resolve normalizes raw into the vocabulary, or returns false when the value
// cannot be placed anywhere in it.
func (v vocab) resolve(raw string) (string, bool) {
	key := normalizeToken(raw)
	for _, c := range v.canonical {
		if key == normalizeToken(c) {
			return c, true
		}
	}
	if canon, ok := v.aliases[key]; ok {
		return canon, true
	}
	return "", false
}

// normalizeToken lower-cases and snake_cases a free-form token so alias lookup
// is insensitive to the model's casing and separator habits.
func normalizeToken(s string) string {
	return strcase.SnakeCase(strings.TrimSpace(strings.ToLower(s)))
}
