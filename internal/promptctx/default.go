package promptctx

import (
	"context"
	"fmt"
	"strings"

	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
)

const systemPrompt = `You are a canvas design agent. You respond with a stream of
newline-delimited JSON actions, one object per line, no surrounding prose.
Each action is {"id": "...", "name": "<verb>", "params": {...}}.

Verbs: create_shape, update_shape, delete_shape, move, resize, rotate, align,
distribute, reorder, group, ungroup, stack, set_viewport, think, todo,
message, add_detail.

Coordinates are viewport-relative: (0,0) is the center of what you see in the
screenshot. Shape types: note, rectangle, ellipse, arrow, line, draw, text,
frame. Use think for reasoning you want to surface as chat, add_detail to
request another pass over part of the canvas.`

// DefaultBuilder assembles prompt parts from the room's live shape summary and
// the turn's screenshot. Deployments with their own context service implement
// Builder instead.
type DefaultBuilder struct {
	snapshots canvas.SnapshotSource
}

func NewDefaultBuilder(snapshots canvas.SnapshotSource) *DefaultBuilder {
	return &DefaultBuilder{snapshots: snapshots}
}

func (b *DefaultBuilder) BuildPromptParts(ctx context.Context, roomID string, req BuildRequest) (*Parts, error) {
	parts := &Parts{
		System: systemPrompt,
		User:   b.userMessage(req),
	}
	if req.Screenshot != nil {
		parts.ScreenshotPNG = req.Screenshot.Image
	}

	if b.snapshots != nil {
		sum, err := b.snapshots.ShapeSummary(ctx, roomID)
		if err == nil && sum != nil {
			parts.ShapeSummary = renderShapeSummary(sum)
		}
	}
	return parts, nil
}

func (b *DefaultBuilder) userMessage(req BuildRequest) string {
	var sb strings.Builder
	sb.WriteString(req.Message)
	if len(req.Selection) > 0 {
		fmt.Fprintf(&sb, "\n\nThe user has selected: %s", strings.Join(req.Selection, ", "))
	}
	if req.Profile != "" {
		fmt.Fprintf(&sb, "\n\nContext profile: %s", req.Profile)
	}
	return sb.String()
}

// renderShapeSummary flattens the snapshot into a compact per-line listing the
// model can reference shapes by.
func renderShapeSummary(sum *canvas.ShapeSummary) string {
	if len(sum.Shapes) == 0 {
		return "The canvas is currently empty."
	}
	var sb strings.Builder
	sb.WriteString("Shapes currently on the canvas:\n")
	for _, sh := range sum.Shapes {
		fmt.Fprintf(&sb, "- %s %s at (%.0f,%.0f) %gx%g", sh.ID, sh.Type, sh.Box.X, sh.Box.Y, sh.Box.W, sh.Box.H)
		if text, ok := sh.Props["text"]; ok && text != "" {
			fmt.Fprintf(&sb, " %q", text)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
