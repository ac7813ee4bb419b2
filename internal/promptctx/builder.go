package promptctx

import (
	"context"

	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// Budget is the metadata block the pipeline reads off prompt parts. It is the
// only part of Parts the session core interprets; everything else flows
// opaquely to the provider adapter.
type Budget struct {
	CharBudget int `json:"char_budget"`
	Chars      int `json:"chars"`
}

// Over reports whether the measured prompt exceeds its character budget.
func (b Budget) Over() bool {
	return b.CharBudget > 0 && b.Chars > b.CharBudget
}

// Parts is the assembled model input for one turn.
type Parts struct {
	System        string
	User          string
	Transcript    []string
	ShapeSummary  string
	ScreenshotPNG []byte
	Budget        Budget
}

// Measure recomputes the character count, including a fixed-rate estimate for
// the screenshot payload, and updates the budget block.
func (p *Parts) Measure(charBudget int) {
	chars := len(p.System) + len(p.User) + len(p.ShapeSummary)
	for _, t := range p.Transcript {
		chars += len(t)
	}
	// Images enter the prompt base64-encoded: 4 output chars per 3 bytes.
	chars += (len(p.ScreenshotPNG)*4 + 2) / 3
	p.Budget = Budget{CharBudget: charBudget, Chars: chars}
}

// DropScreenshot removes the screenshot from the prompt and re-measures.
// The last resort of the prompt-shrinking ladder.
func (p *Parts) DropScreenshot() {
	p.ScreenshotPNG = nil
	p.Measure(p.Budget.CharBudget)
}

// BuildRequest is the input to the external context builder.
type BuildRequest struct {
	Message    string
	Profile    string
	WindowMs   int64
	Viewport   canvas.Viewport
	Selection  []string
	Screenshot *wire.ScreenshotResponse
	Offset     canvas.Point
}

// Builder assembles prompt parts for a room. It is an external collaborator;
// the core only consumes its output shape.
type Builder interface {
	BuildPromptParts(ctx context.Context, roomID string, req BuildRequest) (*Parts, error)
}
