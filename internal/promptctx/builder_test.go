package promptctx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

func TestParts_Measure(t *testing.T) {
	p := Parts{
		System:     strings.Repeat("s", 100),
		User:       strings.Repeat("u", 50),
		Transcript: []string{strings.Repeat("t", 25), strings.Repeat("t", 25)},
	}
	p.Measure(1000)

	require.Equal(t, 200, p.Budget.Chars)
	require.False(t, p.Budget.Over())

	p.Measure(199)
	require.True(t, p.Budget.Over())
}

func TestParts_MeasureCountsScreenshot(t *testing.T) {
	p := Parts{ScreenshotPNG: make([]byte, 300)}
	p.Measure(1000)

	// Images count at their base64-encoded size.
	require.Equal(t, 400, p.Budget.Chars)
}

func TestParts_DropScreenshot(t *testing.T) {
	p := Parts{User: "hello", ScreenshotPNG: make([]byte, 3000)}
	p.Measure(100)
	require.True(t, p.Budget.Over())

	p.DropScreenshot()
	require.Nil(t, p.ScreenshotPNG)
	require.False(t, p.Budget.Over())
	require.Equal(t, 5, p.Budget.Chars)
}

type fixedSnapshots struct {
	sum *canvas.ShapeSummary
}

func (f fixedSnapshots) ShapeSummary(ctx context.Context, roomID string) (*canvas.ShapeSummary, error) {
	return f.sum, nil
}

func TestDefaultBuilder(t *testing.T) {
	snapshots := fixedSnapshots{sum: &canvas.ShapeSummary{
		Shapes: []canvas.ShapeInfo{
			{ID: "n1", Type: "note", Box: canvas.Box{X: 10, Y: 20, W: 100, H: 50}, Props: map[string]string{"text": "hello"}},
		},
	}}
	b := NewDefaultBuilder(snapshots)

	parts, err := b.BuildPromptParts(context.Background(), "room-1", BuildRequest{
		Message:    "add a title",
		Selection:  []string{"n1"},
		Screenshot: &wire.ScreenshotResponse{Image: []byte("png")},
	})
	require.NoError(t, err)

	require.NotEmpty(t, parts.System)
	require.Contains(t, parts.User, "add a title")
	require.Contains(t, parts.User, "n1")
	require.Contains(t, parts.ShapeSummary, `"hello"`)
	require.Equal(t, []byte("png"), parts.ScreenshotPNG)
}

func TestDefaultBuilder_EmptyCanvas(t *testing.T) {
	b := NewDefaultBuilder(fixedSnapshots{sum: &canvas.ShapeSummary{}})

	parts, err := b.BuildPromptParts(context.Background(), "room-1", BuildRequest{Message: "start"})
	require.NoError(t, err)
	require.Contains(t, parts.ShapeSummary, "empty")
}
