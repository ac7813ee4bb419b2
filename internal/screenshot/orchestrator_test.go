package screenshot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/sketchpilot-dev/sketchpilot/internal/config"
	"github.com/sketchpilot-dev/sketchpilot/internal/metrics"
	"github.com/sketchpilot-dev/sketchpilot/internal/transport"
	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// screenshotClient answers screenshot requests like a canvas client would,
// optionally ignoring the first few.
type screenshotClient struct {
	mu       sync.Mutex
	requests []wire.ScreenshotRequest
	ignore   int
	image    func(maxSize int) []byte

	acks  *transport.AckInbox
	shots *transport.ScreenshotInbox
}

func newScreenshotClient() *screenshotClient {
	return &screenshotClient{
		acks:  transport.NewAckInbox(),
		shots: transport.NewScreenshotInbox(),
		image: func(int) []byte { return []byte("png") },
	}
}

func (c *screenshotClient) SendEnvelope(ctx context.Context, roomID string, env *wire.ActionEnvelope) error {
	return nil
}

func (c *screenshotClient) SendStatus(ctx context.Context, roomID string, st wire.StatusFrame) error {
	return nil
}

func (c *screenshotClient) SendChat(ctx context.Context, roomID string, chat wire.ChatFrame) error {
	return nil
}

func (c *screenshotClient) RequestScreenshot(ctx context.Context, roomID string, req wire.ScreenshotRequest) error {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	skip := len(c.requests) <= c.ignore
	c.mu.Unlock()

	if skip {
		return nil
	}
	c.shots.Resolve(&wire.ScreenshotResponse{
		SessionID: req.SessionID,
		RequestID: req.RequestID,
		Image:     c.image(req.MaxSize),
		Viewport:  canvas.Viewport{Bounds: canvas.Box{W: 1280, H: 800}, Zoom: 1},
	})
	return nil
}

func (c *screenshotClient) Acks() *transport.AckInbox               { return c.acks }
func (c *screenshotClient) Screenshots() *transport.ScreenshotInbox { return c.shots }

func (c *screenshotClient) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func testConfig() config.ScreenshotConfig {
	return config.ScreenshotConfig{
		WaitTimeout:     50 * time.Millisecond,
		Retries:         2,
		RetryDelay:      10 * time.Millisecond,
		DownscaleLadder: []int{1600, 1024, 640},
	}
}

func TestCapture_Success(t *testing.T) {
	client := newScreenshotClient()
	o := New(client, testConfig(), metrics.NewNop(), logr.Discard())

	resp, err := o.Capture(context.Background(), "room-1", "sess-1", nil, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("png"), resp.Image)
	require.Equal(t, 1, client.requestCount())
}

func TestCapture_RetriesAfterTimeout(t *testing.T) {
	client := newScreenshotClient()
	client.ignore = 1

	o := New(client, testConfig(), metrics.NewNop(), logr.Discard())
	resp, err := o.Capture(context.Background(), "room-1", "sess-1", nil, 0)
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 2, client.requestCount())
}

func TestCapture_ExhaustsRetries(t *testing.T) {
	client := newScreenshotClient()
	client.ignore = 100

	o := New(client, testConfig(), metrics.NewNop(), logr.Discard())
	_, err := o.Capture(context.Background(), "room-1", "sess-1", nil, 0)
	require.Error(t, err)
	require.Equal(t, 3, client.requestCount(), "initial attempt plus two retries")
}

func TestCapture_RequestCarriesMaxSize(t *testing.T) {
	client := newScreenshotClient()

	o := New(client, testConfig(), metrics.NewNop(), logr.Discard())
	_, err := o.Capture(context.Background(), "room-1", "sess-1", nil, 1024)
	require.NoError(t, err)

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Equal(t, 1024, client.requests[0].MaxSize)
}
