package transport

import (
	"context"
	"encoding/json"

	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// Frame kinds carried on the room stream, agent to client.
const (
	KindEnvelope   = "envelope"
	KindStatus     = "status"
	KindChat       = "chat"
	KindScreenshot = "screenshot_request"
)

// Frame is the outer wrapper for everything the agent sends into a room.
type Frame struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Transport is the session pipeline's view of the wire. Sends are
// fire-and-forget; delivery confirmation arrives separately through the ack
// inbox.
type Transport interface {
	SendEnvelope(ctx context.Context, roomID string, env *wire.ActionEnvelope) error
	SendStatus(ctx context.Context, roomID string, st wire.StatusFrame) error
	SendChat(ctx context.Context, roomID string, chat wire.ChatFrame) error
	RequestScreenshot(ctx context.Context, roomID string, req wire.ScreenshotRequest) error

	Acks() *AckInbox
	Screenshots() *ScreenshotInbox
}
