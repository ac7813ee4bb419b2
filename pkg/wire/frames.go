package wire

import (
	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
)

// Ack acknowledges delivery of one envelope. Hash must match the envelope's
// content hash or the ack is ignored.
type Ack struct {
	SessionID string `json:"sessionId"`
	Seq       uint64 `json:"seq"`
	Hash      uint64 `json:"hash"`
}

// Status values mirror the result payloads of the room RPC protocol.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// StatusFrame reports session lifecycle and errors over the status channel.
type StatusFrame struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// ChatFrame carries a model-authored chat message (think/message actions
// surface here rather than on the canvas).
type ChatFrame struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// ScreenshotRequest asks a client for a visual snapshot of the canvas.
// Fire-and-forget; the response arrives asynchronously on the inbox.
type ScreenshotRequest struct {
	SessionID string      `json:"sessionId"`
	RequestID string      `json:"requestId"`
	Bounds    *canvas.Box `json:"bounds,omitempty"`
	// MaxSize caps the longest image edge in pixels. Zero means the client
	// default.
	MaxSize int `json:"maxSize,omitempty"`
}

// ScreenshotResponse is a client's snapshot of the canvas, matched to its
// request by (SessionID, RequestID).
type ScreenshotResponse struct {
	SessionID  string          `json:"sessionId"`
	RequestID  string          `json:"requestId"`
	Image      []byte          `json:"image"`
	Viewport   canvas.Viewport `json:"viewport"`
	Selection  []string        `json:"selection,omitempty"`
	DocVersion int64           `json:"docVersion"`
	Bounds     canvas.Box      `json:"bounds"`
}
