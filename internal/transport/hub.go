package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// Hub is the in-process transport: it fans frames out to room subscribers and
// routes inbound client frames (acks, screenshot responses) to the inboxes.
// Client-facing servers subscribe to rooms and bridge frames onto their own
// wire; see the A2A stream adapter.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Frame
	closed      bool

	acks        *AckInbox
	screenshots *ScreenshotInbox
}

// NewHub creates a hub with empty inboxes.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string][]chan Frame),
		acks:        NewAckInbox(),
		screenshots: NewScreenshotInbox(),
	}
}

func (h *Hub) Acks() *AckInbox               { return h.acks }
func (h *Hub) Screenshots() *ScreenshotInbox { return h.screenshots }

// Subscribe returns a channel of frames published to the room.
func (h *Hub) Subscribe(roomID string) <-chan Frame {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Frame, 100)
	h.subscribers[roomID] = append(h.subscribers[roomID], ch)
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(roomID string, ch <-chan Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribers := h.subscribers[roomID]
	for i, sub := range subscribers {
		if sub == ch {
			h.subscribers[roomID] = append(subscribers[:i], subscribers[i+1:]...)
			close(sub)
			break
		}
	}
	if len(h.subscribers[roomID]) == 0 {
		delete(h.subscribers, roomID)
	}
}

// publish marshals a payload into a frame and fans it out. Slow subscribers
// are skipped rather than blocking the pipeline.
func (h *Hub) publish(roomID, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", kind, err)
	}
	frame := Frame{Kind: kind, Payload: body}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return fmt.Errorf("hub closed")
	}
	for _, ch := range h.subscribers[roomID] {
		select {
		case ch <- frame:
		default:
			// Channel full, skip
		}
	}
	return nil
}

func (h *Hub) SendEnvelope(ctx context.Context, roomID string, env *wire.ActionEnvelope) error {
	return h.publish(roomID, KindEnvelope, env)
}

func (h *Hub) SendStatus(ctx context.Context, roomID string, st wire.StatusFrame) error {
	return h.publish(roomID, KindStatus, st)
}

func (h *Hub) SendChat(ctx context.Context, roomID string, chat wire.ChatFrame) error {
	return h.publish(roomID, KindChat, chat)
}

func (h *Hub) RequestScreenshot(ctx context.Context, roomID string, req wire.ScreenshotRequest) error {
	return h.publish(roomID, KindScreenshot, req)
}

// DeliverAck routes a client acknowledgment to its waiter.
func (h *Hub) DeliverAck(ack wire.Ack) {
	h.acks.Resolve(ack)
}

// DeliverScreenshot routes a client screenshot response to its waiter.
func (h *Hub) DeliverScreenshot(resp *wire.ScreenshotResponse) {
	h.screenshots.Resolve(resp)
}

// Close tears down all subscriptions.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("hub already closed")
	}
	h.closed = true
	for room, subs := range h.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.subscribers, room)
	}
	return nil
}
