package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"
)

const (
	// keepAliveInterval defines how often to inject a keep-alive event when
	// the session produces nothing, so client connections survive long model
	// turns.
	keepAliveInterval = 30 * time.Second
)

// A2AStream bridges a room's frame stream onto the A2A streaming protocol so
// an A2A-speaking canvas client can consume envelopes, status and chat frames
// as task status updates.
type A2AStream struct {
	hub *Hub
	log logr.Logger
}

func NewA2AStream(hub *Hub, log logr.Logger) *A2AStream {
	return &A2AStream{hub: hub, log: log.WithName("a2a-stream")}
}

// Open subscribes to a room and returns the bridged event channel. The
// subscription ends when ctx is cancelled.
func (s *A2AStream) Open(ctx context.Context, roomID string) <-chan protocol.StreamingMessageEvent {
	frames := s.hub.Subscribe(roomID)
	out := make(chan protocol.StreamingMessageEvent)

	go func() {
		defer close(out)
		defer s.hub.Unsubscribe(roomID, frames)

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.log.V(1).Info("context cancelled, closing room stream", "room", roomID)
				return

			case frame, ok := <-frames:
				if !ok {
					s.log.V(1).Info("room channel closed", "room", roomID)
					return
				}
				event, err := frameEvent(frame)
				if err != nil {
					s.log.Error(err, "dropping unencodable frame", "kind", frame.Kind)
					continue
				}
				select {
				case out <- event:
					ticker.Reset(keepAliveInterval)
				case <-ctx.Done():
					return
				}

			case <-ticker.C:
				select {
				case out <- keepAliveEvent():
					s.log.V(1).Info("keep-alive event sent", "room", roomID)
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// frameEvent wraps a room frame into an A2A streaming event. The frame JSON,
// kind discriminator included, rides in a single text part.
func frameEvent(frame Frame) (protocol.StreamingMessageEvent, error) {
	body, err := json.Marshal(frame)
	if err != nil {
		return protocol.StreamingMessageEvent{}, err
	}

	msg := protocol.Message{
		Kind:      "message",
		Role:      "agent",
		MessageID: protocol.GenerateMessageID(),
		Parts:     []protocol.Part{protocol.NewTextPart(string(body))},
	}
	return protocol.StreamingMessageEvent{
		Result: &protocol.TaskStatusUpdateEvent{
			Status: protocol.TaskStatus{Message: &msg},
		},
	}, nil
}

func keepAliveEvent() protocol.StreamingMessageEvent {
	msg := protocol.Message{
		Kind:      "system",
		Role:      "system",
		MessageID: protocol.GenerateMessageID(),
		Parts:     []protocol.Part{protocol.NewTextPart("Keep-alive from server")},
	}
	return protocol.StreamingMessageEvent{
		Result: &protocol.TaskStatusUpdateEvent{
			Status: protocol.TaskStatus{Message: &msg},
		},
	}
}
