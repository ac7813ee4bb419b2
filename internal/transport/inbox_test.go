package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

func TestAckInbox_Resolve(t *testing.T) {
	in := NewAckInbox()
	key := AckKey{SessionID: "s1", Seq: 0, Hash: 42}
	ch := in.Expect(key)

	in.Resolve(wire.Ack{SessionID: "s1", Seq: 0, Hash: 42})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected ack channel to close")
	}
}

func TestAckInbox_WrongHashIgnored(t *testing.T) {
	in := NewAckInbox()
	ch := in.Expect(AckKey{SessionID: "s1", Seq: 0, Hash: 42})

	// An ack for a different content hash never satisfies the wait.
	in.Resolve(wire.Ack{SessionID: "s1", Seq: 0, Hash: 7})

	select {
	case <-ch:
		t.Fatal("ack with wrong hash must not resolve the wait")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAckInbox_LateAckIgnored(t *testing.T) {
	in := NewAckInbox()
	key := AckKey{SessionID: "s1", Seq: 3, Hash: 9}
	in.Expect(key)
	in.Cancel(key)

	// Nobody is waiting anymore; must not panic or block.
	in.Resolve(wire.Ack{SessionID: "s1", Seq: 3, Hash: 9})
}

func TestAckInbox_ExpectIsIdempotent(t *testing.T) {
	in := NewAckInbox()
	key := AckKey{SessionID: "s1", Seq: 0, Hash: 1}

	ch1 := in.Expect(key)
	ch2 := in.Expect(key)
	require.Equal(t, ch1, ch2)
}

func TestScreenshotInbox_Resolve(t *testing.T) {
	in := NewScreenshotInbox()
	key := ScreenshotKey{SessionID: "s1", RequestID: "r1"}
	ch := in.Expect(key)

	want := &wire.ScreenshotResponse{SessionID: "s1", RequestID: "r1", DocVersion: 5}
	in.Resolve(want)

	select {
	case got := <-ch:
		require.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("expected screenshot response")
	}
}

func TestScreenshotInbox_MismatchedRequestIgnored(t *testing.T) {
	in := NewScreenshotInbox()
	ch := in.Expect(ScreenshotKey{SessionID: "s1", RequestID: "r1"})

	in.Resolve(&wire.ScreenshotResponse{SessionID: "s1", RequestID: "other"})

	select {
	case <-ch:
		t.Fatal("response for another request must not resolve the wait")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_RoutesInboundFrames(t *testing.T) {
	hub := NewHub()

	ackCh := hub.Acks().Expect(AckKey{SessionID: "s1", Seq: 0, Hash: 11})
	hub.DeliverAck(wire.Ack{SessionID: "s1", Seq: 0, Hash: 11})
	select {
	case <-ackCh:
	case <-time.After(time.Second):
		t.Fatal("hub did not route ack")
	}

	shotCh := hub.Screenshots().Expect(ScreenshotKey{SessionID: "s1", RequestID: "r1"})
	hub.DeliverScreenshot(&wire.ScreenshotResponse{SessionID: "s1", RequestID: "r1"})
	select {
	case resp := <-shotCh:
		require.Equal(t, "r1", resp.RequestID)
	case <-time.After(time.Second):
		t.Fatal("hub did not route screenshot response")
	}
}
