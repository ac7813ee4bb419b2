package transport

import (
	"sync"

	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// AckKey identifies one awaited acknowledgment. The hash is part of the key:
// an ack for a different content hash never satisfies a wait.
type AckKey struct {
	SessionID string
	Seq       uint64
	Hash      uint64
}

// AckInbox matches inbound acks to waiters. Each expectation is a one-shot
// future; re-registering the same key after a timed-out attempt is fine
// because the retry carries an identical hash and therefore the same key.
type AckInbox struct {
	mu      sync.Mutex
	waiting map[AckKey]chan struct{}
}

func NewAckInbox() *AckInbox {
	return &AckInbox{waiting: make(map[AckKey]chan struct{})}
}

// Expect registers interest in an ack and returns the channel that closes
// when it arrives. Call Cancel when giving up.
func (in *AckInbox) Expect(key AckKey) <-chan struct{} {
	in.mu.Lock()
	defer in.mu.Unlock()
	if ch, ok := in.waiting[key]; ok {
		return ch
	}
	ch := make(chan struct{})
	in.waiting[key] = ch
	return ch
}

// Cancel drops an expectation without resolving it.
func (in *AckInbox) Cancel(key AckKey) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.waiting, key)
}

// Resolve completes a waiting expectation. Acks nobody is waiting for are
// ignored; the transport is not reliable and late acks are expected.
func (in *AckInbox) Resolve(ack wire.Ack) {
	key := AckKey{SessionID: ack.SessionID, Seq: ack.Seq, Hash: ack.Hash}
	in.mu.Lock()
	ch, ok := in.waiting[key]
	if ok {
		delete(in.waiting, key)
	}
	in.mu.Unlock()
	if ok {
		close(ch)
	}
}

// ScreenshotKey identifies one awaited screenshot response.
type ScreenshotKey struct {
	SessionID string
	RequestID string
}

// ScreenshotInbox matches inbound screenshot responses to waiters as one-shot
// futures keyed by (sessionId, requestId). A future with a single deadline
// timer replaces interval polling here.
type ScreenshotInbox struct {
	mu      sync.Mutex
	waiting map[ScreenshotKey]chan *wire.ScreenshotResponse
}

func NewScreenshotInbox() *ScreenshotInbox {
	return &ScreenshotInbox{waiting: make(map[ScreenshotKey]chan *wire.ScreenshotResponse)}
}

// Expect registers interest in a screenshot response.
func (in *ScreenshotInbox) Expect(key ScreenshotKey) <-chan *wire.ScreenshotResponse {
	in.mu.Lock()
	defer in.mu.Unlock()
	if ch, ok := in.waiting[key]; ok {
		return ch
	}
	ch := make(chan *wire.ScreenshotResponse, 1)
	in.waiting[key] = ch
	return ch
}

// Cancel drops an expectation.
func (in *ScreenshotInbox) Cancel(key ScreenshotKey) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.waiting, key)
}

// Resolve delivers a response to its waiter, if any is still registered.
func (in *ScreenshotInbox) Resolve(resp *wire.ScreenshotResponse) {
	key := ScreenshotKey{SessionID: resp.SessionID, RequestID: resp.RequestID}
	in.mu.Lock()
	ch, ok := in.waiting[key]
	if ok {
		delete(in.waiting, key)
	}
	in.mu.Unlock()
	if ok {
		ch <- resp
		close(ch)
	}
}
