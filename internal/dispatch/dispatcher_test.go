package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/sketchpilot-dev/sketchpilot/internal/metrics"
	"github.com/sketchpilot-dev/sketchpilot/internal/transport"
	"github.com/sketchpilot-dev/sketchpilot/pkg/action"
	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// fakeTransport records sends and exposes real inboxes, so tests can resolve
// acks exactly like a client would.
type fakeTransport struct {
	mu        sync.Mutex
	envelopes []*wire.ActionEnvelope
	chats     []wire.ChatFrame
	acks      *transport.AckInbox
	shots     *transport.ScreenshotInbox
	onSend    func(n int, env *wire.ActionEnvelope)
	sendErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{acks: transport.NewAckInbox(), shots: transport.NewScreenshotInbox()}
}

func (f *fakeTransport) SendEnvelope(ctx context.Context, roomID string, env *wire.ActionEnvelope) error {
	f.mu.Lock()
	f.envelopes = append(f.envelopes, env)
	n := len(f.envelopes)
	onSend := f.onSend
	f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}
	if onSend != nil {
		onSend(n, env)
	}
	return nil
}

func (f *fakeTransport) SendStatus(ctx context.Context, roomID string, st wire.StatusFrame) error {
	return nil
}

func (f *fakeTransport) SendChat(ctx context.Context, roomID string, chat wire.ChatFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, chat)
	return nil
}

func (f *fakeTransport) RequestScreenshot(ctx context.Context, roomID string, req wire.ScreenshotRequest) error {
	return nil
}

func (f *fakeTransport) Acks() *transport.AckInbox               { return f.acks }
func (f *fakeTransport) Screenshots() *transport.ScreenshotInbox { return f.shots }

func (f *fakeTransport) sent() []*wire.ActionEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*wire.ActionEnvelope(nil), f.envelopes...)
}

type recordedEffects struct {
	mu     sync.Mutex
	thinks []string
	todos  []string
	etail  []action.AddDetailParams
}

func (r *recordedEffects) OnThink(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thinks = append(r.thinks, text)
	return nil
}

func (r *recordedEffects) OnTodo(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.todos = append(r.todos, text)
	return nil
}

func (r *recordedEffects) OnMessage(ctx context.Context, text string) error { return nil }

func (r *recordedEffects) OnAddDetail(ctx context.Context, p action.AddDetailParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.etail = append(r.etail, p)
	return nil
}

func testEnvelope(t *testing.T, seq uint64) *wire.ActionEnvelope {
	t.Helper()
	actions := []action.AgentAction{
		{ID: "c1", Name: action.NameCreateShape, Params: action.CreateShapeParams{ID: "n1", Type: "note"}},
		{ID: "t1", Name: action.NameThink, Params: action.ThinkParams{Text: "placing the note"}},
	}
	env, err := wire.NewEnvelope("sess-1", seq, actions, false, nil)
	require.NoError(t, err)
	return env
}

func newTestDispatcher(tr transport.Transport) *Dispatcher {
	return New(tr, metrics.NewNop(), logr.Discard(), 60*time.Millisecond, 40*time.Millisecond)
}

func TestDispatch_AckedFirstTry(t *testing.T) {
	tr := newFakeTransport()
	tr.onSend = func(n int, env *wire.ActionEnvelope) {
		tr.acks.Resolve(wire.Ack{SessionID: env.SessionID, Seq: env.Seq, Hash: env.Hash})
	}

	d := newTestDispatcher(tr)
	fx := &recordedEffects{}
	outcome, err := d.Dispatch(context.Background(), "room-1", testEnvelope(t, 0), fx)
	require.NoError(t, err)

	require.True(t, outcome.Acked)
	require.False(t, outcome.Retried)
	require.Len(t, tr.sent(), 1)
	require.Equal(t, []string{"placing the note"}, fx.thinks)
}

func TestDispatch_OneRetryIdenticalHash(t *testing.T) {
	tr := newFakeTransport()
	tr.onSend = func(n int, env *wire.ActionEnvelope) {
		// Drop the first delivery; ack the retry.
		if n == 2 {
			tr.acks.Resolve(wire.Ack{SessionID: env.SessionID, Seq: env.Seq, Hash: env.Hash})
		}
	}

	d := newTestDispatcher(tr)
	outcome, err := d.Dispatch(context.Background(), "room-1", testEnvelope(t, 0), nil)
	require.NoError(t, err)

	require.True(t, outcome.Acked)
	require.True(t, outcome.Retried)

	sent := tr.sent()
	require.Len(t, sent, 2)
	require.Equal(t, sent[0].Hash, sent[1].Hash)
	require.Equal(t, sent[0].Seq, sent[1].Seq)
}

func TestDispatch_DoubleTimeoutSettles(t *testing.T) {
	tr := newFakeTransport()

	d := newTestDispatcher(tr)
	fx := &recordedEffects{}
	outcome, err := d.Dispatch(context.Background(), "room-1", testEnvelope(t, 0), fx)

	// Best-effort settle: no error, no ack, exactly one retry.
	require.NoError(t, err)
	require.False(t, outcome.Acked)
	require.True(t, outcome.Retried)
	require.Len(t, tr.sent(), 2)

	// Side effects still ran exactly once.
	require.Equal(t, []string{"placing the note"}, fx.thinks)
}

func TestDispatch_SendErrorPropagates(t *testing.T) {
	tr := newFakeTransport()
	tr.sendErr = fmt.Errorf("wire down")

	d := newTestDispatcher(tr)
	fx := &recordedEffects{}
	_, err := d.Dispatch(context.Background(), "room-1", testEnvelope(t, 0), fx)

	require.Error(t, err)
	require.Empty(t, fx.thinks, "side effects require a successful send")
}

func TestDispatch_SideEffectRouting(t *testing.T) {
	tr := newFakeTransport()
	tr.onSend = func(n int, env *wire.ActionEnvelope) {
		tr.acks.Resolve(wire.Ack{SessionID: env.SessionID, Seq: env.Seq, Hash: env.Hash})
	}

	actions := []action.AgentAction{
		{ID: "t1", Name: action.NameTodo, Params: action.TodoParams{Text: "revisit palette"}},
		{ID: "a1", Name: action.NameAddDetail, Params: action.AddDetailParams{Message: "zoom into header"}},
		{ID: "c1", Name: action.NameCreateShape, Params: action.CreateShapeParams{ID: "n1", Type: "note"}},
	}
	env, err := wire.NewEnvelope("sess-1", 0, actions, false, nil)
	require.NoError(t, err)

	d := newTestDispatcher(tr)
	fx := &recordedEffects{}
	_, err = d.Dispatch(context.Background(), "room-1", env, fx)
	require.NoError(t, err)

	require.Equal(t, []string{"revisit palette"}, fx.todos)
	require.Len(t, fx.etail, 1)
	require.Equal(t, "zoom into header", fx.etail[0].Message)
	require.Empty(t, fx.thinks)
}
