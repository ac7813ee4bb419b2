package dispatch

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/sketchpilot-dev/sketchpilot/internal/metrics"
	"github.com/sketchpilot-dev/sketchpilot/internal/transport"
	"github.com/sketchpilot-dev/sketchpilot/pkg/action"
	apperrors "github.com/sketchpilot-dev/sketchpilot/pkg/errors"
	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// SideEffects receives the local consequences of dispatched actions: think
// surfaces as chat, todo as a durable record, add_detail as a follow-up.
// They run exactly once per batch, after the first successful send, whatever
// the acknowledgment outcome.
type SideEffects interface {
	OnThink(ctx context.Context, text string) error
	OnTodo(ctx context.Context, text string) error
	OnMessage(ctx context.Context, text string) error
	OnAddDetail(ctx context.Context, p action.AddDetailParams) error
}

// Outcome reports how one batch settled.
type Outcome struct {
	Acked   bool
	Retried bool
	Latency time.Duration
}

// Dispatcher publishes envelopes and awaits delivery acknowledgment with
// bounded retry. One batch is in flight at a time per session; the caller
// guarantees ordering by not overlapping Dispatch calls.
type Dispatcher struct {
	tr           transport.Transport
	m            *metrics.Metrics
	log          logr.Logger
	ackTimeout   time.Duration
	retryTimeout time.Duration
}

func New(tr transport.Transport, m *metrics.Metrics, log logr.Logger, ackTimeout, retryTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		tr:           tr,
		m:            m,
		log:          log.WithName("dispatch"),
		ackTimeout:   ackTimeout,
		retryTimeout: retryTimeout,
	}
}

// Dispatch walks one batch through Sent → {Acked|TimedOut} → (RetrySent →
// {Acked|TimedOut}) → Settled. A double timeout settles best-effort: the
// snapshot-driven dedup pass reconciles canvas state on the next turn.
func (d *Dispatcher) Dispatch(ctx context.Context, roomID string, env *wire.ActionEnvelope, fx SideEffects) (Outcome, error) {
	key := transport.AckKey{SessionID: env.SessionID, Seq: env.Seq, Hash: env.Hash}
	ackCh := d.tr.Acks().Expect(key)

	start := time.Now()
	if err := d.tr.SendEnvelope(ctx, roomID, env); err != nil {
		d.tr.Acks().Cancel(key)
		return Outcome{}, apperrors.New(apperrors.ErrCodeTransportSend, "send envelope", err)
	}
	d.m.Envelopes.Inc()
	for _, a := range env.Actions {
		d.m.ActionsDispatched.WithLabelValues(string(a.Name)).Inc()
	}

	// Side effects fire after the first successful send, exactly once.
	d.applySideEffects(ctx, env.Actions, fx)

	if d.await(ctx, ackCh, d.ackTimeout) {
		lat := time.Since(start)
		d.m.AckLatency.Observe(lat.Seconds())
		return Outcome{Acked: true, Latency: lat}, nil
	}

	// Exactly one retry, identical hash.
	d.log.V(1).Info("ack deadline elapsed, resending", "seq", env.Seq)
	ackCh = d.tr.Acks().Expect(key)
	if err := d.tr.SendEnvelope(ctx, roomID, env); err != nil {
		d.tr.Acks().Cancel(key)
		return Outcome{Retried: true}, apperrors.New(apperrors.ErrCodeTransportSend, "resend envelope", err)
	}
	d.m.EnvelopeRetries.Inc()

	if d.await(ctx, ackCh, d.retryTimeout) {
		lat := time.Since(start)
		d.m.AckLatency.Observe(lat.Seconds())
		return Outcome{Acked: true, Retried: true, Latency: lat}, nil
	}

	d.tr.Acks().Cancel(key)
	d.m.AckTimeouts.Inc()
	d.log.V(1).Info("batch settled without acknowledgment", "seq", env.Seq)
	return Outcome{Retried: true}, nil
}

func (d *Dispatcher) await(ctx context.Context, ackCh <-chan struct{}, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ackCh:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) applySideEffects(ctx context.Context, actions []action.AgentAction, fx SideEffects) {
	if fx == nil {
		return
	}
	for _, a := range actions {
		var err error
		switch p := a.Params.(type) {
		case action.ThinkParams:
			err = fx.OnThink(ctx, p.Text)
		case action.TodoParams:
			err = fx.OnTodo(ctx, p.Text)
		case action.MessageParams:
			err = fx.OnMessage(ctx, p.Text)
		case action.AddDetailParams:
			err = fx.OnAddDetail(ctx, p)
		default:
			continue
		}
		if err != nil {
			// Side-effect failures never fail the batch.
			d.log.Error(err, "side effect failed", "action", a.Name, "id", a.ID)
		}
	}
}
