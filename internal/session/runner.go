package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"

	"github.com/sketchpilot-dev/sketchpilot/internal/config"
	"github.com/sketchpilot-dev/sketchpilot/internal/dispatch"
	"github.com/sketchpilot-dev/sketchpilot/internal/followup"
	"github.com/sketchpilot-dev/sketchpilot/internal/metrics"
	"github.com/sketchpilot-dev/sketchpilot/internal/promptctx"
	"github.com/sketchpilot-dev/sketchpilot/internal/provider"
	"github.com/sketchpilot-dev/sketchpilot/internal/screenshot"
	"github.com/sketchpilot-dev/sketchpilot/internal/transport"
	"github.com/sketchpilot-dev/sketchpilot/pkg/action"
	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
	apperrors "github.com/sketchpilot-dev/sketchpilot/pkg/errors"
	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// Options shape one session run.
type Options struct {
	Profile     string
	Viewport    *canvas.Viewport
	Correlation []string
	// Seed pre-loads one follow-up task before the first turn completes.
	Seed *followup.Task
}

// Runner executes sessions. One Runner serves all rooms; each Run call owns
// its session state exclusively, so concurrent runs share nothing but the
// collaborators below.
type Runner struct {
	cfg       *config.Config
	tr        transport.Transport
	providers *provider.Registry
	builder   promptctx.Builder
	snapshots canvas.SnapshotSource
	shots     *screenshot.Orchestrator
	store     *followup.Store
	m         *metrics.Metrics
	log       logr.Logger
}

// NewRunner wires the session pipeline. store may be nil; follow-up
// scheduling then stays in memory.
func NewRunner(cfg *config.Config, tr transport.Transport, providers *provider.Registry, builder promptctx.Builder, snapshots canvas.SnapshotSource, store *followup.Store, m *metrics.Metrics, log logr.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		tr:        tr,
		providers: providers,
		builder:   builder,
		snapshots: snapshots,
		shots:     screenshot.New(tr, cfg.Screenshot, m, log),
		store:     store,
		m:         m,
		log:       log.WithName("session"),
	}
}

// Run executes one full session for a user message: the root turn plus every
// follow-up the turn produces, drained in FIFO order until the queue is empty
// or the depth bound cuts recursion off. The final status is reported over the
// status channel either way.
func (r *Runner) Run(ctx context.Context, roomID, userMessage string, opts Options) error {
	return r.execute(ctx, New(roomID), userMessage, opts)
}

// Start launches a session in the background and returns its id immediately.
// The outcome is reported over the room's status channel.
func (r *Runner) Start(ctx context.Context, roomID, userMessage string, opts Options) string {
	sess := New(roomID)
	go func() {
		// Error already reported via status frame and log.
		_ = r.execute(ctx, sess, userMessage, opts)
	}()
	return sess.ID
}

func (r *Runner) execute(ctx context.Context, sess *Session, userMessage string, opts Options) error {
	roomID := sess.RoomID
	log := r.log.WithValues("session", sess.ID, "room", roomID)
	log.Info("Session started", "profile", opts.Profile)

	runErr := r.run(ctx, sess, userMessage, opts, log)

	if runErr != nil {
		r.m.Sessions.WithLabelValues("error").Inc()
		st := wire.StatusFrame{SessionID: sess.ID, Status: wire.StatusError, Message: runErr.Error()}
		if err := r.tr.SendStatus(ctx, roomID, st); err != nil {
			log.Error(err, "Failed to report session error")
		}
		log.Error(runErr, "Session failed", "turns", sess.Turns, "actions", sess.ActionCount)
		return apperrors.New(apperrors.ErrCodeSessionFailed, "session "+sess.ID, runErr)
	}

	r.m.Sessions.WithLabelValues("success").Inc()
	if err := r.tr.SendStatus(ctx, roomID, wire.StatusFrame{SessionID: sess.ID, Status: wire.StatusSuccess}); err != nil {
		log.Error(err, "Failed to report session completion")
	}
	log.Info("Session completed",
		"turns", sess.Turns,
		"actions", sess.ActionCount,
		"dropped", sess.DropCount,
		"retries", sess.RetryCount,
		"ackTimeouts", sess.TimeoutCount,
		"elapsed", time.Since(sess.StartedAt).String())
	return nil
}

func (r *Runner) run(ctx context.Context, sess *Session, userMessage string, opts Options, log logr.Logger) error {
	prov, err := r.providers.Get(r.cfg.Provider.Name)
	if err != nil {
		return err
	}

	pl := r.cfg.Pipeline
	queue := r.newQueue(sess.ID, log)
	disp := dispatch.New(r.tr, r.m, log, pl.AckTimeout, pl.AckRetryTimeout)
	san := action.NewSanitizer(log)
	off := canvas.NewOffsetManager(canvas.Point{})
	tracer := metrics.NewTracer(log, pl.TraceBudget, *pl.TraceSampleRate)

	root := followup.Task{
		Message:         userMessage,
		OriginalMessage: userMessage,
		EnqueuedAt:      time.Now(),
	}
	if err := queue.Enqueue(root); err != nil {
		return err
	}
	if opts.Seed != nil {
		seed := *opts.Seed
		if seed.Reason == "" {
			seed.Reason = followup.ReasonSeeded
		}
		if seed.EnqueuedAt.IsZero() {
			seed.EnqueuedAt = time.Now()
		}
		r.enqueueFollowup(queue, seed, log)
	}

	iteration := 0
	for {
		task, ok := queue.Dequeue()
		if !ok {
			return nil
		}
		if iteration > 0 {
			delay := followup.Backoff(iteration, pl.FollowupDelayBase, pl.FollowupDelayMax)
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
		}

		t := &turn{
			r: r, sess: sess, prov: prov, san: san, off: off,
			queue: queue, disp: disp, tracer: tracer, opts: opts, task: task, log: log,
			ladderIdx:  -1,
			dispatched: make(map[string]struct{}),
		}
		mutating, err := t.run(ctx)
		if err != nil {
			return err
		}
		sess.Turns++
		tracer.Emit("turn_done", "depth", task.Depth, "reason", task.Reason, "mutating", mutating)

		// Low-yield heuristic: a turn that barely touched the canvas gets
		// one corrective follow-up. The correction's own result never
		// re-triggers it.
		if task.Reason != followup.ReasonLowAction && mutating < *pl.LowActionThreshold {
			r.enqueueFollowup(queue, followup.Task{
				Message:         lowActionPrompt(task),
				OriginalMessage: task.OriginalMessage,
				Depth:           task.Depth + 1,
				Reason:          followup.ReasonLowAction,
				Strict:          true,
				EnqueuedAt:      time.Now(),
			}, log)
		}
		iteration++
	}
}

func (r *Runner) newQueue(sessionID string, log logr.Logger) followup.Queue {
	maxDepth := r.cfg.Pipeline.MaxFollowupDepth
	if r.store != nil {
		return followup.NewDurableQueue(sessionID, r.store, maxDepth, log)
	}
	return followup.NewScheduler(maxDepth)
}

func (r *Runner) enqueueFollowup(queue followup.Queue, t followup.Task, log logr.Logger) {
	reason := t.Reason
	if reason == "" {
		reason = followup.ReasonSeeded
	}
	if err := queue.Enqueue(t); err != nil {
		r.m.Followups.WithLabelValues(reason, "rejected").Inc()
		log.V(1).Info("Follow-up rejected", "reason", reason, "depth", t.Depth, "err", err.Error())
		return
	}
	r.m.Followups.WithLabelValues(reason, "accepted").Inc()
}

func lowActionPrompt(t followup.Task) string {
	return fmt.Sprintf("The previous turn produced almost no canvas changes. Carry out the original request precisely, using concrete canvas actions: %s", t.OriginalMessage)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// turn is the state of one model invocation within a session: its screenshot,
// prompt parts and shrink position, and the batch counters the low-yield
// heuristic reads.
type turn struct {
	r      *Runner
	sess   *Session
	prov   provider.Provider
	san    *action.Sanitizer
	off    *canvas.OffsetManager
	queue  followup.Queue
	disp   *dispatch.Dispatcher
	tracer *metrics.Tracer
	opts   Options
	task   followup.Task
	log    logr.Logger

	shot *wire.ScreenshotResponse
	// ladderIdx is the current downscale rung; -1 means full size. It only
	// advances under prompt budget pressure.
	ladderIdx int
	parts     *promptctx.Parts
	// dispatched holds the action ids already sent this turn, so a stream
	// replay after a retryable provider error cannot re-fire side effects.
	dispatched map[string]struct{}
	mutating   int
	sent       int
	finalSent  bool
}

func (t *turn) run(ctx context.Context) (int, error) {
	t.capture(ctx)

	// The offset origin tracks the viewport the model will see. A turn
	// without a screenshot falls back to the caller-supplied viewport.
	if t.shot != nil {
		t.off.SetOrigin(t.shot.Viewport.Center())
	} else if t.opts.Viewport != nil {
		t.off.SetOrigin(t.opts.Viewport.Center())
	}

	if err := t.buildParts(ctx); err != nil {
		return 0, err
	}
	for t.parts.Budget.Over() {
		ok, err := t.shrink(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
	}

	if err := t.stream(ctx); err != nil {
		return 0, err
	}
	return t.mutating, nil
}

// capture fetches a fresh screenshot for this turn. Every turn gets its own
// capture and origin so viewport jumps between follow-ups never reuse stale
// coordinates. The first capture leaves sizing to the client; downscaling
// starts only once the prompt is over budget. Failure degrades to a
// text-only prompt.
func (t *turn) capture(ctx context.Context) {
	maxSize := 0
	if t.ladderIdx >= 0 {
		maxSize = t.r.cfg.Screenshot.DownscaleLadder[t.ladderIdx]
	}
	resp, err := t.r.shots.Capture(ctx, t.sess.RoomID, t.sess.ID, nil, maxSize)
	if err != nil {
		t.log.V(1).Info("Proceeding without screenshot", "err", err.Error())
		return
	}
	t.shot = resp
}

func (t *turn) buildParts(ctx context.Context) error {
	req := promptctx.BuildRequest{
		Message:  t.task.Message,
		Profile:  t.opts.Profile,
		WindowMs: time.Since(t.sess.StartedAt).Milliseconds(),
		Offset:   t.off.Origin(),
	}
	if t.shot != nil {
		req.Screenshot = t.shot
		req.Viewport = t.shot.Viewport
		req.Selection = t.shot.Selection
	} else if t.opts.Viewport != nil {
		req.Viewport = *t.opts.Viewport
	}

	parts, err := t.r.builder.BuildPromptParts(ctx, t.sess.RoomID, req)
	if err != nil {
		return err
	}
	parts.Measure(t.r.cfg.Pipeline.PromptCharBudget)
	t.parts = parts
	return nil
}

// shrink takes one step down the prompt-shrinking ladder: re-capture the
// screenshot at the next smaller edge size, and once the ladder is exhausted
// drop the screenshot from the prompt entirely. Returns false when no further
// shrinking is possible.
func (t *turn) shrink(ctx context.Context) (bool, error) {
	ladder := t.r.cfg.Screenshot.DownscaleLadder
	for t.shot != nil && t.ladderIdx+1 < len(ladder) {
		t.ladderIdx++
		resp, err := t.r.shots.Capture(ctx, t.sess.RoomID, t.sess.ID, nil, ladder[t.ladderIdx])
		if err != nil {
			continue
		}
		t.shot = resp
		t.r.m.PromptShrinks.Inc()
		if err := t.buildParts(ctx); err != nil {
			return false, err
		}
		t.tracer.Emit("prompt_shrink", "edge", ladder[t.ladderIdx], "chars", t.parts.Budget.Chars)
		return true, nil
	}

	if t.parts != nil && len(t.parts.ScreenshotPNG) > 0 {
		t.shot = nil
		t.parts.DropScreenshot()
		t.r.m.PromptShrinks.Inc()
		t.tracer.Emit("prompt_shrink", "edge", 0, "chars", t.parts.Budget.Chars)
		return true, nil
	}
	return false, nil
}

// stream invokes the provider and dispatches every batch it yields. Transient
// provider errors retry with exponential backoff; the dedup pass makes the
// replay idempotent against batches already dispatched. An oversized-prompt
// rejection shrinks and retries instead.
func (t *turn) stream(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.r.cfg.Pipeline.ProviderBackoff

	op := func() (struct{}, error) {
		err := t.consume(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		switch provider.Classify(err) {
		case provider.ClassPromptTooLong:
			ok, serr := t.shrink(ctx)
			if serr != nil {
				return struct{}{}, backoff.Permanent(serr)
			}
			if !ok {
				return struct{}{}, backoff.Permanent(apperrors.New(apperrors.ErrCodePromptTooLong, "prompt over budget after full shrink", err))
			}
			return struct{}{}, err
		case provider.ClassRetryable:
			t.log.V(1).Info("Provider error, will retry", "err", err.Error())
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(t.r.cfg.Pipeline.ProviderMaxRetries)))
	if err != nil {
		return apperrors.New(apperrors.ErrCodeProviderFailed, t.prov.Name(), err)
	}
	return nil
}

func (t *turn) consume(ctx context.Context) error {
	events, errs := t.prov.Stream(ctx, t.parts)
	for ev := range events {
		if err := t.handleBatch(ctx, ev); err != nil {
			// Unblock the provider goroutine before bailing.
			for range events {
			}
			<-errs
			return err
		}
	}
	return <-errs
}

func (t *turn) handleBatch(ctx context.Context, ev provider.Event) error {
	// A provider retry replays the whole turn stream. Actions already
	// dispatched this turn are dropped here so their side effects (chat,
	// todo, follow-ups) fire only once.
	batch := make([]action.RawAction, 0, len(ev.Actions))
	for _, raw := range ev.Actions {
		if _, seen := t.dispatched[raw.ID]; seen {
			continue
		}
		batch = append(batch, raw)
	}

	refs := action.Refs{Session: t.sess.CreatedIDs()}
	if sum, err := t.r.snapshots.ShapeSummary(ctx, t.sess.RoomID); err != nil {
		t.log.V(1).Info("Snapshot unavailable, dedup limited to session ids", "err", err.Error())
	} else {
		refs.Snapshot = sum.IDSet()
	}

	res := t.san.Sanitize(batch, refs, t.off, !ev.Final)
	t.recordDrops(res.Drops)
	t.sess.DropCount += res.Drops.Total()
	if res.SizedLineWarnings > 0 {
		t.log.V(1).Info("Line shapes carrying explicit size", "count", res.SizedLineWarnings)
	}

	// Nothing survived: a partial batch just waits for more stream; an
	// empty final batch still closes the turn when partials went out and
	// no closing envelope has been sent yet.
	if len(res.Actions) == 0 && (!ev.Final || t.sent == 0 || t.finalSent) {
		return nil
	}

	env, err := wire.NewEnvelope(t.sess.ID, t.sess.NextSeq(), res.Actions, !ev.Final, t.opts.Correlation)
	if err != nil {
		return err
	}
	outcome, err := t.disp.Dispatch(ctx, t.sess.RoomID, env, turnEffects{t})
	if err != nil {
		return err
	}

	t.sent++
	if ev.Final {
		t.finalSent = true
	}
	for _, a := range res.Actions {
		t.dispatched[a.ID] = struct{}{}
	}
	t.sess.RegisterCreated(res.MintedIDs)
	t.sess.ActionCount += len(res.Actions)
	if outcome.Retried {
		t.sess.RetryCount++
	}
	if outcome.Acked {
		if t.sess.FirstAck() {
			t.r.m.FirstAckLatency.Observe(outcome.Latency.Seconds())
		}
	} else {
		t.sess.TimeoutCount++
	}
	for _, a := range res.Actions {
		if a.Mutating() {
			t.mutating++
		}
	}
	t.tracer.Emit("batch_dispatched", "seq", env.Seq, "actions", len(res.Actions), "acked", outcome.Acked)
	return nil
}

func (t *turn) recordDrops(d action.DropCounts) {
	rec := func(reason string, n int) {
		if n > 0 {
			t.r.m.ActionsDropped.WithLabelValues(reason).Add(float64(n))
		}
	}
	rec("unknown_verb", d.UnknownVerb)
	rec("unknown_shape", d.UnknownShape)
	rec("invalid_schema", d.InvalidSchema)
	rec("duplicate", d.Duplicate)
	rec("dangling", d.Dangling)
}

// turnEffects routes dispatched side effects back into the session: think and
// message surface as chat, todo persists, add_detail schedules a follow-up.
type turnEffects struct {
	t *turn
}

func (e turnEffects) OnThink(ctx context.Context, text string) error {
	return e.t.r.tr.SendChat(ctx, e.t.sess.RoomID, wire.ChatFrame{SessionID: e.t.sess.ID, Text: text})
}

func (e turnEffects) OnMessage(ctx context.Context, text string) error {
	return e.t.r.tr.SendChat(ctx, e.t.sess.RoomID, wire.ChatFrame{SessionID: e.t.sess.ID, Text: text})
}

func (e turnEffects) OnTodo(ctx context.Context, text string) error {
	if e.t.r.store == nil {
		e.t.log.Info("Todo recorded", "text", text)
		return nil
	}
	return e.t.r.store.SaveTodo(e.t.sess.ID, text)
}

func (e turnEffects) OnAddDetail(ctx context.Context, p action.AddDetailParams) error {
	e.t.r.enqueueFollowup(e.t.queue, followup.Task{
		Message:         p.Message,
		OriginalMessage: e.t.task.OriginalMessage,
		Depth:           e.t.task.Depth + 1,
		Hint:            p.Hint,
		Reason:          followup.ReasonAddDetail,
		Strict:          p.Strict,
		TargetIDs:       p.TargetIDs,
		EnqueuedAt:      time.Now(),
	}, e.t.log)
	return nil
}
