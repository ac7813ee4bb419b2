package metrics

import (
	"math/rand"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// TraceEvent is one timing/outcome observation within a session.
type TraceEvent struct {
	Name   string
	At     time.Time
	Fields map[string]any
}

// Tracer emits per-session trace events under a hard budget with probability
// sampling. Once the budget is spent the tracer goes quiet; the first event of
// a session is always kept so every session leaves at least one mark.
type Tracer struct {
	mu      sync.Mutex
	log     logr.Logger
	budget  int
	rate    float64
	rnd     *rand.Rand
	emitted int
}

// NewTracer creates a tracer with the given event budget and sample rate.
func NewTracer(log logr.Logger, budget int, rate float64) *Tracer {
	return &Tracer{
		log:    log.WithName("trace"),
		budget: budget,
		rate:   rate,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Emit records an event if the budget and sampler allow it.
func (t *Tracer) Emit(name string, kv ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.emitted >= t.budget {
		return
	}
	if t.emitted > 0 && t.rnd.Float64() > t.rate {
		return
	}
	t.emitted++

	args := append([]any{"event", name}, kv...)
	t.log.V(1).Info("trace", args...)
}

// Emitted returns how many events have been kept so far.
func (t *Tracer) Emitted() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.emitted
}
