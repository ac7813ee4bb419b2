package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for the action pipeline. One
// instance is shared by all sessions; series are labeled per outcome, not per
// session, to keep cardinality bounded.
type Metrics struct {
	ActionsDispatched *prometheus.CounterVec
	ActionsDropped    *prometheus.CounterVec
	Envelopes         prometheus.Counter
	EnvelopeRetries   prometheus.Counter
	AckTimeouts       prometheus.Counter
	AckLatency        prometheus.Histogram
	FirstAckLatency   prometheus.Histogram
	Screenshots       *prometheus.CounterVec
	Followups         *prometheus.CounterVec
	Sessions          *prometheus.CounterVec
	PromptShrinks     prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sketchpilot_actions_dispatched_total",
			Help: "Actions dispatched to clients, by verb.",
		}, []string{"verb"}),
		ActionsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sketchpilot_actions_dropped_total",
			Help: "Actions dropped by the sanitizer, by reason.",
		}, []string{"reason"}),
		Envelopes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sketchpilot_envelopes_total",
			Help: "Envelopes published to the transport.",
		}),
		EnvelopeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sketchpilot_envelope_retries_total",
			Help: "Envelope resends after an ack deadline elapsed.",
		}),
		AckTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sketchpilot_ack_timeouts_total",
			Help: "Batches settled best-effort after both ack deadlines elapsed.",
		}),
		AckLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sketchpilot_ack_latency_seconds",
			Help:    "Envelope acknowledgment latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		FirstAckLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sketchpilot_first_ack_latency_seconds",
			Help:    "Latency of the first acknowledged envelope per session.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		Screenshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sketchpilot_screenshots_total",
			Help: "Screenshot round-trips, by outcome.",
		}, []string{"outcome"}),
		Followups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sketchpilot_followups_total",
			Help: "Follow-up tasks, by reason and disposition.",
		}, []string{"reason", "disposition"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sketchpilot_sessions_total",
			Help: "Completed sessions, by status.",
		}, []string{"status"}),
		PromptShrinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sketchpilot_prompt_shrinks_total",
			Help: "Prompt shrink steps taken under size pressure.",
		}),
	}

	reg.MustRegister(
		m.ActionsDispatched, m.ActionsDropped, m.Envelopes, m.EnvelopeRetries,
		m.AckTimeouts, m.AckLatency, m.FirstAckLatency, m.Screenshots,
		m.Followups, m.Sessions, m.PromptShrinks,
	)
	return m
}

// NewNop returns metrics registered on a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
