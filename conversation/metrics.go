package conversation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the chat pipeline.
//
// Exposed series (namespace "chatbot"):
//   - turns_total (counter): processed chat actions, labelled by action and
//     whether the reply was AI generated.
//   - turn_latency_ms (histogram): wall time of one turn.
//   - escalations_total (counter): human handoffs by escalation type.
//   - ai_cost_usd_total (counter): cumulative provider spend.
//   - ai_cache_hits_total (counter): AI responses served from cache.
//   - rate_limited_total (counter): rejected calls by scope (ip, session).
//
// A nil *Metrics is valid: every method no-ops, so components can take an
// optional collector without nil checks at call sites.
type Metrics struct {
	turns       *prometheus.CounterVec
	turnLatency prometheus.Histogram
	escalations *prometheus.CounterVec
	aiCost      prometheus.Counter
	cacheHits   prometheus.Counter
	rateLimited *prometheus.CounterVec
}

// NewMetrics registers the chatbot metric set with the given registry.
// Pass prometheus.DefaultRegisterer for the global registry or a private
// registry for test isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "turns_total",
			Help:      "Processed chat actions.",
		}, []string{"action", "ai_powered"}),
		turnLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatbot",
			Name:      "turn_latency_ms",
			Help:      "Wall time of a single chat turn in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "escalations_total",
			Help:      "Human handoffs by escalation type.",
		}, []string{"type"}),
		aiCost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "ai_cost_usd_total",
			Help:      "Cumulative LLM provider spend in USD.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "ai_cache_hits_total",
			Help:      "AI responses served from the in-process cache.",
		}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "rate_limited_total",
			Help:      "Rejected calls by limiter scope.",
		}, []string{"scope"}),
	}
}

// RecordTurn counts one processed action and its latency.
func (m *Metrics) RecordTurn(action string, aiPowered bool, latencyMs float64) {
	if m == nil {
		return
	}
	ai := "false"
	if aiPowered {
		ai = "true"
	}
	m.turns.WithLabelValues(action, ai).Inc()
	m.turnLatency.Observe(latencyMs)
}

// RecordEscalation counts a human handoff.
func (m *Metrics) RecordEscalation(t EscalationType) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(string(t)).Inc()
}

// AddCost accumulates provider spend.
func (m *Metrics) AddCost(usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.aiCost.Add(usd)
}

// RecordCacheHit counts a cached AI response.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// RecordRateLimited counts a limiter rejection. Scope is "ip", "session"
// or "global".
func (m *Metrics) RecordRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}
