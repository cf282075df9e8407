// Package ai wraps the chat-model providers with the safety rails a
// public-facing chatbot needs: per-session rate limiting, a per
// conversation cost ceiling, response caching and a hard timeout so
// the scripted flow can always answer when the model cannot.
package ai

import (
	"context"
	"errors"
	"time"

	"github.com/omniaweb/chatbot/conversation"
	"github.com/omniaweb/chatbot/conversation/emit"
	"github.com/omniaweb/chatbot/conversation/model"
)

// ErrTimeout is returned when the provider does not answer within the
// configured deadline. Callers must fall back to the scripted flow,
// never retry the provider within the same turn.
var ErrTimeout = errors.New("ai: generation timed out")

// Kind classifies a generation result.
type Kind string

const (
	// KindOK is a normal AI-generated reply (fresh or cached).
	KindOK Kind = "ok"

	// KindRateLimited means the session exceeded its AI calls per
	// minute. Reply holds a non-escalating "slow down" message.
	KindRateLimited Kind = "rate_limited"

	// KindCostLimit means the conversation hit its spend ceiling. The
	// reply escalates and no further provider calls are made for this
	// conversation.
	KindCostLimit Kind = "cost_limit_reached"

	// KindTechnicalError means the provider call failed. The reply
	// escalates so a human can pick the conversation up.
	KindTechnicalError Kind = "technical_error"
)

// Result is what one generation attempt produced. Kind tells the
// caller which policy applied; Reply is always populated and ready to
// merge into the flow.
type Result struct {
	Kind  Kind
	Reply conversation.AIReply
}

// Defaults applied when Options leaves a field zero.
const (
	DefaultCostLimit     = 0.50
	DefaultRatePerMinute = 10
	DefaultCacheTTL      = time.Hour
	DefaultCallTimeout   = 8 * time.Second
)

// rateWindow is the span of the per-session AI call window.
const rateWindow = time.Minute

// Options configures a Generator.
type Options struct {
	// ModelName is used for pricing lookups and observability.
	ModelName string

	// CostLimit is the per-conversation spend ceiling in USD.
	CostLimit float64

	// RatePerMinute caps provider calls per session per minute.
	RatePerMinute int

	// CacheTTL bounds how long a generated reply may be reused for the
	// same normalized message and step. Zero disables caching.
	CacheTTL time.Duration

	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration

	Metrics *conversation.Metrics
	Emitter emit.Emitter

	// Clock overrides the time source, for tests.
	Clock func() time.Time
}

// Generator produces AI replies for chat turns, enforcing the rate,
// cost and latency policies around the underlying model.
//
// Generate mutates the session's rate-window counters and running
// cost; the caller is responsible for persisting the session after
// the turn completes.
type Generator struct {
	chat      model.ChatModel
	kb        *conversation.KnowledgeBase
	modelName string

	costLimit   float64
	ratePerMin  int
	callTimeout time.Duration

	cache   *responseCache
	metrics *conversation.Metrics
	emitter emit.Emitter
	now     func() time.Time
}

// NewGenerator wires a Generator around a chat model.
func NewGenerator(chat model.ChatModel, kb *conversation.KnowledgeBase, opts Options) *Generator {
	if opts.CostLimit <= 0 {
		opts.CostLimit = DefaultCostLimit
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = DefaultRatePerMinute
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Emitter == nil {
		opts.Emitter = emit.NewNullEmitter()
	}

	return &Generator{
		chat:        chat,
		kb:          kb,
		modelName:   opts.ModelName,
		costLimit:   opts.CostLimit,
		ratePerMin:  opts.RatePerMinute,
		callTimeout: opts.CallTimeout,
		cache:       newResponseCache(opts.CacheTTL, opts.Clock),
		metrics:     opts.Metrics,
		emitter:     opts.Emitter,
		now:         opts.Clock,
	}
}

type chatResult struct {
	out model.ChatOut
	err error
}

// Generate runs one AI turn for the session.
//
// The only error it returns is ErrTimeout; every other failure mode is
// absorbed into a Result so the pipeline never sees a provider error.
// Policy order matters: the cost ceiling is checked before the rate
// window so a capped conversation makes zero further provider calls,
// and cache hits come after both so cached traffic still counts
// against neither budget nor window.
func (g *Generator) Generate(ctx context.Context, message string, sess *conversation.Session) (Result, error) {
	if sess.TotalCost >= g.costLimit {
		g.emit(sess, "ai_cost_limit", map[string]interface{}{"total_cost": sess.TotalCost})
		return Result{Kind: KindCostLimit, Reply: costLimitReply()}, nil
	}

	now := g.now()
	if sess.RateWindowStart.IsZero() || now.Sub(sess.RateWindowStart) >= rateWindow {
		sess.RateWindowStart = now
		sess.RateCount = 0
	}
	if sess.RateCount >= g.ratePerMin {
		g.metrics.RecordRateLimited("session")
		g.emit(sess, "ai_rate_limited", nil)
		return Result{Kind: KindRateLimited, Reply: rateLimitedReply(sess.CurrentStep)}, nil
	}

	if reply, ok := g.cache.get(message, sess.CurrentStep); ok {
		g.metrics.RecordCacheHit()
		g.emit(sess, "ai_cache_hit", nil)
		return Result{Kind: KindOK, Reply: reply}, nil
	}

	// Only an actual provider call consumes a window slot.
	sess.RateCount++

	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	ch := make(chan chatResult, 1)
	go func() {
		out, err := g.chat.Chat(callCtx, chatMessages(g.kb, sess, message))
		ch <- chatResult{out: out, err: err}
	}()

	var out model.ChatOut
	select {
	case res := <-ch:
		if res.err != nil {
			// A provider error caused by our own deadline is a timeout,
			// not a technical failure.
			if callCtx.Err() != nil {
				g.emit(sess, "ai_timeout", map[string]interface{}{"timeout_ms": g.callTimeout.Milliseconds()})
				return Result{}, ErrTimeout
			}
			g.emit(sess, "ai_provider_error", map[string]interface{}{"error": res.err.Error()})
			return Result{Kind: KindTechnicalError, Reply: technicalErrorReply()}, nil
		}
		out = res.out
	case <-callCtx.Done():
		g.emit(sess, "ai_timeout", map[string]interface{}{"timeout_ms": g.callTimeout.Milliseconds()})
		return Result{}, ErrTimeout
	}

	cost := float64(out.Usage.Total()) * costPerToken(g.modelName)
	sess.TotalCost += cost
	g.metrics.AddCost(cost)

	reply := deriveReply(out.Text, sess)
	reply.Cost = cost
	g.cache.put(message, sess.CurrentStep, reply)

	g.emit(sess, "ai_reply", map[string]interface{}{
		"cost_usd": cost,
		"tokens":   out.Usage.Total(),
		"intent":   reply.Intent,
	})
	return Result{Kind: KindOK, Reply: reply}, nil
}

func (g *Generator) emit(sess *conversation.Session, msg string, meta map[string]interface{}) {
	g.emitter.Emit(emit.Event{
		SessionID: sess.ID,
		Turn:      sess.MessageCount + 1,
		Step:      string(sess.CurrentStep),
		Msg:       msg,
		Meta:      meta,
	})
}

func costLimitReply() conversation.AIReply {
	return conversation.AIReply{
		Text: "Questa conversazione sta diventando articolata e merita l'attenzione di un nostro consulente. " +
			"Ti metto subito in contatto con una persona del team.",
		Escalate:       true,
		EscalationType: conversation.EscalationCostLimit,
	}
}

func rateLimitedReply(step conversation.Step) conversation.AIReply {
	return conversation.AIReply{
		Text: "Stai scrivendo molto velocemente! Dammi un attimo per risponderti con calma, " +
			"oppure riprova tra qualche istante.",
		NextStep: step,
	}
}

func technicalErrorReply() conversation.AIReply {
	return conversation.AIReply{
		Text: "In questo momento ho qualche difficolta' tecnica. " +
			"Ti metto in contatto con un nostro operatore per non farti attendere.",
		Escalate:       true,
		EscalationType: conversation.EscalationAISuggested,
	}
}
