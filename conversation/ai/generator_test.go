package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/omniaweb/chatbot/conversation"
	"github.com/omniaweb/chatbot/conversation/model"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGenerator(chat model.ChatModel, clock *fakeClock, opts Options) *Generator {
	opts.Clock = clock.Now
	if opts.ModelName == "" {
		opts.ModelName = "gpt-4o-mini"
	}
	return NewGenerator(chat, conversation.DefaultKnowledgeBase(), opts)
}

func newAISession() *conversation.Session {
	sess := conversation.NewSession(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	sess.CurrentStep = conversation.StepServiceInquiry
	return sess
}

func TestGenerateAccumulatesCost(t *testing.T) {
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "risposta", Usage: model.Usage{InputTokens: 600, OutputTokens: 400}},
	}}
	gen := newTestGenerator(chat, newFakeClock(), Options{})
	sess := newAISession()

	res, err := gen.Generate(context.Background(), "quanto costa un sito?", sess)
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindOK {
		t.Fatalf("kind = %s", res.Kind)
	}

	// 1000 tokens at the gpt-4o-mini per-token price.
	want := 1000 * 0.000000375
	if diff := sess.TotalCost - want; diff < -1e-12 || diff > 1e-12 {
		t.Errorf("total cost = %g, want %g", sess.TotalCost, want)
	}
	if res.Reply.Cost != sess.TotalCost {
		t.Errorf("reply cost = %g", res.Reply.Cost)
	}
}

func TestGenerateCostLimit(t *testing.T) {
	chat := &model.MockChatModel{}
	gen := newTestGenerator(chat, newFakeClock(), Options{CostLimit: 0.10})
	sess := newAISession()
	sess.TotalCost = 0.10

	for i := 0; i < 3; i++ {
		res, err := gen.Generate(context.Background(), "altra domanda", sess)
		if err != nil {
			t.Fatal(err)
		}
		if res.Kind != KindCostLimit {
			t.Fatalf("call %d: kind = %s", i, res.Kind)
		}
		if !res.Reply.Escalate {
			t.Error("cost limit reply must escalate")
		}
		if res.Reply.EscalationType != conversation.EscalationCostLimit {
			t.Errorf("escalation type = %s", res.Reply.EscalationType)
		}
	}

	// No provider calls and no further cost once capped.
	if chat.CallCount() != 0 {
		t.Errorf("provider called %d times after cap", chat.CallCount())
	}
	if sess.TotalCost != 0.10 {
		t.Errorf("cost changed to %g", sess.TotalCost)
	}
}

func TestGenerateRateWindow(t *testing.T) {
	clock := newFakeClock()
	chat := &model.MockChatModel{Responses: []model.ChatOut{{Text: "ok"}}}
	gen := newTestGenerator(chat, clock, Options{RatePerMinute: 2})
	sess := newAISession()

	// Distinct messages to stay off the cache.
	msgs := []string{"uno", "due", "tre", "quattro"}

	for i := 0; i < 2; i++ {
		res, _ := gen.Generate(context.Background(), msgs[i], sess)
		if res.Kind != KindOK {
			t.Fatalf("call %d: kind = %s", i, res.Kind)
		}
	}

	res, _ := gen.Generate(context.Background(), msgs[2], sess)
	if res.Kind != KindRateLimited {
		t.Fatalf("third call in window: kind = %s", res.Kind)
	}
	if res.Reply.Escalate {
		t.Error("rate limit reply must not escalate")
	}

	// Window elapses, counter resets.
	clock.Advance(61 * time.Second)
	res, _ = gen.Generate(context.Background(), msgs[3], sess)
	if res.Kind != KindOK {
		t.Errorf("after window: kind = %s", res.Kind)
	}
	if sess.RateCount != 1 {
		t.Errorf("rate count = %d after reset", sess.RateCount)
	}
}

func TestGenerateCacheIdempotence(t *testing.T) {
	clock := newFakeClock()
	chat := &model.MockChatModel{Responses: []model.ChatOut{
		{Text: "risposta cacheata", Usage: model.Usage{InputTokens: 100, OutputTokens: 100}},
	}}
	gen := newTestGenerator(chat, clock, Options{CacheTTL: time.Hour})
	sess := newAISession()

	first, _ := gen.Generate(context.Background(), "Quanto costa un sito?", sess)
	costAfterFirst := sess.TotalCost
	if sess.RateCount != 1 {
		t.Fatalf("rate count = %d after provider call", sess.RateCount)
	}

	// Same message normalized differently: extra spaces and case.
	second, _ := gen.Generate(context.Background(), "  quanto   costa un sito?  ", sess)
	if chat.CallCount() != 1 {
		t.Fatalf("provider called %d times", chat.CallCount())
	}
	if sess.RateCount != 1 {
		t.Errorf("cache hit consumed a rate-window slot, count = %d", sess.RateCount)
	}
	if !second.Reply.Cached {
		t.Error("second reply not marked cached")
	}
	if second.Reply.Cost != 0 {
		t.Errorf("cached reply cost = %g", second.Reply.Cost)
	}
	if second.Reply.Text != first.Reply.Text {
		t.Errorf("cached text differs: %q vs %q", second.Reply.Text, first.Reply.Text)
	}
	if sess.TotalCost != costAfterFirst {
		t.Error("cache hit added cost")
	}

	t.Run("different step misses", func(t *testing.T) {
		sess.CurrentStep = conversation.StepSupportDetail
		gen.Generate(context.Background(), "quanto costa un sito?", sess)
		if chat.CallCount() != 2 {
			t.Errorf("provider called %d times", chat.CallCount())
		}
	})

	t.Run("expired entry misses", func(t *testing.T) {
		sess.CurrentStep = conversation.StepServiceInquiry
		clock.Advance(2 * time.Hour)
		gen.Generate(context.Background(), "quanto costa un sito?", sess)
		if chat.CallCount() != 3 {
			t.Errorf("provider called %d times", chat.CallCount())
		}
	})
}

func TestGenerateTimeout(t *testing.T) {
	chat := &model.MockChatModel{Delay: 200 * time.Millisecond}
	gen := newTestGenerator(chat, newFakeClock(), Options{CallTimeout: 20 * time.Millisecond})
	sess := newAISession()

	_, err := gen.Generate(context.Background(), "domanda lenta", sess)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestGenerateProviderFailure(t *testing.T) {
	chat := &model.MockChatModel{Err: errors.New("boom")}
	gen := newTestGenerator(chat, newFakeClock(), Options{})
	sess := newAISession()

	res, err := gen.Generate(context.Background(), "domanda", sess)
	if err != nil {
		t.Fatalf("provider errors must not propagate, got %v", err)
	}
	if res.Kind != KindTechnicalError {
		t.Fatalf("kind = %s", res.Kind)
	}
	if !res.Reply.Escalate {
		t.Error("technical error reply must escalate")
	}
	if sess.TotalCost != 0 {
		t.Errorf("failed call added cost %g", sess.TotalCost)
	}
}

func TestDeriveReply(t *testing.T) {
	sess := newAISession()

	t.Run("qualified lead escalates", func(t *testing.T) {
		r := deriveReply("Perfetto, ti faccio ricontattare da un nostro commerciale.", sess)
		if r.Intent != qualifiedLeadIntent {
			t.Errorf("intent = %s", r.Intent)
		}
		if !r.Escalate {
			t.Error("qualified lead must escalate")
		}
		if r.NextStep != conversation.StepContactCollection {
			t.Errorf("next step = %s", r.NextStep)
		}
	})

	t.Run("pricing talk maps to service detail", func(t *testing.T) {
		r := deriveReply("Il prezzo dipende dal progetto, la fascia di prezzo parte da €1.500.", sess)
		if r.Intent != "service_inquiry" {
			t.Errorf("intent = %s", r.Intent)
		}
		if r.NextStep != conversation.StepServiceDetail {
			t.Errorf("next step = %s", r.NextStep)
		}
		if r.Escalate {
			t.Error("unexpected escalation")
		}
	})

	t.Run("neutral reply keeps current step as intent", func(t *testing.T) {
		// The fallback intent equals a step name that is also a rule
		// name; it must not pick up that rule's next-step hint.
		r := deriveReply("Certo, posso spiegarti meglio.", sess)
		if r.Intent != string(sess.CurrentStep) {
			t.Errorf("intent = %s", r.Intent)
		}
		if r.NextStep != "" {
			t.Errorf("unexpected hint %s", r.NextStep)
		}
		if r.Options != nil {
			t.Errorf("unexpected options %v", r.Options)
		}
	})

	t.Run("handoff phrasing escalates", func(t *testing.T) {
		r := deriveReply("Puoi chiamare un nostro consulente allo 039 2847 101.", sess)
		if !r.Escalate {
			t.Error("expected escalation")
		}
		if r.EscalationType != conversation.EscalationAISuggested {
			t.Errorf("type = %s", r.EscalationType)
		}
	})

	t.Run("prior escalation request carries over", func(t *testing.T) {
		escalated := newAISession()
		escalated.EscalationRequested = true
		r := deriveReply("Va bene, procediamo.", escalated)
		if !r.Escalate {
			t.Error("expected escalation for already-escalated session")
		}
	})
}

func TestSystemPromptIncludesCatalogAndLead(t *testing.T) {
	kb := conversation.DefaultKnowledgeBase()
	sess := newAISession()
	sess.SetLead(conversation.FieldCompanyName, "Rossi Arredamenti")

	prompt := systemPrompt(kb, sess)
	for _, fragment := range []string{"Omniaweb", "Sviluppo Siti Web", "Rossi Arredamenti", string(sess.CurrentStep)} {
		if !strings.Contains(prompt, fragment) {
			t.Errorf("prompt missing %q", fragment)
		}
	}
}
