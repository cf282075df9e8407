package conversation

import (
	"testing"
	"time"
)

func testSession() *Session {
	return NewSession(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
}

func TestEvaluateExplicitHumanRequest(t *testing.T) {
	e := NewEvaluator(DefaultKnowledgeBase())

	for _, msg := range []string{
		"voglio parlare con qualcuno",
		"passami un operatore",
		"C'è un umano?",
	} {
		t.Run(msg, func(t *testing.T) {
			sess := testSession()
			dec := e.Evaluate(msg, sess, nil)
			if !dec.Required {
				t.Fatal("expected escalation")
			}
			if dec.Type != EscalationExplicitHumanRequest {
				t.Errorf("expected explicit_human_request, got %s", dec.Type)
			}
			if dec.Priority != PriorityImmediate {
				t.Errorf("expected immediate priority, got %s", dec.Priority)
			}
		})
	}
}

func TestEvaluateHighValueLead(t *testing.T) {
	e := NewEvaluator(DefaultKnowledgeBase())

	cases := []struct {
		name  string
		field string
		value string
	}{
		{"top budget band", FieldBudget, "€30.000+"},
		{"top size band", FieldCompanySize, "100+"},
		{"urgent timeline", FieldTimeline, "Entro 1 mese"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := testSession()
			sess.SetLead(tc.field, tc.value)
			dec := e.Evaluate("ok", sess, nil)
			if !dec.Required || dec.Type != EscalationHighValueLead {
				t.Errorf("expected high_value_lead, got %+v", dec)
			}
			if dec.Priority != PriorityHigh {
				t.Errorf("expected high priority, got %s", dec.Priority)
			}
		})
	}

	t.Run("mid bands do not escalate", func(t *testing.T) {
		sess := testSession()
		sess.SetLead(FieldBudget, "€5.000 - €15.000")
		sess.SetLead(FieldCompanySize, "10-49")
		dec := e.Evaluate("va bene grazie mille davvero", sess, []IntentMatch{{Intent: "x", Confidence: 0.9}})
		if dec.Required {
			t.Errorf("unexpected escalation: %+v", dec)
		}
	})
}

func TestEvaluateLongConversation(t *testing.T) {
	e := NewEvaluator(DefaultKnowledgeBase())
	sess := testSession()
	sess.MessageCount = DefaultMaxTurns

	dec := e.Evaluate("ok", sess, []IntentMatch{{Intent: "x", Confidence: 0.9}})
	if !dec.Required || dec.Type != EscalationLongConversation {
		t.Errorf("expected long_conversation, got %+v", dec)
	}

	sess.MessageCount = DefaultMaxTurns - 1
	dec = e.Evaluate("ok", sess, []IntentMatch{{Intent: "x", Confidence: 0.9}})
	if dec.Required {
		t.Errorf("unexpected escalation below ceiling: %+v", dec)
	}
}

func TestEvaluateRepeatedMisunderstanding(t *testing.T) {
	e := NewEvaluator(DefaultKnowledgeBase())
	sess := testSession()

	// Two low-confidence turns increment the counter without escalating.
	for i := 1; i <= 2; i++ {
		dec := e.Evaluate("boh", sess, nil)
		if dec.Required {
			t.Fatalf("turn %d: unexpected escalation", i)
		}
		if sess.LowConfidenceRuns != i {
			t.Fatalf("turn %d: counter = %d", i, sess.LowConfidenceRuns)
		}
	}

	// Third strike escalates.
	dec := e.Evaluate("boh", sess, nil)
	if !dec.Required || dec.Type != EscalationRepeatedMisunderstanding {
		t.Errorf("expected repeated_misunderstanding, got %+v", dec)
	}
	if sess.LowConfidenceRuns != 3 {
		t.Errorf("counter = %d, want 3", sess.LowConfidenceRuns)
	}
}

func TestLowConfidenceCounterNeverResets(t *testing.T) {
	e := NewEvaluator(DefaultKnowledgeBase())
	sess := testSession()

	e.Evaluate("boh", sess, nil)
	e.Evaluate("boh", sess, nil)

	// A confident turn in between does not clear the streak.
	dec := e.Evaluate("ciao", sess, []IntentMatch{{Intent: "greeting", Confidence: 0.9}})
	if dec.Required {
		t.Fatalf("unexpected escalation on confident turn: %+v", dec)
	}
	if sess.LowConfidenceRuns != 2 {
		t.Fatalf("counter reset to %d", sess.LowConfidenceRuns)
	}

	dec = e.Evaluate("boh", sess, nil)
	if !dec.Required || dec.Type != EscalationRepeatedMisunderstanding {
		t.Errorf("expected third strike to escalate, got %+v", dec)
	}
}

func TestEvaluateRuleOrder(t *testing.T) {
	e := NewEvaluator(DefaultKnowledgeBase())

	// A session that qualifies for every rule still reports the
	// explicit request, which is checked first.
	sess := testSession()
	sess.SetLead(FieldBudget, "€30.000+")
	sess.MessageCount = DefaultMaxTurns + 5
	sess.LowConfidenceRuns = 10

	dec := e.Evaluate("voglio parlare con un operatore", sess, nil)
	if dec.Type != EscalationExplicitHumanRequest {
		t.Errorf("expected explicit request to win, got %s", dec.Type)
	}

	// Without the explicit phrase, the high-value lead wins over the
	// turn-count and misunderstanding rules.
	dec = e.Evaluate("ok", sess, nil)
	if dec.Type != EscalationHighValueLead {
		t.Errorf("expected high_value_lead to win, got %s", dec.Type)
	}
}
