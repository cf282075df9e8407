package conversation

import (
	"fmt"
	"strings"
)

// EscalationType classifies why a conversation is handed to a human.
type EscalationType string

const (
	EscalationExplicitHumanRequest     EscalationType = "explicit_human_request"
	EscalationHighValueLead            EscalationType = "high_value_lead"
	EscalationLongConversation         EscalationType = "long_conversation"
	EscalationRepeatedMisunderstanding EscalationType = "repeated_misunderstanding"
	EscalationCostLimit                EscalationType = "cost_limit"
	EscalationAISuggested              EscalationType = "ai_suggested"
)

// Priority of a human handoff.
type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityHigh      Priority = "high"
	PriorityMedium    Priority = "medium"
	PriorityLow       Priority = "low"
)

// Decision is the outcome of one escalation evaluation. It is computed fresh
// per turn and, when Required, recorded on the session.
type Decision struct {
	Required bool
	Type     EscalationType
	Priority Priority
	Reason   string
}

// Default evaluator thresholds.
const (
	DefaultMaxTurns               = 15
	DefaultLowConfidence          = 0.3
	lowConfidenceEscalationStreak = 3
)

// Evaluator applies the fixed escalation rule set. Rules are checked in
// order and the first match wins; rule 4 mutates the session's
// low-confidence counter even when it does not trigger.
//
// The evaluator must run before the AI generator is consulted so that an
// explicit human request never reaches the LLM.
type Evaluator struct {
	kb *KnowledgeBase

	// MaxTurns is the long-conversation ceiling (rule 3).
	MaxTurns int
	// LowConfidence is the top-intent confidence threshold (rule 4).
	LowConfidence float64
}

// NewEvaluator builds an evaluator with default thresholds.
func NewEvaluator(kb *KnowledgeBase) *Evaluator {
	return &Evaluator{
		kb:            kb,
		MaxTurns:      DefaultMaxTurns,
		LowConfidence: DefaultLowConfidence,
	}
}

// Evaluate decides whether the current turn requires a human handoff.
//
// Rule order is fixed:
//  1. explicit human-request phrase in the message
//  2. collected lead fields mark a high-value lead
//  3. turn count above the ceiling
//  4. third or later consecutive low-confidence turn
func (e *Evaluator) Evaluate(message string, sess *Session, intents []IntentMatch) Decision {
	lower := strings.ToLower(message)

	// 1. Explicit request wins regardless of step or AI availability.
	for _, trigger := range e.kb.HumanTriggers {
		if strings.Contains(lower, trigger) {
			return Decision{
				Required: true,
				Type:     EscalationExplicitHumanRequest,
				Priority: PriorityImmediate,
				Reason:   "l'utente ha chiesto esplicitamente un operatore",
			}
		}
	}

	// 2. High-value lead: top budget band, top size band, or urgent timeline.
	if e.highValue(sess.Lead) {
		return Decision{
			Required: true,
			Type:     EscalationHighValueLead,
			Priority: PriorityHigh,
			Reason:   "lead ad alto valore (budget, dimensione azienda o urgenza)",
		}
	}

	// 3. Conversation too long for the scripted flow.
	if sess.MessageCount >= e.MaxTurns {
		return Decision{
			Required: true,
			Type:     EscalationLongConversation,
			Priority: PriorityMedium,
			Reason:   fmt.Sprintf("conversazione oltre %d messaggi", e.MaxTurns),
		}
	}

	// 4. Repeated misunderstanding. The counter increments on every
	// low-confidence turn and is never reset by this rule.
	top := 0.0
	if len(intents) > 0 {
		top = intents[0].Confidence
	}
	if top < e.LowConfidence {
		sess.LowConfidenceRuns++
		if sess.LowConfidenceRuns >= lowConfidenceEscalationStreak {
			return Decision{
				Required: true,
				Type:     EscalationRepeatedMisunderstanding,
				Priority: PriorityMedium,
				Reason:   "più messaggi consecutivi non compresi",
			}
		}
	}

	return Decision{}
}

// highValue implements escalation rule 2 against collected lead fields.
// Thresholds here are the TOP bands; the flow engine's lead qualification
// uses looser thresholds on purpose.
func (e *Evaluator) highValue(lead map[string]string) bool {
	if len(lead) == 0 {
		return false
	}
	if e.kb.BudgetRank(lead[FieldBudget]) == len(e.kb.BudgetBands)-1 {
		return true
	}
	if e.kb.SizeRank(lead[FieldCompanySize]) == len(e.kb.SizeBands)-1 {
		return true
	}
	return e.kb.IsUrgent(lead[FieldTimeline]) || e.kb.IsUrgent(lead[FieldUrgency])
}
