package ai

import (
	"strings"

	"github.com/omniaweb/chatbot/conversation"
)

// qualifiedLeadIntent marks a reply that is steering the user toward a
// commercial contact. It always escalates.
const qualifiedLeadIntent = "qualified_lead"

// Substring rules applied to the lowercased reply text, in order. The
// first matching rule wins, so the commercial signals come first.
var intentRules = []struct {
	intent   string
	keywords []string
}{
	{qualifiedLeadIntent, []string{"ricontatt", "un nostro commerciale", "fissare un appuntamento", "lasciami i tuoi contatti"}},
	{"service_inquiry", []string{"preventivo", "prezzo", "costo", "quanto costa", "fascia di prezzo"}},
	{"support_request", []string{"assistenza", "supporto", "problema tecnico", "malfunzionamento"}},
	{"general_info", []string{"orari", "dove siamo", "la nostra sede", "chi siamo"}},
}

// Phrases in the reply that hand the conversation to a human outright.
var escalationPhrases = []string{
	"operatore",
	"un nostro consulente",
	"una persona del team",
	"039 2847 101",
}

// Steps each derived intent suggests to the flow engine. The hint is
// advisory: the engine ignores it when it is not a valid step.
var intentNextStep = map[string]conversation.Step{
	qualifiedLeadIntent: conversation.StepContactCollection,
	"service_inquiry":   conversation.StepServiceDetail,
	"support_request":   conversation.StepSupportDetail,
	"general_info":      conversation.StepGeneralInfo,
}

// deriveReply post-processes raw model output into the structured reply
// the flow engine consumes: derived intent, escalate flag, UI options
// and a next-step hint.
func deriveReply(text string, sess *conversation.Session) conversation.AIReply {
	lower := strings.ToLower(text)

	// The fallback intent is the current step's name, which can collide
	// with the rule names; only a real rule match may steer the flow.
	intent := string(sess.CurrentStep)
	matched := false
	for _, rule := range intentRules {
		if containsAny(lower, rule.keywords) {
			intent = rule.intent
			matched = true
			break
		}
	}

	escalate := sess.EscalationRequested ||
		intent == qualifiedLeadIntent ||
		containsAny(lower, escalationPhrases)

	reply := conversation.AIReply{
		Text:     text,
		Intent:   intent,
		Escalate: escalate,
	}
	if matched {
		reply.NextStep = intentNextStep[intent]
		reply.Options = optionsFor(intent)
	}
	if escalate {
		reply.EscalationType = conversation.EscalationAISuggested
	}
	return reply
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// optionsFor returns the quick-reply labels matching the derived
// intent, mirroring the scripted flow's own option sets.
func optionsFor(intent string) []string {
	switch intent {
	case qualifiedLeadIntent:
		return []string{"Lascia i tuoi contatti", "📞 Chiamaci: 039 2847 101"}
	case "service_inquiry":
		return []string{"Richiedi un preventivo", "Scopri i servizi"}
	case "support_request":
		return []string{"Apri una richiesta di assistenza", "Parla con un tecnico"}
	default:
		return nil
	}
}
