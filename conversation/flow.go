package conversation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AIReply is the post-processed output of the AI generator, merged into the
// flow by ProcessTurn. A nil AIReply means the scripted flow answers alone.
type AIReply struct {
	Text           string
	Intent         string
	Escalate       bool
	EscalationType EscalationType
	Options        []string
	NextStep       Step
	Cached         bool
	Cost           float64
}

// Reply is what one processed turn returns to the HTTP layer.
type Reply struct {
	Message        string
	Options        []string
	NextStep       Step
	Intent         string
	Confidence     float64
	Escalate       bool
	EscalationType EscalationType
	Priority       Priority
	AIPowered      bool
	Cached         bool
	Cost           float64
}

// StepDefinition is one row of the static flow table.
type StepDefinition struct {
	// Triggers let an intent with the same name short-circuit into this
	// step; kept for documentation and for tests that validate the table.
	Triggers []string

	// Template is the static response. {field} placeholders are substituted
	// from the session's lead data; unresolved placeholders are left
	// verbatim, which is accepted behavior.
	Template string

	Options []string

	// Next lists candidate successors. For static responses the first entry
	// is always chosen; dynamic steps pick their own successor.
	Next []Step

	Dynamic      bool
	CollectsData bool
	Escalates    bool
}

// Engine is the table-driven conversation state machine. It owns intent
// recognition and escalation evaluation, and merges optional AI replies
// into the scripted flow.
//
// The engine is stateless across turns: all mutable state lives on the
// Session, so a single Engine is shared by every request.
type Engine struct {
	kb         *KnowledgeBase
	recognizer *Recognizer
	evaluator  *Evaluator
	steps      map[Step]StepDefinition

	now func() time.Time
}

// NewEngine builds the engine over the given knowledge base with the
// default intent table and escalation thresholds.
func NewEngine(kb *KnowledgeBase) *Engine {
	return &Engine{
		kb:         kb,
		recognizer: NewRecognizer(DefaultIntentRules()),
		evaluator:  NewEvaluator(kb),
		steps:      flowTable(kb),
		now:        time.Now,
	}
}

// Evaluator exposes the escalation evaluator for threshold tuning.
func (e *Engine) Evaluator() *Evaluator { return e.evaluator }

// Recognize runs intent recognition on a user message.
func (e *Engine) Recognize(text string) []IntentMatch {
	return e.recognizer.Recognize(text)
}

// EvaluateEscalation applies the escalation rules for the current turn.
// It must be called exactly once per turn: rule 4 mutates the session's
// low-confidence counter.
func (e *Engine) EvaluateEscalation(text string, sess *Session, intents []IntentMatch) Decision {
	return e.evaluator.Evaluate(text, sess, intents)
}

// Greeting produces the opening reply for a new or resumed session.
func (e *Engine) Greeting(sess *Session) Reply {
	def := e.steps[StepGreeting]
	sess.CurrentStep = StepServiceInquiry
	return Reply{
		Message:  substitutePlaceholders(def.Template, sess.Lead),
		Options:  def.Options,
		NextStep: StepServiceInquiry,
	}
}

// ProcessMessage runs the full per-turn pipeline: recognition, escalation
// evaluation, then ProcessTurn.
func (e *Engine) ProcessMessage(text string, sess *Session, aiReply *AIReply) Reply {
	intents := e.Recognize(text)
	dec := e.EvaluateEscalation(text, sess, intents)
	return e.ProcessTurn(text, sess, intents, dec, aiReply)
}

// ProcessTurn resolves the flow for one user turn given already-computed
// intents and escalation decision.
//
// Any panic inside the pipeline is recovered and converted to the fixed
// apologetic fallback; errors never propagate to the caller.
func (e *Engine) ProcessTurn(text string, sess *Session, intents []IntentMatch, dec Decision, aiReply *AIReply) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			reply = e.fallbackReply(sess)
		}
	}()

	topIntent, topConfidence := "", 0.0
	if len(intents) > 0 {
		topIntent, topConfidence = intents[0].Intent, intents[0].Confidence
	}

	// Escalation short-circuits the normal flow entirely.
	if dec.Required {
		reply = e.escalationReply(dec, sess)
		reply.Intent = topIntent
		reply.Confidence = topConfidence
		return reply
	}
	if aiReply != nil && aiReply.Escalate {
		t := aiReply.EscalationType
		if t == "" {
			t = EscalationAISuggested
		}
		prio := PriorityMedium
		if t == EscalationCostLimit {
			prio = PriorityHigh
		}
		reply = e.escalationReply(Decision{
			Required: true,
			Type:     t,
			Priority: prio,
			Reason:   "escalation suggerita dal modello",
		}, sess)
		reply.Intent = topIntent
		reply.Confidence = topConfidence
		reply.AIPowered = true
		reply.Cost = aiReply.Cost
		return reply
	}

	// Resolve the flow step: top intent first, current step otherwise.
	step := sess.CurrentStep
	if _, ok := e.steps[step]; !ok {
		step = StepServiceInquiry
	}
	if topIntent != "" {
		if _, ok := e.steps[Step(topIntent)]; ok {
			step = Step(topIntent)
		}
	}
	def := e.steps[step]

	if def.CollectsData {
		e.collectData(step, text, sess)
	}

	var message string
	var options []string
	var next Step
	escalate := false

	if def.Dynamic {
		message, options, next, escalate = e.generate(step, text, sess)
	} else {
		message = substitutePlaceholders(def.Template, sess.Lead)
		options = def.Options
		next = def.Next[0]
	}

	// Merge the AI reply into the resolved step: the model's text wins, its
	// next-step hint is honored when it names a real step.
	if aiReply != nil {
		if aiReply.Text != "" {
			message = aiReply.Text
		}
		if len(aiReply.Options) > 0 {
			options = aiReply.Options
		}
		if _, ok := e.steps[aiReply.NextStep]; ok {
			next = aiReply.NextStep
		}
	}

	if next == StepContinue {
		next = sess.CurrentStep
		if _, ok := e.steps[next]; !ok {
			next = StepServiceInquiry
		}
	}
	if !next.Valid() {
		next = StepRetry
	}

	sess.MessageCount++
	sess.CurrentStep = next

	reply = Reply{
		Message:    message,
		Options:    options,
		NextStep:   next,
		Intent:     topIntent,
		Confidence: topConfidence,
		Escalate:   escalate,
	}
	if escalate {
		reply.EscalationType = EscalationHighValueLead
		reply.Priority = PriorityHigh
		sess.EscalationRequested = true
		if sess.Escalation == nil {
			sess.Escalation = &EscalationRecord{
				Type:      EscalationHighValueLead,
				Priority:  PriorityHigh,
				Reason:    "lead qualificato come alta priorità",
				Timestamp: e.now(),
			}
		}
	}
	if aiReply != nil {
		reply.AIPowered = true
		reply.Cached = aiReply.Cached
		reply.Cost = aiReply.Cost
	}
	return reply
}

// generate dispatches the dynamic steps. The switch is exhaustive over the
// steps flagged Dynamic in the flow table; adding a dynamic step without a
// case here falls through to the static reprompt, which tests catch.
func (e *Engine) generate(step Step, text string, sess *Session) (message string, options []string, next Step, escalate bool) {
	switch step {
	case StepServiceDetail:
		return e.generateServiceDetail(sess)
	case StepLeadQualification:
		return e.generateLeadQualification(sess)
	case StepFAQResponse:
		return e.generateFAQResponse(text)
	case StepSupportDetail:
		return e.generateSupportDetail(text, sess)
	default:
		return e.serviceMenu("Dimmi pure come posso aiutarti."), e.serviceOptions(), StepServiceInquiry, false
	}
}

func (e *Engine) generateServiceDetail(sess *Session) (string, []string, Step, bool) {
	svc, ok := e.kb.ServiceByID(sess.Lead[FieldService])
	if !ok {
		return e.serviceMenu("Non ho riconosciuto il servizio. Quale di questi ti interessa?"),
			e.serviceOptions(), StepServiceInquiry, false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s — %s\n\nCosa comprende:\n", svc.Name, svc.Description)
	for _, off := range svc.Offerings {
		fmt.Fprintf(&b, "• %s\n", off)
	}
	fmt.Fprintf(&b, "\nFascia di prezzo indicativa: %s. Vuoi una proposta su misura?", svc.PriceBand)
	return b.String(),
		[]string{"Richiedi un preventivo", "Parla con un operatore"},
		StepBusinessQualification, false
}

func (e *Engine) generateLeadQualification(sess *Session) (string, []string, Step, bool) {
	priority := e.kb.QualifyLead(sess.Lead)
	switch priority {
	case LeadHigh:
		return "Il tuo progetto merita un'attenzione dedicata: ti metto in contatto diretto con un nostro consulente senior. Lasciami i tuoi recapiti e ti richiamiamo in giornata.",
			[]string{"Lascia i recapiti", "Chiamaci ora"},
			StepContactCollection, true
	case LeadMedium:
		return "Ottimo, abbiamo diverse soluzioni adatte al tuo budget. Lasciami i tuoi contatti e ti inviamo una proposta entro due giorni lavorativi.",
			[]string{"Lascia i recapiti"},
			StepContactCollection, false
	default:
		return "Grazie per le informazioni! Lasciami una email e ti mandiamo il nostro listino e qualche caso studio per orientarti.",
			[]string{"Lascia la tua email"},
			StepContactCollection, false
	}
}

func (e *Engine) generateFAQResponse(text string) (string, []string, Step, bool) {
	entry, ok := e.kb.SearchFAQ(text)
	if !ok {
		return "Non ho trovato una risposta precisa alla tua domanda. Vuoi che ti metta in contatto con un operatore?",
			[]string{"Parla con un operatore", "Torna ai servizi"},
			StepContinue, false
	}
	return entry.Answer + "\n\nPosso aiutarti con altro?",
		[]string{"Ho un'altra domanda", "Parla con un operatore"},
		StepContinue, false
}

func (e *Engine) generateSupportDetail(text string, sess *Session) (string, []string, Step, bool) {
	if sess.Lead[FieldProblem] == "" {
		if strings.TrimSpace(text) != "" {
			sess.SetLead(FieldProblem, strings.TrimSpace(text))
		} else {
			return "Descrivimi il problema che stai riscontrando, anche in poche parole.",
				nil, StepSupportDetail, false
		}
	}
	if sess.Lead[FieldUrgency] == "" {
		if sess.Lead[FieldProblem] != strings.TrimSpace(text) && strings.TrimSpace(text) != "" {
			sess.SetLead(FieldUrgency, strings.TrimSpace(text))
		} else {
			return "Quanto è urgente l'intervento?", e.kb.UrgencyOptions, StepSupportDetail, false
		}
	}
	return "Grazie, ho registrato la segnalazione. Lasciami un recapito telefonico o una email: un tecnico ti ricontatta a breve.",
		nil, StepSupportQualification, false
}

// escalationReply renders the handoff message for an escalation decision,
// records it on the session and moves the flow to escalation_preparation.
func (e *Engine) escalationReply(dec Decision, sess *Session) Reply {
	messages := map[EscalationType]string{
		EscalationExplicitHumanRequest:     "Certamente! Ti metto subito in contatto con un nostro operatore. Come preferisci essere ricontattato?",
		EscalationHighValueLead:            "Il tuo progetto merita un consulente dedicato: un nostro responsabile commerciale ti ricontatta al più presto. Come preferisci essere raggiunto?",
		EscalationLongConversation:         "Vedo che abbiamo parlato di parecchie cose: a questo punto è più comodo proseguire con una persona del nostro team. Come preferisci?",
		EscalationRepeatedMisunderstanding: "Mi dispiace, temo di non riuscire ad aiutarti al meglio. Preferisco passarti un collega in carne e ossa.",
		EscalationCostLimit:                "Per darti una risposta completa è meglio proseguire con un nostro operatore. Come preferisci essere ricontattato?",
		EscalationAISuggested:              "Credo che un nostro consulente possa aiutarti meglio su questo punto. Come preferisci essere ricontattato?",
	}
	msg, ok := messages[dec.Type]
	if !ok {
		msg = messages[EscalationAISuggested]
	}

	sess.MessageCount++
	sess.EscalationRequested = true
	record := &EscalationRecord{
		Type:      dec.Type,
		Priority:  dec.Priority,
		Reason:    dec.Reason,
		Timestamp: e.now(),
	}
	// A later escalating turn must not trigger a second notification.
	if sess.Escalation != nil {
		record.Notified = sess.Escalation.Notified
	}
	sess.Escalation = record
	sess.CurrentStep = StepEscalationPreparation

	return Reply{
		Message:        msg,
		Options:        []string{"📞 Chiamaci: 039 2847 101", "✉️ Scrivici una email", "Continua in chat"},
		NextStep:       StepEscalationPreparation,
		Escalate:       true,
		EscalationType: dec.Type,
		Priority:       dec.Priority,
	}
}

// fallbackReply is the fixed apologetic response used when the pipeline
// fails for any reason.
func (e *Engine) fallbackReply(sess *Session) Reply {
	if sess.CurrentStep == "" || !sess.CurrentStep.Valid() {
		sess.CurrentStep = StepRetry
	}
	return Reply{
		Message:  "Ops, si è verificato un problema tecnico. Puoi riprovare tra qualche istante oppure contattarci direttamente allo 039 2847 101.",
		Options:  []string{"Riprova", "Parla con un operatore"},
		NextStep: sess.CurrentStep,
	}
}

// collectData stores per-step data from the raw user message.
func (e *Engine) collectData(step Step, text string, sess *Session) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	switch step {
	case StepServiceInquiry:
		if svc, ok := e.kb.MatchService(trimmed); ok {
			sess.SetLead(FieldService, svc.ID)
		}
	case StepBusinessQualification:
		if sess.Lead[FieldCompanyName] == "" {
			sess.SetLead(FieldCompanyName, trimmed)
		} else if sess.Lead[FieldSector] == "" {
			sess.SetLead(FieldSector, trimmed)
		}
	case StepSupportRequest:
		if sess.Lead[FieldProblem] == "" {
			sess.SetLead(FieldProblem, trimmed)
		}
	case StepContactCollection, StepSupportQualification:
		e.collectContact(trimmed, sess)
	}
}

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-.]{6,}\d`)
)

func (e *Engine) collectContact(text string, sess *Session) {
	if m := emailRe.FindString(text); m != "" {
		sess.SetLead(FieldEmail, m)
	}
	if m := phoneRe.FindString(text); m != "" {
		sess.SetLead(FieldPhone, strings.TrimSpace(m))
	}
	if sess.Lead[FieldEmail] == "" && sess.Lead[FieldPhone] == "" && sess.Lead[FieldContactName] == "" {
		sess.SetLead(FieldContactName, text)
	}
}

func (e *Engine) serviceOptions() []string {
	options := make([]string, 0, len(e.kb.Services)+1)
	for _, svc := range e.kb.Services {
		options = append(options, svc.Name)
	}
	return append(options, "Parla con un operatore")
}

func (e *Engine) serviceMenu(prefix string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString("\n")
	for _, svc := range e.kb.Services {
		fmt.Fprintf(&b, "• %s\n", svc.Name)
	}
	return b.String()
}

// placeholderRe matches {field} templates in static responses.
var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// substitutePlaceholders fills {field} placeholders from collected lead
// data. Unresolved placeholders are left verbatim: the widget copy relies
// on it and a hard failure here would break the turn for a cosmetic issue.
func substitutePlaceholders(template string, lead map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		field := m[1 : len(m)-1]
		if v, ok := lead[field]; ok && v != "" {
			return v
		}
		return m
	})
}

// flowTable builds the static step table over the knowledge base.
func flowTable(kb *KnowledgeBase) map[Step]StepDefinition {
	serviceNames := make([]string, 0, len(kb.Services)+1)
	for _, svc := range kb.Services {
		serviceNames = append(serviceNames, svc.Name)
	}
	serviceNames = append(serviceNames, "Parla con un operatore")

	return map[Step]StepDefinition{
		StepGreeting: {
			Triggers: []string{"ciao", "buongiorno", "salve"},
			Template: "Ciao! 👋 Sono l'assistente virtuale di Omniaweb. Posso darti informazioni sui nostri servizi IT o aiutarti con una richiesta di assistenza. Da dove partiamo?",
			Options:  serviceNames,
			Next:     []Step{StepServiceInquiry},
		},
		StepServiceInquiry: {
			Triggers:     []string{"servizi", "preventivo", "sito"},
			Template:     "Quale servizio ti interessa? Scegli dall'elenco o scrivimelo con parole tue.",
			Options:      serviceNames,
			Next:         []Step{StepServiceDetail},
			CollectsData: true,
		},
		StepServiceDetail: {
			Dynamic: true,
			Next:    []Step{StepBusinessQualification, StepServiceInquiry},
		},
		StepBusinessQualification: {
			Template:     "Per prepararti una proposta su misura ho bisogno di qualche informazione: come si chiama la tua azienda e in che settore opera?",
			Next:         []Step{StepLeadQualification},
			CollectsData: true,
		},
		StepLeadQualification: {
			Dynamic: true,
			Next:    []Step{StepContactCollection},
		},
		StepContactCollection: {
			Template:     "Perfetto! Lasciami nome, email e telefono: ti ricontattiamo entro un giorno lavorativo.",
			Next:         []Step{StepEscalationPreparation},
			CollectsData: true,
		},
		StepEscalationPreparation: {
			Template:  "Grazie {contact_name}! Ho passato tutto al nostro team: ti ricontattiamo al più presto. Nel frattempo posso aiutarti con altro?",
			Options:   []string{"Ho un'altra domanda", "No, grazie"},
			Next:      []Step{StepHumanEscalation},
			Escalates: true,
		},
		StepSupportRequest: {
			Triggers:     []string{"problema", "assistenza", "supporto"},
			Template:     "Mi dispiace per il disagio! Che tipo di problema stai riscontrando?",
			Options:      []string{"Sito non raggiungibile", "Problemi email", "Server o rete", "Altro"},
			Next:         []Step{StepSupportDetail},
			CollectsData: true,
		},
		StepSupportDetail: {
			Dynamic: true,
			Next:    []Step{StepSupportQualification, StepSupportDetail},
		},
		StepSupportQualification: {
			Template:     "Grazie. Un tecnico prenderà in carico la segnalazione: lasciami un recapito telefonico o una email.",
			Next:         []Step{StepEscalationPreparation},
			CollectsData: true,
		},
		StepGeneralInfo: {
			Triggers: []string{"chi siete", "dove siete", "orari"},
			Template: "Omniaweb è una società di servizi IT di Monza: dal 2011 seguiamo PMI lombarde su web, cloud e assistenza sistemistica. Siamo in via Manzoni 24, dal lunedì al venerdì 9:00-18:00.",
			Options:  []string{"Vedi i servizi", "Parla con un operatore"},
			Next:     []Step{StepContinue},
		},
		StepFAQResponse: {
			Dynamic: true,
			Next:    []Step{StepContinue},
		},
		StepHumanEscalation: {
			Template:  "Ti mettiamo in contatto con un operatore. Puoi chiamarci allo 039 2847 101 oppure lasciare qui i tuoi recapiti.",
			Options:   []string{"📞 Chiamaci", "✉️ Scrivici una email"},
			Next:      []Step{StepHumanEscalation},
			Escalates: true,
		},
	}
}
