package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Turn roles.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// Well-known lead field names. Collected values are free-form strings keyed
// by these names; unknown keys supplied by the widget are stored as-is.
const (
	FieldCompanyName = "company_name"
	FieldSector      = "sector"
	FieldLocation    = "location"
	FieldCompanySize = "company_size"
	FieldBudget      = "budget_range"
	FieldTimeline    = "timeline"
	FieldUrgency     = "urgency"
	FieldService     = "service_interest"
	FieldProblem     = "problem_description"
	FieldContactName = "contact_name"
	FieldEmail       = "email"
	FieldPhone       = "phone"
)

// Turn is a single message in a session transcript.
type Turn struct {
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	Cost           float64   `json:"cost,omitempty"`
	AIPowered      bool      `json:"aiPowered,omitempty"`
	ResponseTimeMs int64     `json:"responseTimeMs,omitempty"`
}

// EscalationRecord is attached to a session once a human handoff has been
// decided. Notified tracks whether the dispatcher managed to reach the
// chat-ops channel; a false value never blocks the conversation.
type EscalationRecord struct {
	Type      EscalationType `json:"type"`
	Priority  Priority       `json:"priority"`
	Reason    string         `json:"reason"`
	Timestamp time.Time      `json:"timestamp"`
	Notified  bool           `json:"notified"`
}

// Session is the durable per-conversation state. It is owned by the session
// store: the HTTP layer loads it at the start of a turn, mutates it through
// the engine and the AI generator, and writes it back before responding.
// Two racing writes resolve last-write-wins (see store package).
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	Turns       []Turn            `json:"turns"`
	CurrentStep Step              `json:"currentStep"`
	Lead        map[string]string `json:"lead"`

	// MessageCount counts processed user turns; it drives the
	// long-conversation escalation rule.
	MessageCount int `json:"messageCount"`

	// LowConfidenceRuns counts consecutive turns whose top intent fell
	// below the confidence threshold. It is incremented by the escalation
	// evaluator and intentionally never reset on a confident turn.
	LowConfidenceRuns int `json:"lowConfidenceRuns"`

	// AI budget accounting. TotalCost only ever grows; once it crosses the
	// configured cap every AI call short-circuits to the cost-limit
	// sentinel.
	TotalCost       float64   `json:"totalCost"`
	RateWindowStart time.Time `json:"rateWindowStart"`
	RateCount       int       `json:"rateCount"`

	AIResponses     int   `json:"aiResponses"`
	ResponseCount   int   `json:"responseCount"`
	TotalResponseMs int64 `json:"totalResponseMs"`

	EscalationRequested bool              `json:"escalationRequested"`
	Escalation          *EscalationRecord `json:"escalation,omitempty"`
}

// NewSession creates an empty session positioned at the greeting step.
// The id is a v4 UUID: opaque and not guessable.
func NewSession(now time.Time) *Session {
	return &Session{
		ID:          uuid.NewString(),
		CreatedAt:   now,
		CurrentStep: StepGreeting,
		Lead:        make(map[string]string),
	}
}

// AddTurn appends a transcript entry.
func (s *Session) AddTurn(t Turn) {
	s.Turns = append(s.Turns, t)
}

// LastUserText returns the text of the most recent user turn, or "".
func (s *Session) LastUserText() string {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleUser {
			return s.Turns[i].Text
		}
	}
	return ""
}

// SetLead stores a collected lead field, allocating the map if the session
// was decoded from an older snapshot without one.
func (s *Session) SetLead(field, value string) {
	if s.Lead == nil {
		s.Lead = make(map[string]string)
	}
	s.Lead[field] = value
}

// RecordResponse accumulates response-time accounting for a bot reply.
func (s *Session) RecordResponse(ms int64, aiPowered bool) {
	s.ResponseCount++
	s.TotalResponseMs += ms
	if aiPowered {
		s.AIResponses++
	}
}

// AverageResponseMs returns the mean bot response time across the session.
func (s *Session) AverageResponseMs() int64 {
	if s.ResponseCount == 0 {
		return 0
	}
	return s.TotalResponseMs / int64(s.ResponseCount)
}
