// Package notify scores qualified leads and dispatches them to the
// sales team over a Teams-style webhook and a downstream email
// endpoint.
package notify

import (
	"strings"

	"github.com/omniaweb/chatbot/conversation"
)

// Tier labels a lead's quality band.
type Tier string

const (
	TierPremium Tier = "premium"
	TierHigh    Tier = "high"
	TierMedium  Tier = "medium"
	TierLow     Tier = "low"
)

// Lead is the snapshot handed to the dispatcher when a conversation
// escalates. All fields come from the session; the dispatcher never
// reads the session itself.
type Lead struct {
	SessionID string

	CompanyName string
	Sector      string
	Location    string
	CompanySize string
	Budget      string
	Timeline    string
	Service     string
	Problem     string

	ContactName string
	Email       string
	Phone       string

	EscalationType conversation.EscalationType
	Priority       conversation.Priority
	MessageCount   int
	TotalCost      float64
}

// LeadFromSession snapshots the collected lead fields of a session.
func LeadFromSession(sess *conversation.Session) Lead {
	lead := Lead{
		SessionID:    sess.ID,
		CompanyName:  sess.Lead[conversation.FieldCompanyName],
		Sector:       sess.Lead[conversation.FieldSector],
		Location:     sess.Lead[conversation.FieldLocation],
		CompanySize:  sess.Lead[conversation.FieldCompanySize],
		Budget:       sess.Lead[conversation.FieldBudget],
		Timeline:     sess.Lead[conversation.FieldTimeline],
		Service:      sess.Lead[conversation.FieldService],
		Problem:      sess.Lead[conversation.FieldProblem],
		ContactName:  sess.Lead[conversation.FieldContactName],
		Email:        sess.Lead[conversation.FieldEmail],
		Phone:        sess.Lead[conversation.FieldPhone],
		MessageCount: sess.MessageCount,
		TotalCost:    sess.TotalCost,
	}
	if lead.Timeline == "" {
		lead.Timeline = sess.Lead[conversation.FieldUrgency]
	}
	if sess.Escalation != nil {
		lead.EscalationType = sess.Escalation.Type
		lead.Priority = sess.Escalation.Priority
	}
	return lead
}

// Towns in the company's direct service area. A lead from here can be
// visited in person, which sales weighs heavily.
var serviceArea = []string{
	"monza", "brianza", "lissone", "desio", "seregno", "vimercate",
	"arcore", "concorezzo", "brugherio", "carate",
}

var region = []string{"milano", "lombardia", "como", "lecco", "bergamo", "varese"}

// Score rates a lead from 0 to 100 by adding weighted signals:
// service-area proximity (max 20), company size (max 25), budget band
// (max 30), requested service (max 15) and urgency (max 10).
func Score(kb *conversation.KnowledgeBase, lead Lead) int {
	score := 0
	score += locationPoints(lead.Location)
	score += sizePoints(kb, lead.CompanySize)
	score += budgetPoints(kb, lead.Budget)
	score += servicePoints(lead.Service)
	score += urgencyPoints(kb, lead.Timeline)

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// TierFor maps a score to its quality tier.
func TierFor(score int) Tier {
	switch {
	case score >= 80:
		return TierPremium
	case score >= 60:
		return TierHigh
	case score >= 35:
		return TierMedium
	default:
		return TierLow
	}
}

func locationPoints(location string) int {
	if location == "" {
		return 0
	}
	lower := strings.ToLower(location)
	for _, town := range serviceArea {
		if strings.Contains(lower, town) {
			return 20
		}
	}
	for _, area := range region {
		if strings.Contains(lower, area) {
			return 12
		}
	}
	return 5
}

func sizePoints(kb *conversation.KnowledgeBase, band string) int {
	if band == "" {
		return 0
	}
	switch kb.SizeRank(band) {
	case 3:
		return 25
	case 2:
		return 20
	case 1:
		return 12
	default:
		return 5
	}
}

func budgetPoints(kb *conversation.KnowledgeBase, band string) int {
	if band == "" {
		return 0
	}
	switch kb.BudgetRank(band) {
	case 3:
		return 30
	case 2:
		return 22
	case 1:
		return 12
	default:
		return 5
	}
}

func servicePoints(service string) int {
	if service == "" {
		return 0
	}
	switch {
	case strings.Contains(service, "e-commerce"), strings.Contains(service, "cloud"), strings.Contains(service, "sicurezza"):
		return 15
	case strings.Contains(service, "siti"):
		return 10
	default:
		return 6
	}
}

func urgencyPoints(kb *conversation.KnowledgeBase, timeline string) int {
	if timeline == "" {
		return 0
	}
	if kb.IsUrgent(timeline) {
		return 10
	}
	return 4
}
