package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniaweb/chatbot/conversation"
)

func TestScore(t *testing.T) {
	kb := conversation.DefaultKnowledgeBase()

	tests := []struct {
		name string
		lead Lead
		want int
	}{
		{
			name: "maximum signals hit the ceiling",
			lead: Lead{
				Location:    "Monza",
				CompanySize: "100+",
				Budget:      "€30.000+",
				Service:     "e-commerce",
				Timeline:    "Entro 1 mese",
			},
			want: 100,
		},
		{
			name: "regional mid-band lead",
			lead: Lead{
				Location:    "Milano",
				CompanySize: "10-49",
				Budget:      "€5.000 - €15.000",
				Service:     "siti-web",
				Timeline:    "Entro 6 mesi",
			},
			want: 12 + 12 + 12 + 10 + 4,
		},
		{
			name: "out of area still counts a little",
			lead: Lead{Location: "Roma"},
			want: 5,
		},
		{
			name: "empty lead scores zero",
			lead: Lead{},
			want: 0,
		},
		{
			name: "service area town matched case-insensitively",
			lead: Lead{Location: "VIMERCATE (MB)"},
			want: 20,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(kb, tt.lead))
		})
	}

	t.Run("deterministic", func(t *testing.T) {
		lead := Lead{Location: "Lissone", CompanySize: "50-99", Budget: "€15.000 - €30.000", Service: "cloud", Timeline: "Entro 1 mese"}
		first := Score(kb, lead)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, Score(kb, lead))
		}
	})
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score int
		want  Tier
	}{
		{100, TierPremium},
		{80, TierPremium},
		{79, TierHigh},
		{60, TierHigh},
		{59, TierMedium},
		{35, TierMedium},
		{34, TierLow},
		{0, TierLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.score), "score %d", tt.score)
	}
}

func TestLeadFromSession(t *testing.T) {
	sess := conversation.NewSession(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	sess.MessageCount = 8
	sess.TotalCost = 0.12
	sess.SetLead(conversation.FieldCompanyName, "Ferrari Meccanica")
	sess.SetLead(conversation.FieldLocation, "Seregno")
	sess.SetLead(conversation.FieldUrgency, "Entro 1 mese")
	sess.Escalation = &conversation.EscalationRecord{
		Type:     conversation.EscalationHighValueLead,
		Priority: conversation.PriorityHigh,
	}

	lead := LeadFromSession(sess)
	require.Equal(t, sess.ID, lead.SessionID)
	assert.Equal(t, "Ferrari Meccanica", lead.CompanyName)
	assert.Equal(t, "Seregno", lead.Location)
	assert.Equal(t, 8, lead.MessageCount)
	assert.Equal(t, 0.12, lead.TotalCost)
	assert.Equal(t, conversation.EscalationHighValueLead, lead.EscalationType)
	assert.Equal(t, conversation.PriorityHigh, lead.Priority)

	// The support flow records urgency instead of a project timeline.
	assert.Equal(t, "Entro 1 mese", lead.Timeline)

	t.Run("explicit timeline wins over urgency", func(t *testing.T) {
		sess.SetLead(conversation.FieldTimeline, "Entro 3 mesi")
		assert.Equal(t, "Entro 3 mesi", LeadFromSession(sess).Timeline)
	})
}
