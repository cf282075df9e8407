package conversation

import "testing"

func TestBandRank(t *testing.T) {
	kb := DefaultKnowledgeBase()

	t.Run("budget", func(t *testing.T) {
		cases := []struct {
			value string
			want  int
		}{
			{"Meno di €5.000", 0},
			{"€5.000 - €15.000", 1},
			{"€30.000+", 3},
			{"€30.000+ ", 3},
			{"qualcosa", -1},
			{"", -1},
		}
		for _, tc := range cases {
			if got := kb.BudgetRank(tc.value); got != tc.want {
				t.Errorf("BudgetRank(%q) = %d, want %d", tc.value, got, tc.want)
			}
		}
	})

	t.Run("size", func(t *testing.T) {
		if got := kb.SizeRank("100+"); got != 3 {
			t.Errorf("SizeRank(100+) = %d", got)
		}
		if got := kb.SizeRank("10-49"); got != 1 {
			t.Errorf("SizeRank(10-49) = %d", got)
		}
	})
}

func TestMatchService(t *testing.T) {
	kb := DefaultKnowledgeBase()

	cases := []struct {
		text string
		id   string
	}{
		{"vorrei un sito web nuovo", "siti-web"},
		{"mi serve un sito per l'azienda", "siti-web"},
		{"apriamo un negozio online", "e-commerce"},
		{"migrazione cloud e microsoft 365", "cloud"},
		{"un firewall gestito per il GDPR", "sicurezza"},
	}
	for _, tc := range cases {
		svc, ok := kb.MatchService(tc.text)
		if !ok {
			t.Errorf("MatchService(%q): no match", tc.text)
			continue
		}
		if svc.ID != tc.id {
			t.Errorf("MatchService(%q) = %s, want %s", tc.text, svc.ID, tc.id)
		}
	}

	if _, ok := kb.MatchService("parliamo del meteo"); ok {
		t.Error("unexpected match for unrelated text")
	}
}

func TestSearchFAQ(t *testing.T) {
	kb := DefaultKnowledgeBase()

	entry, ok := kb.SearchFAQ("come funzionano i pagamenti e la fattura?")
	if !ok {
		t.Fatal("expected a FAQ match")
	}
	if entry.Question != "Come funzionano i pagamenti?" {
		t.Errorf("matched %q", entry.Question)
	}

	if _, ok := kb.SearchFAQ("frase completamente estranea"); ok {
		t.Error("unexpected FAQ match")
	}
}

func TestQualifyLead(t *testing.T) {
	kb := DefaultKnowledgeBase()

	cases := []struct {
		name string
		lead map[string]string
		want LeadPriority
	}{
		{"top budget", map[string]string{FieldBudget: "€30.000+"}, LeadHigh},
		{"ten employees", map[string]string{FieldCompanySize: "10-49"}, LeadHigh},
		{"urgent", map[string]string{FieldTimeline: "Entro 1 mese"}, LeadHigh},
		{"mid budget", map[string]string{FieldBudget: "€5.000 - €15.000"}, LeadMedium},
		{"nothing", map[string]string{}, LeadLow},
		{"tiny", map[string]string{FieldBudget: "Meno di €5.000", FieldCompanySize: "1-9"}, LeadLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := kb.QualifyLead(tc.lead); got != tc.want {
				t.Errorf("QualifyLead = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestIsUrgent(t *testing.T) {
	kb := DefaultKnowledgeBase()
	if !kb.IsUrgent("entro 1 mese") {
		t.Error("case-insensitive match expected")
	}
	if kb.IsUrgent("Entro 3 mesi") {
		t.Error("only the first option is urgent")
	}
	if kb.IsUrgent("") {
		t.Error("empty timeline is not urgent")
	}
}
