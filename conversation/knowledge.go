package conversation

import "strings"

// Service is one entry of the service catalog.
type Service struct {
	ID          string
	Name        string
	Description string
	Offerings   []string
	PriceBand   string

	// Keywords are the free-text fragments MatchService looks for,
	// covering the singular/plural variants users actually type.
	Keywords []string
}

// FAQEntry is a canned answer matched by keyword overlap.
type FAQEntry struct {
	Question string
	Answer   string
	Keywords []string
}

// LeadPriority classifies a lead during the qualification step.
type LeadPriority string

const (
	LeadHigh   LeadPriority = "high"
	LeadMedium LeadPriority = "medium"
	LeadLow    LeadPriority = "low"
)

// KnowledgeBase is the static catalog backing the flow engine: services,
// pricing bands, FAQ and lead-qualification thresholds. It is immutable at
// runtime and shared across requests.
type KnowledgeBase struct {
	Services []Service
	FAQ      []FAQEntry

	// Ordered low to top. Band rank is the index in these slices.
	BudgetBands []string
	SizeBands   []string

	// UrgencyOptions mirror the widget's timeline choices; the first one is
	// the "urgent" option that marks a lead as high value.
	UrgencyOptions []string

	// HumanTriggers are the phrases that force an immediate human handoff.
	HumanTriggers []string
}

// DefaultKnowledgeBase returns the built-in Omniaweb catalog.
func DefaultKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		Services: []Service{
			{
				ID:          "siti-web",
				Name:        "Sviluppo Siti Web",
				Description: "Progettiamo e realizziamo siti vetrina e portali aziendali su misura, ottimizzati per SEO e mobile.",
				Offerings:   []string{"Siti vetrina", "Portali aziendali", "Landing page", "Restyling"},
				PriceBand:   "€1.500 - €8.000",
				Keywords:    []string{"sito", "siti", "sito web", "landing", "portale", "restyling"},
			},
			{
				ID:          "e-commerce",
				Name:        "E-commerce",
				Description: "Negozi online completi di catalogo, pagamenti e integrazione con il gestionale aziendale.",
				Offerings:   []string{"WooCommerce", "Shopify", "Integrazioni gestionali", "Portali B2B"},
				PriceBand:   "€5.000 - €25.000",
				Keywords:    []string{"e-commerce", "ecommerce", "negozio online", "shop", "vendere online"},
			},
			{
				ID:          "assistenza",
				Name:        "Assistenza Sistemistica",
				Description: "Help desk, manutenzione di server e postazioni, backup e monitoraggio proattivo dell'infrastruttura.",
				Offerings:   []string{"Help desk", "Manutenzione server", "Backup e disaster recovery", "Monitoraggio"},
				PriceBand:   "da €250/mese",
				Keywords:    []string{"assistenza", "help desk", "manutenzione", "backup", "server"},
			},
			{
				ID:          "cloud",
				Name:        "Cloud e Infrastrutture",
				Description: "Migrazione al cloud, Microsoft 365, virtualizzazione e centralini VoIP per la tua azienda.",
				Offerings:   []string{"Migrazione cloud", "Microsoft 365", "Virtualizzazione", "VoIP"},
				PriceBand:   "€3.000 - €20.000",
				Keywords:    []string{"cloud", "microsoft 365", "voip", "virtualizzazione", "centralino"},
			},
			{
				ID:          "sicurezza",
				Name:        "Cybersecurity",
				Description: "Vulnerability assessment, firewall gestiti, formazione del personale e adeguamento GDPR.",
				Offerings:   []string{"Vulnerability assessment", "Firewall gestiti", "Formazione", "Adeguamento GDPR"},
				PriceBand:   "€2.500 - €15.000",
				Keywords:    []string{"sicurezza", "cybersecurity", "firewall", "gdpr", "vulnerability"},
			},
		},
		FAQ: []FAQEntry{
			{
				Question: "Quanto tempo serve per realizzare un sito web?",
				Answer:   "Un sito vetrina richiede in media 4-6 settimane, un e-commerce 8-12 settimane dalla conferma dei contenuti.",
				Keywords: []string{"tempo", "tempi", "quanto ci vuole", "settimane", "durata", "consegna"},
			},
			{
				Question: "Offrite assistenza dopo la consegna?",
				Answer:   "Sì, tutti i progetti includono 3 mesi di assistenza. Offriamo poi contratti di manutenzione annuali.",
				Keywords: []string{"assistenza", "manutenzione", "dopo", "garanzia", "supporto"},
			},
			{
				Question: "Come funzionano i pagamenti?",
				Answer:   "Lavoriamo con un acconto del 30% alla conferma, saldo alla consegna. Per i contratti continuativi la fatturazione è mensile.",
				Keywords: []string{"pagamento", "pagamenti", "fattura", "acconto", "rate"},
			},
			{
				Question: "Fate sopralluoghi in azienda?",
				Answer:   "Per i progetti infrastrutturali sì: il primo sopralluogo in Lombardia è sempre gratuito.",
				Keywords: []string{"sopralluogo", "sede", "venite", "di persona"},
			},
			{
				Question: "Dove si trova la vostra sede?",
				Answer:   "Siamo a Monza, in via Manzoni 24. Riceviamo su appuntamento dal lunedì al venerdì, 9:00-18:00.",
				Keywords: []string{"dove", "sede", "orari", "indirizzo", "monza"},
			},
		},
		BudgetBands: []string{
			"Meno di €5.000",
			"€5.000 - €15.000",
			"€15.000 - €30.000",
			"€30.000+",
		},
		SizeBands: []string{"1-9", "10-49", "50-99", "100+"},
		UrgencyOptions: []string{
			"Entro 1 mese",
			"Entro 3 mesi",
			"Entro 6 mesi",
			"Da valutare",
		},
		HumanTriggers: []string{
			"operatore",
			"voglio parlare con",
			"persona reale",
			"essere umano",
			"un umano",
			"assistenza umana",
			"chiamatemi",
			"parlare con qualcuno",
		},
	}
}

// ServiceByID looks up a catalog entry by id or, failing that, by a
// case-insensitive match on the service name.
func (kb *KnowledgeBase) ServiceByID(id string) (Service, bool) {
	needle := strings.ToLower(strings.TrimSpace(id))
	if needle == "" {
		return Service{}, false
	}
	for _, svc := range kb.Services {
		if svc.ID == needle || strings.ToLower(svc.Name) == needle {
			return svc, true
		}
	}
	return Service{}, false
}

// MatchService scans free text for a catalog entry, matching on id, name
// and the per-service keyword list. Used when the user types a service
// instead of picking an option.
func (kb *KnowledgeBase) MatchService(text string) (Service, bool) {
	lower := strings.ToLower(text)
	for _, svc := range kb.Services {
		if strings.Contains(lower, strings.ReplaceAll(svc.ID, "-", " ")) ||
			strings.Contains(lower, svc.ID) ||
			strings.Contains(lower, strings.ToLower(svc.Name)) {
			return svc, true
		}
	}
	for _, svc := range kb.Services {
		for _, kw := range svc.Keywords {
			if strings.Contains(lower, kw) {
				return svc, true
			}
		}
	}
	return Service{}, false
}

// SearchFAQ returns the FAQ entry with the highest keyword overlap against
// text, or false when nothing matches at all.
func (kb *KnowledgeBase) SearchFAQ(text string) (FAQEntry, bool) {
	lower := strings.ToLower(text)
	best := -1
	bestScore := 0
	for i, entry := range kb.FAQ {
		score := 0
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return FAQEntry{}, false
	}
	return kb.FAQ[best], true
}

// BudgetRank returns the index of a budget band, or -1 for unknown values.
func (kb *KnowledgeBase) BudgetRank(band string) int {
	return bandRank(kb.BudgetBands, band)
}

// SizeRank returns the index of a company-size band, or -1.
func (kb *KnowledgeBase) SizeRank(band string) int {
	return bandRank(kb.SizeBands, band)
}

// IsUrgent reports whether the declared timeline is the "within one month"
// option.
func (kb *KnowledgeBase) IsUrgent(timeline string) bool {
	if len(kb.UrgencyOptions) == 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(timeline), kb.UrgencyOptions[0])
}

// QualifyLead classifies collected lead fields for the lead_qualification
// step. High when the budget is in the top band, the company has 10 or more
// employees, or the timeline is urgent; medium when the budget clears the
// mid threshold; low otherwise.
func (kb *KnowledgeBase) QualifyLead(lead map[string]string) LeadPriority {
	budget := kb.BudgetRank(lead[FieldBudget])
	size := kb.SizeRank(lead[FieldCompanySize])
	urgent := kb.IsUrgent(lead[FieldTimeline]) || kb.IsUrgent(lead[FieldUrgency])

	switch {
	case budget == len(kb.BudgetBands)-1 || size >= 1 || urgent:
		return LeadHigh
	case budget >= 1:
		return LeadMedium
	default:
		return LeadLow
	}
}

func bandRank(bands []string, value string) int {
	needle := strings.ToLower(strings.TrimSpace(value))
	if needle == "" {
		return -1
	}
	for i, band := range bands {
		if strings.ToLower(band) == needle {
			return i
		}
	}
	// Accept shorthand values from the widget ("€30.000+" vs the full label).
	for i, band := range bands {
		if strings.Contains(strings.ToLower(band), needle) || strings.Contains(needle, strings.ToLower(band)) {
			return i
		}
	}
	return -1
}
