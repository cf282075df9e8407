package conversation

import (
	"sort"
	"strings"
)

// IntentRule configures one recognizable intent: a set of trigger phrases
// and a base weight. Intent names double as flow step ids wherever a step
// with the same id exists.
type IntentRule struct {
	Name     string
	Weight   float64
	Triggers []string
}

// IntentMatch is a transient per-message recognition result. Confidence is
// in [0,1]; Matches counts how many trigger phrases were found.
type IntentMatch struct {
	Intent     string
	Confidence float64
	Matches    int
}

// Recognizer pattern-matches free text against the configured intent table.
type Recognizer struct {
	rules []IntentRule
}

// NewRecognizer builds a recognizer over the given rules. Configuration
// order is preserved and used to break confidence ties.
func NewRecognizer(rules []IntentRule) *Recognizer {
	return &Recognizer{rules: rules}
}

// DefaultIntentRules returns the intent table used by the assistant.
func DefaultIntentRules() []IntentRule {
	return []IntentRule{
		{
			Name:   string(StepGreeting),
			Weight: 0.9,
			Triggers: []string{
				"ciao", "buongiorno", "buonasera", "salve", "hey",
			},
		},
		{
			Name:   string(StepServiceInquiry),
			Weight: 0.85,
			Triggers: []string{
				"servizi", "sito web", "sito", "e-commerce", "ecommerce",
				"cloud", "sviluppo", "preventivo", "offrite", "realizzate",
				"sicurezza", "cybersecurity",
			},
		},
		{
			Name:   string(StepSupportRequest),
			Weight: 0.85,
			Triggers: []string{
				"problema", "assistenza", "supporto", "non funziona",
				"errore", "aiuto", "guasto", "bloccato",
			},
		},
		{
			Name:   string(StepFAQResponse),
			Weight: 0.7,
			Triggers: []string{
				"quanto costa", "quanto ci vuole", "tempi", "come funziona",
				"garanzia", "pagamento", "fattura",
			},
		},
		{
			Name:   string(StepGeneralInfo),
			Weight: 0.6,
			Triggers: []string{
				"chi siete", "dove siete", "orari", "contatti", "sede",
			},
		},
	}
}

// Recognize scores every configured intent against text.
//
// For each rule: matchScore sums len(trigger)/len(text) over every trigger
// found as a case-insensitive substring, and the confidence is
// weight * min(1, matchScore + 0.1*matchCount). Intents with no matches are
// omitted. The result is sorted by descending confidence; ties keep
// configuration order. An empty result means "no confident intent" and is
// not an error.
func (r *Recognizer) Recognize(text string) []IntentMatch {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}

	matches := make([]IntentMatch, 0, len(r.rules))
	for _, rule := range r.rules {
		var score float64
		count := 0
		for _, trigger := range rule.Triggers {
			if strings.Contains(lower, strings.ToLower(trigger)) {
				score += float64(len(trigger)) / float64(len(lower))
				count++
			}
		}
		if count == 0 {
			continue
		}
		confidence := score + 0.1*float64(count)
		if confidence > 1 {
			confidence = 1
		}
		matches = append(matches, IntentMatch{
			Intent:     rule.Name,
			Confidence: rule.Weight * confidence,
			Matches:    count,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}
