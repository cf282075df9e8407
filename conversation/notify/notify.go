package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/omniaweb/chatbot/conversation"
)

// Result reports both delivery paths of a dispatched lead. The paths
// are independent: the webhook failing never blocks the email and
// vice versa.
type Result struct {
	WebhookSent   bool
	WebhookDetail string
	EmailSent     bool
	EmailDetail   string

	Score int
	Tier  Tier
}

// Success is true when at least one path delivered the lead.
func (r Result) Success() bool {
	return r.WebhookSent || r.EmailSent
}

// Dispatcher posts escalated leads to the sales team.
//
// Notify never returns an error: delivery failures are reported in
// the Result and logged, because a lost notification must not fail
// the chat turn that triggered it.
type Dispatcher struct {
	kb         *conversation.KnowledgeBase
	webhookURL string
	emailURL   string
	client     *http.Client
	logger     *slog.Logger
}

// NewDispatcher configures a dispatcher. Either URL may be empty, in
// which case that path is skipped and reported as not sent.
func NewDispatcher(kb *conversation.KnowledgeBase, webhookURL, emailURL string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		kb:         kb,
		webhookURL: webhookURL,
		emailURL:   emailURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Notify scores the lead and pushes it over both delivery paths.
func (d *Dispatcher) Notify(ctx context.Context, lead Lead) Result {
	score := Score(d.kb, lead)
	res := Result{Score: score, Tier: TierFor(score)}

	if d.webhookURL == "" {
		res.WebhookDetail = "webhook not configured"
	} else if err := d.postJSON(ctx, d.webhookURL, d.messageCard(lead, score, res.Tier)); err != nil {
		res.WebhookDetail = err.Error()
		d.logger.Warn("lead webhook delivery failed", "session", lead.SessionID, "error", err)
	} else {
		res.WebhookSent = true
		res.WebhookDetail = "delivered"
	}

	if d.emailURL == "" {
		res.EmailDetail = "email endpoint not configured"
	} else if err := d.SendLeadEmail(ctx, lead); err != nil {
		res.EmailDetail = err.Error()
		d.logger.Warn("lead email delivery failed", "session", lead.SessionID, "error", err)
	} else {
		res.EmailSent = true
		res.EmailDetail = "delivered"
	}

	return res
}

// SendLeadEmail formats the lead for the downstream email endpoint and
// posts it. Unlike Notify, the error is surfaced: the email handoff
// action reports failures to the caller.
func (d *Dispatcher) SendLeadEmail(ctx context.Context, lead Lead) error {
	if d.emailURL == "" {
		return fmt.Errorf("email endpoint not configured")
	}
	score := Score(d.kb, lead)
	payload := map[string]interface{}{
		"subject":   fmt.Sprintf("Nuovo lead dal chatbot: %s (%s)", orDash(lead.CompanyName), TierFor(score)),
		"sessionId": lead.SessionID,
		"score":     score,
		"tier":      string(TierFor(score)),
		"company":   lead.CompanyName,
		"sector":    lead.Sector,
		"location":  lead.Location,
		"size":      lead.CompanySize,
		"budget":    lead.Budget,
		"timeline":  lead.Timeline,
		"service":   lead.Service,
		"problem":   lead.Problem,
		"contact":   lead.ContactName,
		"email":     lead.Email,
		"phone":     lead.Phone,
	}
	return d.postJSON(ctx, d.emailURL, payload)
}

// messageCard builds the legacy Teams MessageCard payload.
func (d *Dispatcher) messageCard(lead Lead, score int, tier Tier) map[string]interface{} {
	facts := []map[string]string{
		{"name": "Azienda", "value": orDash(lead.CompanyName)},
		{"name": "Settore", "value": orDash(lead.Sector)},
		{"name": "Zona", "value": orDash(lead.Location)},
		{"name": "Dipendenti", "value": orDash(lead.CompanySize)},
		{"name": "Budget", "value": orDash(lead.Budget)},
		{"name": "Tempistiche", "value": orDash(lead.Timeline)},
		{"name": "Servizio", "value": orDash(lead.Service)},
		{"name": "Referente", "value": orDash(lead.ContactName)},
		{"name": "Email", "value": orDash(lead.Email)},
		{"name": "Telefono", "value": orDash(lead.Phone)},
		{"name": "Punteggio", "value": fmt.Sprintf("%d/100 (%s)", score, tier)},
		{"name": "Messaggi scambiati", "value": fmt.Sprintf("%d", lead.MessageCount)},
	}

	actions := []map[string]interface{}{}
	if lead.Phone != "" {
		actions = append(actions, map[string]interface{}{
			"@type":   "OpenUri",
			"name":    "Chiama",
			"targets": []map[string]string{{"os": "default", "uri": "tel:" + lead.Phone}},
		})
	}
	if lead.Email != "" {
		actions = append(actions, map[string]interface{}{
			"@type":   "OpenUri",
			"name":    "Scrivi email",
			"targets": []map[string]string{{"os": "default", "uri": "mailto:" + lead.Email}},
		})
	}

	return map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "https://schema.org/extensions",
		"themeColor": themeColor(tier),
		"summary":    "Nuovo lead dal chatbot",
		"title":      fmt.Sprintf("🔥 Lead %s dal chatbot (%d/100)", tier, score),
		"sections": []map[string]interface{}{
			{
				"facts": facts,
				"text":  orDash(lead.Problem),
			},
		},
		"potentialAction": actions,
	}
}

func themeColor(tier Tier) string {
	switch tier {
	case TierPremium:
		return "d63333"
	case TierHigh:
		return "e8a33d"
	case TierMedium:
		return "3d8fe8"
	default:
		return "8a8a8a"
	}
}

func (d *Dispatcher) postJSON(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivery failed: status %d", resp.StatusCode)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
