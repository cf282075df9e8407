package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/lithammer/shortuuid/v4"

	"github.com/omniaweb/chatbot/conversation"
	"github.com/omniaweb/chatbot/conversation/ai"
	"github.com/omniaweb/chatbot/conversation/emit"
	"github.com/omniaweb/chatbot/conversation/notify"
)

type chatRequest struct {
	Action    string            `json:"action"`
	Message   string            `json:"message"`
	SessionID string            `json:"sessionId"`
	LeadData  map[string]string `json:"leadData"`
}

// emergencyFallbackText answers when a whole turn overruns its hard
// deadline, so the widget never spins forever.
const emergencyFallbackText = "Mi scuso per l'attesa! Sto avendo qualche rallentamento. " +
	"Per una risposta immediata chiamaci allo 039 2847 101 oppure riprova tra un istante."

// handleChat dispatches the widget's action verbs.
func (s *Server) handleChat(c *echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "invalid_request",
			"message": "Corpo della richiesta non valido.",
		})
	}

	switch req.Action {
	case "start":
		return s.handleStart(c, req)
	case "message":
		return s.handleMessage(c, req)
	case "email_handoff", "escalate":
		return s.handleEmailHandoff(c, req)
	case "update_data":
		return s.handleUpdateData(c, req)
	case "get_metrics":
		return s.handleGetMetrics(c, req)
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "invalid_action",
			"message": "Azione non riconosciuta.",
		})
	}
}

// loadOrCreate fetches the session, creating a fresh one when the id is
// absent, unknown or expired.
func (s *Server) loadOrCreate(ctx context.Context, id string) (*conversation.Session, error) {
	if id != "" {
		sess, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
	}
	return conversation.NewSession(s.now()), nil
}

func (s *Server) handleStart(c *echo.Context, req chatRequest) error {
	ctx := c.Request().Context()
	sess, err := s.loadOrCreate(ctx, req.SessionID)
	if err != nil {
		s.logger.Error("session load failed", "error", err)
		sess = conversation.NewSession(s.now())
	}

	reply := s.engine.Greeting(sess)
	sess.AddTurn(conversation.Turn{Role: conversation.RoleBot, Text: reply.Message, Timestamp: s.now()})

	if err := s.store.Put(ctx, sess.ID, sess, s.cfg.SessionTTL); err != nil {
		s.logger.Error("session save failed", "session", sess.ID, "error", err)
	}
	s.metrics.RecordTurn("start", false, 0)
	s.emitter.Emit(emit.Event{SessionID: sess.ID, Step: string(sess.CurrentStep), Msg: "session_start"})

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": sess.ID,
		"response":  reply.Message,
		"options":   reply.Options,
		"step":      string(reply.NextStep),
		"aiPowered": s.gen != nil,
	})
}

func (s *Server) handleMessage(c *echo.Context, req chatRequest) error {
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "invalid_request",
			"message": "Il campo message e' obbligatorio.",
		})
	}

	ctx := c.Request().Context()

	// Resolve the session before the deadline race, so even the
	// emergency fallback carries an id the widget can keep using.
	sess, err := s.loadOrCreate(ctx, req.SessionID)
	if err != nil {
		s.logger.Error("session load failed", "error", err)
		sess = conversation.NewSession(s.now())
	}

	done := make(chan map[string]interface{}, 1)
	go func() {
		done <- s.runTurn(ctx, req, sess)
	}()

	timer := time.NewTimer(s.cfg.ResponseTimeout)
	defer timer.Stop()

	select {
	case payload := <-done:
		return c.JSON(http.StatusOK, payload)
	case <-timer.C:
		s.logger.Warn("turn exceeded response deadline", "session", sess.ID)
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":   true,
			"sessionId": sess.ID,
			"response":  emergencyFallbackText,
			"options":   []string{"📞 Chiamaci: 039 2847 101", "Riprova"},
			"aiPowered": false,
		})
	}
}

// runTurn executes the full per-turn pipeline. Any panic in the
// pipeline is converted to a generic escalating message so the widget
// always receives a well-formed payload.
func (s *Server) runTurn(ctx context.Context, req chatRequest, sess *conversation.Session) (payload map[string]interface{}) {
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("turn pipeline panicked", "session", sess.ID, "panic", r)
			payload = map[string]interface{}{
				"success":   true,
				"sessionId": sess.ID,
				"response": "Si e' verificato un problema tecnico. " +
					"Ti metto in contatto con un nostro operatore.",
				"options":   []string{"📞 Chiamaci: 039 2847 101"},
				"escalate":  true,
				"aiPowered": false,
			}
		}
	}()

	sess.AddTurn(conversation.Turn{Role: conversation.RoleUser, Text: req.Message, Timestamp: start})

	intents := s.engine.Recognize(req.Message)
	dec := s.engine.EvaluateEscalation(req.Message, sess, intents)

	// Explicit escalations skip the provider call entirely.
	var aiReply *conversation.AIReply
	if s.gen != nil && !dec.Required {
		res, genErr := s.gen.Generate(ctx, req.Message, sess)
		switch {
		case errors.Is(genErr, ai.ErrTimeout):
			// scripted flow answers instead
		case genErr == nil:
			reply := res.Reply
			aiReply = &reply
		}
	}

	reply := s.engine.ProcessTurn(req.Message, sess, intents, dec, aiReply)

	elapsed := s.now().Sub(start).Milliseconds()
	sess.AddTurn(conversation.Turn{
		Role:           conversation.RoleBot,
		Text:           reply.Message,
		Timestamp:      s.now(),
		Cost:           reply.Cost,
		AIPowered:      reply.AIPowered,
		ResponseTimeMs: elapsed,
	})
	sess.RecordResponse(elapsed, reply.AIPowered)
	s.metrics.RecordTurn("message", reply.AIPowered, float64(elapsed))

	if reply.Escalate {
		s.dispatchEscalation(ctx, sess, reply)
	}

	if err := s.store.Put(ctx, sess.ID, sess, s.cfg.SessionTTL); err != nil {
		s.logger.Error("session save failed", "session", sess.ID, "error", err)
	}

	s.emitter.Emit(emit.Event{
		SessionID: sess.ID,
		Turn:      sess.MessageCount,
		Step:      string(reply.NextStep),
		Msg:       "turn_complete",
		Meta: map[string]interface{}{
			"intent":      reply.Intent,
			"ai_powered":  reply.AIPowered,
			"duration_ms": elapsed,
		},
	})

	return map[string]interface{}{
		"success":        true,
		"sessionId":      sess.ID,
		"response":       reply.Message,
		"options":        reply.Options,
		"step":           string(reply.NextStep),
		"intent":         reply.Intent,
		"confidence":     reply.Confidence,
		"aiPowered":      reply.AIPowered,
		"responseTime":   elapsed,
		"escalate":       reply.Escalate,
		"escalationType": string(reply.EscalationType),
		"cached":         reply.Cached,
		"cost":           reply.Cost,
	}
}

// dispatchEscalation notifies the sales team once per session. Delivery
// failures are logged and retried on the next escalating turn.
func (s *Server) dispatchEscalation(ctx context.Context, sess *conversation.Session, reply conversation.Reply) {
	s.metrics.RecordEscalation(reply.EscalationType)
	if s.notify == nil || sess.Escalation == nil || sess.Escalation.Notified {
		return
	}
	res := s.notify.Notify(ctx, notify.LeadFromSession(sess))
	sess.Escalation.Notified = res.Success()
	s.emitter.Emit(emit.Event{
		SessionID: sess.ID,
		Turn:      sess.MessageCount,
		Step:      string(sess.CurrentStep),
		Msg:       "escalation",
		Meta: map[string]interface{}{
			"escalation_type": string(reply.EscalationType),
			"lead_score":      res.Score,
			"lead_tier":       string(res.Tier),
			"notified":        res.Success(),
		},
	})
}

func (s *Server) handleEmailHandoff(c *echo.Context, req chatRequest) error {
	ctx := c.Request().Context()

	sess, err := s.store.Get(ctx, req.SessionID)
	if err != nil || sess == nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "unknown_session",
			"message": "Sessione non trovata o scaduta.",
		})
	}

	for field, value := range req.LeadData {
		sess.SetLead(field, value)
	}

	if s.notify == nil {
		return s.handoffFailed(c, "notifiche non configurate")
	}
	if err := s.notify.SendLeadEmail(ctx, notify.LeadFromSession(sess)); err != nil {
		s.logger.Error("email handoff failed", "session", sess.ID, "error", err)
		return s.handoffFailed(c, err.Error())
	}

	// Handoff complete: the conversation continues with a human.
	if err := s.store.Delete(ctx, sess.ID); err != nil {
		s.logger.Warn("session cleanup failed", "session", sess.ID, "error", err)
	}
	s.metrics.RecordTurn("email_handoff", false, 0)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Perfetto! Un nostro consulente ti rispondera' al piu' presto.",
		"ticketId": "OMW-" + shortuuid.New(),
		"expectedResponseTime": "entro 4 ore lavorative",
	})
}

func (s *Server) handoffFailed(c *echo.Context, detail string) error {
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"success":        false,
		"error":          "handoff_failed",
		"message":        "Non sono riuscito a inoltrare la richiesta. Chiamaci allo 039 2847 101.",
		"fallbackAction": "phone_contact",
		"detail":         detail,
	})
}

func (s *Server) handleUpdateData(c *echo.Context, req chatRequest) error {
	ctx := c.Request().Context()

	sess, err := s.store.Get(ctx, req.SessionID)
	if err != nil || sess == nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "unknown_session",
			"message": "Sessione non trovata o scaduta.",
		})
	}

	for field, value := range req.LeadData {
		sess.SetLead(field, value)
	}
	if err := s.store.Put(ctx, sess.ID, sess, s.cfg.SessionTTL); err != nil {
		s.logger.Error("session save failed", "session", sess.ID, "error", err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": sess.ID,
		"leadData":  sess.Lead,
	})
}

func (s *Server) handleGetMetrics(c *echo.Context, req chatRequest) error {
	ctx := c.Request().Context()

	sess, err := s.store.Get(ctx, req.SessionID)
	if err != nil || sess == nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "unknown_session",
			"message": "Sessione non trovata o scaduta.",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":             true,
		"sessionId":           sess.ID,
		"messageCount":        sess.MessageCount,
		"totalCost":           sess.TotalCost,
		"averageResponseTime": sess.AverageResponseMs(),
		"aiResponses":         sess.AIResponses,
		"escalated":           sess.EscalationRequested,
	})
}
