package emit

// Event represents an observability event emitted while handling a chat turn.
//
// Events provide insight into conversation behavior:
//   - Turn start/complete and step transitions
//   - Escalation decisions
//   - AI calls, cache hits, rate limiting
//   - Errors and fallbacks
//
// Events are emitted to an Emitter which can log to stdout/stderr,
// send to OpenTelemetry, or discard them entirely.
type Event struct {
	// SessionID identifies the conversation that emitted this event.
	SessionID string

	// Turn is the sequential user-message number in the conversation
	// (1-indexed). Zero for session-level events (start, expire).
	Turn int

	// Step is the conversation step active when the event fired.
	// Empty string for session-level events.
	Step string

	// Msg is a short machine-friendly description of the event,
	// e.g. "turn_start", "escalation", "ai_cache_hit".
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": Handling duration in milliseconds
	//   - "error": Error details
	//   - "intent": Recognized intent name
	//   - "cost_usd": Cost of an AI call
	//   - "escalation_type": Escalation type when Msg is "escalation"
	Meta map[string]interface{}
}
