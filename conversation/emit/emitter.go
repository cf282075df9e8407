package emit

// Emitter receives and processes observability events from conversation
// handling.
//
// Implementations should be:
//   - Non-blocking: Avoid slowing down request handling
//   - Thread-safe: May be called concurrently from multiple requests
//   - Resilient: Handle backend failures gracefully
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit should not panic and should not block request handling.
	// Errors should be logged internally.
	Emit(event Event)
}
