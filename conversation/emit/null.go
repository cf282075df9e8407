package emit

// NullEmitter implements Emitter by discarding all events.
//
// This is a no-op emitter for deployments where event logging is not
// desired and for tests that do not capture events. It is safe for
// concurrent use and has zero overhead.
type NullEmitter struct{}

// NewNullEmitter creates a NullEmitter that discards all events.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event without any processing.
func (n *NullEmitter) Emit(event Event) {}
