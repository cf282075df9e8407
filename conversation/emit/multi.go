package emit

// MultiEmitter fans every event out to a set of emitters, so logs and
// traces can be produced from the same event stream.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that forwards to all of the given
// emitters in order.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit forwards the event to every configured emitter.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
