package emit

import (
	"log/slog"
)

// LogEmitter implements Emitter by writing events through a structured
// logger.
//
// Each event becomes one log record at Info level, with session, turn,
// step and all meta fields as attributes. The output format (text or
// JSON) is decided by the slog handler the logger was built with.
//
// Usage:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	emitter := emit.NewLogEmitter(logger)
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter creates a LogEmitter writing through logger.
// A nil logger falls back to slog.Default().
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit writes the event as a single structured log record.
//
// Events carrying an "error" meta key are logged at Warn level so they
// stand out in production logs without interrupting request handling.
func (l *LogEmitter) Emit(event Event) {
	attrs := make([]any, 0, 6+2*len(event.Meta))
	attrs = append(attrs,
		slog.String("session", event.SessionID),
		slog.Int("turn", event.Turn),
		slog.String("step", event.Step),
	)
	for k, v := range event.Meta {
		attrs = append(attrs, slog.Any(k, v))
	}

	if _, hasErr := event.Meta["error"]; hasErr {
		l.logger.Warn(event.Msg, attrs...)
		return
	}
	l.logger.Info(event.Msg, attrs...)
}
