package emit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func testEvent(meta map[string]interface{}) Event {
	return Event{
		SessionID: "sess-42",
		Turn:      3,
		Step:      "service_inquiry",
		Msg:       "turn_complete",
		Meta:      meta,
	}
}

func TestLogEmitter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	NewLogEmitter(logger).Emit(testEvent(map[string]interface{}{
		"intent": "service_inquiry",
		"cost":   0.002,
	}))

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log record is not JSON: %v", err)
	}
	if record["msg"] != "turn_complete" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["level"] != "INFO" {
		t.Errorf("level = %v", record["level"])
	}
	if record["session"] != "sess-42" {
		t.Errorf("session = %v", record["session"])
	}
	if record["turn"] != float64(3) {
		t.Errorf("turn = %v", record["turn"])
	}
	if record["intent"] != "service_inquiry" {
		t.Errorf("intent = %v", record["intent"])
	}
}

func TestLogEmitterErrorMetaWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	NewLogEmitter(logger).Emit(testEvent(map[string]interface{}{
		"error": "provider unavailable",
	}))

	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Errorf("expected WARN record, got %s", buf.String())
	}
}

func TestMultiEmitter(t *testing.T) {
	var first, second []Event
	m := NewMultiEmitter(
		emitterFunc(func(e Event) { first = append(first, e) }),
		NewNullEmitter(),
		emitterFunc(func(e Event) { second = append(second, e) }),
	)

	m.Emit(testEvent(nil))
	m.Emit(testEvent(nil))

	if len(first) != 2 || len(second) != 2 {
		t.Errorf("fan-out counts = %d, %d", len(first), len(second))
	}
	if first[0].SessionID != "sess-42" {
		t.Errorf("session = %s", first[0].SessionID)
	}
}

type emitterFunc func(Event)

func (f emitterFunc) Emit(e Event) { f(e) }
