package model

import (
	"context"
	"sync"
	"time"
)

// MockChatModel is a test implementation of ChatModel.
//
// It returns configured responses in order (repeating the last one when
// exhausted), optionally injects an error or an artificial delay, and
// records every call for assertions. Thread-safe.
type MockChatModel struct {
	// Responses are returned in order; the last one repeats.
	Responses []ChatOut

	// Err, if set, is returned instead of a response.
	Err error

	// Delay is slept (context-aware) before answering; used to exercise
	// timeout fallbacks.
	Delay time.Duration

	// Calls records the messages of every invocation.
	Calls [][]Message

	mu        sync.Mutex
	callIndex int
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ChatOut{}, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, messages)

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{Text: "ok"}, nil
	}
	out := m.Responses[m.callIndex]
	if m.callIndex < len(m.Responses)-1 {
		m.callIndex++
	}
	return out, nil
}

// CallCount returns how many times Chat was invoked.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
