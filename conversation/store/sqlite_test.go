package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/omniaweb/chatbot/conversation"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chatbot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := conversation.NewSession(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	sess.MessageCount = 4
	sess.SetLead(conversation.FieldCompanyName, "Verdi Impianti")
	sess.AddTurn(conversation.Turn{
		Role:      conversation.RoleUser,
		Text:      "ciao",
		Timestamp: time.Date(2025, 3, 10, 9, 1, 0, 0, time.UTC),
	})

	if err := s.Put(ctx, sess.ID, sess, 0); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("session not found")
	}
	if got.MessageCount != 4 {
		t.Errorf("message count = %d", got.MessageCount)
	}
	if got.Lead[conversation.FieldCompanyName] != "Verdi Impianti" {
		t.Errorf("lead = %q", got.Lead[conversation.FieldCompanyName])
	}
	if len(got.Turns) != 1 || got.Turns[0].Text != "ciao" {
		t.Errorf("turns = %+v", got.Turns)
	}

	t.Run("missing id yields nil, nil", func(t *testing.T) {
		got, err := s.Get(ctx, "no-such-session")
		if err != nil {
			t.Fatal(err)
		}
		if got != nil {
			t.Errorf("got %+v", got)
		}
	})
}

func TestSQLiteStoreUpsert(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := conversation.NewSession(time.Now())
	if err := s.Put(ctx, sess.ID, sess, 0); err != nil {
		t.Fatal(err)
	}

	sess.MessageCount = 11
	if err := s.Put(ctx, sess.ID, sess, 0); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(ctx, sess.ID)
	if got.MessageCount != 11 {
		t.Errorf("message count after upsert = %d", got.MessageCount)
	}
}

func TestSQLiteStoreTTL(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	sess := conversation.NewSession(now)
	if err := s.Put(ctx, sess.ID, sess, time.Hour); err != nil {
		t.Fatal(err)
	}

	now = now.Add(30 * time.Minute)
	if got, _ := s.Get(ctx, sess.ID); got == nil {
		t.Fatal("session expired early")
	}

	now = now.Add(31 * time.Minute)
	if got, _ := s.Get(ctx, sess.ID); got != nil {
		t.Error("session survived its TTL")
	}

	// The expired row is gone, not just hidden.
	if got, _ := s.Get(ctx, sess.ID); got != nil {
		t.Error("expired session reappeared")
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := conversation.NewSession(time.Now())
	if err := s.Put(ctx, sess.ID, sess, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get(ctx, sess.ID); got != nil {
		t.Error("session survived delete")
	}
}

func TestSQLiteStoreIncr(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	for want := int64(1); want <= 3; want++ {
		n, err := s.Incr(ctx, "ip:203.0.113.9", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Fatalf("incr = %d, want %d", n, want)
		}
	}

	t.Run("window reset", func(t *testing.T) {
		now = now.Add(61 * time.Minute)
		n, err := s.Incr(ctx, "ip:203.0.113.9", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("counter after window = %d", n)
		}
	})
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "cassandra"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
