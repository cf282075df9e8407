package store

import (
	"context"
	"testing"
	"time"

	"github.com/omniaweb/chatbot/conversation"
)

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	sess := conversation.NewSession(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	sess.SetLead(conversation.FieldCompanyName, "Bianchi SRL")
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
	if got.Lead[conversation.FieldCompanyName] != "Bianchi SRL" {
		t.Errorf("lead = %q", got.Lead[conversation.FieldCompanyName])
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

func TestMemoryStoreIsolation(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	sess := conversation.NewSession(time.Now())
	if err := s.Put(ctx, sess.ID, sess, 0); err != nil {
		t.Fatal(err)
	}

	// Mutating the original after Put must not leak into the store.
	sess.MessageCount = 99
	sess.SetLead(conversation.FieldCompanyName, "mutated")

	got, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageCount != 0 {
		t.Errorf("message count = %d", got.MessageCount)
	}
	if got.Lead[conversation.FieldCompanyName] != "" {
		t.Errorf("lead leaked: %q", got.Lead[conversation.FieldCompanyName])
	}

	// And mutating a returned copy must not change a later read.
	got.MessageCount = 7
	again, _ := s.Get(ctx, sess.ID)
	if again.MessageCount != 0 {
		t.Errorf("returned copy shared storage: count = %d", again.MessageCount)
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	sess := conversation.NewSession(now)
	if err := s.Put(ctx, sess.ID, sess, time.Hour); err != nil {
		t.Fatal(err)
	}

	now = now.Add(59 * time.Minute)
	if got, _ := s.Get(ctx, sess.ID); got == nil {
		t.Fatal("session expired early")
	}

	now = now.Add(2 * time.Minute)
	if got, _ := s.Get(ctx, sess.ID); got != nil {
		t.Error("session survived its TTL")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
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

	// Deleting an unknown id is not an error.
	if err := s.Delete(ctx, "no-such-session"); err != nil {
		t.Errorf("delete unknown: %v", err)
	}
}

func TestMemoryStoreIncr(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
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

	t.Run("independent keys", func(t *testing.T) {
		n, _ := s.Incr(ctx, "ip:198.51.100.4", time.Hour)
		if n != 1 {
			t.Errorf("fresh key counter = %d", n)
		}
	})

	t.Run("window reset", func(t *testing.T) {
		now = now.Add(61 * time.Minute)
		n, _ := s.Incr(ctx, "ip:203.0.113.9", time.Hour)
		if n != 1 {
			t.Errorf("counter after window = %d", n)
		}
	})
}
