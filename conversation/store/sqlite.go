package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/omniaweb/chatbot/conversation"
)

// SQLiteStore implements SessionStore using a local SQLite database.
//
// Intended for single-instance deployments that want sessions to
// survive restarts without running Redis. Expiry is enforced lazily:
// rows past their deadline are treated as missing and overwritten or
// swept on access.
//
// For testing, use ":memory:" as the path.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and prepares
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, ErrInvalidConfig
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// SetClock overrides the store's time source for tests.
func (s *SQLiteStore) SetClock(now func() time.Time) { s.now = now }

func (s *SQLiteStore) createTables(ctx context.Context) error {
	sessionsTable := `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)
	`
	if _, err := s.db.ExecContext(ctx, sessionsTable); err != nil {
		return fmt.Errorf("failed to create chat_sessions table: %w", err)
	}

	countersTable := `
		CREATE TABLE IF NOT EXISTS chat_counters (
			key TEXT PRIMARY KEY,
			n INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, countersTable); err != nil {
		return fmt.Errorf("failed to create chat_counters table: %w", err)
	}
	return nil
}

// Get implements SessionStore.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*conversation.Session, error) {
	var (
		data      string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT data, expires_at FROM chat_sessions WHERE id = ?", id,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if expiresAt > 0 && s.now().Unix() >= expiresAt {
		_, _ = s.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = ?", id)
		return nil, nil
	}

	var sess conversation.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// Put implements SessionStore.
func (s *SQLiteStore) Put(ctx context.Context, id string, sess *conversation.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).Unix()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`, id, string(data), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Delete implements SessionStore.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Incr implements SessionStore.
func (s *SQLiteStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	var (
		n         int64
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT n, expires_at FROM chat_counters WHERE key = ?", key,
	).Scan(&n, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		n = 0
		expiresAt = now.Add(ttl).Unix()
	case err != nil:
		return 0, fmt.Errorf("failed to load counter: %w", err)
	case now.Unix() >= expiresAt:
		// window elapsed, start a new one
		n = 0
		expiresAt = now.Add(ttl).Unix()
	}
	n++

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_counters (key, n, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET n = excluded.n, expires_at = excluded.expires_at
	`, key, n, expiresAt)
	if err != nil {
		return 0, fmt.Errorf("failed to store counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit counter: %w", err)
	}
	return n, nil
}

// Close implements SessionStore.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
