package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/omniaweb/chatbot/conversation"
)

// MySQLStore implements SessionStore backed by MySQL.
//
// Intended for deployments that already run MySQL and do not want an
// extra Redis instance. Sessions are stored as JSON documents and
// expiry is enforced lazily on access, same as the SQLite driver.
//
// DSN format follows go-sql-driver/mysql:
//
//	user:password@tcp(localhost:3306)/chatbot?parseTime=true
//
// Credentials should come from the environment, never from source.
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore connects to MySQL, verifies the connection and
// prepares the schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if dsn == "" {
		return nil, ErrInvalidConfig
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	store := &MySQLStore{db: db, now: time.Now}
	if err := store.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	sessionsTable := `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id VARCHAR(64) PRIMARY KEY,
			data JSON NOT NULL,
			expires_at BIGINT NOT NULL DEFAULT 0
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, sessionsTable); err != nil {
		return fmt.Errorf("failed to create chat_sessions table: %w", err)
	}

	countersTable := `
		CREATE TABLE IF NOT EXISTS chat_counters (
			counter_key VARCHAR(128) PRIMARY KEY,
			n BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, countersTable); err != nil {
		return fmt.Errorf("failed to create chat_counters table: %w", err)
	}
	return nil
}

// Get implements SessionStore.
func (m *MySQLStore) Get(ctx context.Context, id string) (*conversation.Session, error) {
	var (
		data      string
		expiresAt int64
	)
	err := m.db.QueryRowContext(ctx,
		"SELECT data, expires_at FROM chat_sessions WHERE id = ?", id,
	).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if expiresAt > 0 && m.now().Unix() >= expiresAt {
		_, _ = m.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = ?", id)
		return nil, nil
	}

	var sess conversation.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

// Put implements SessionStore.
func (m *MySQLStore) Put(ctx context.Context, id string, sess *conversation.Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	var expiresAt int64
	if ttl > 0 {
		expiresAt = m.now().Add(ttl).Unix()
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, data, expires_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE data = VALUES(data), expires_at = VALUES(expires_at)
	`, id, string(data), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Delete implements SessionStore.
func (m *MySQLStore) Delete(ctx context.Context, id string) error {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Incr implements SessionStore.
func (m *MySQLStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := m.now()
	var (
		n         int64
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT n, expires_at FROM chat_counters WHERE counter_key = ? FOR UPDATE", key,
	).Scan(&n, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		n = 0
		expiresAt = now.Add(ttl).Unix()
	case err != nil:
		return 0, fmt.Errorf("failed to load counter: %w", err)
	case now.Unix() >= expiresAt:
		n = 0
		expiresAt = now.Add(ttl).Unix()
	}
	n++

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_counters (counter_key, n, expires_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE n = VALUES(n), expires_at = VALUES(expires_at)
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
func (m *MySQLStore) Close() error {
	return m.db.Close()
}
