// Package store provides pluggable session persistence backends.
//
// Four drivers are supported: an in-memory map for development and
// tests, Redis for multi-instance deployments, and SQLite/MySQL for
// installations that already run a relational database. All drivers
// share the same interface and store sessions as JSON documents, so
// the conversation layer never depends on a specific backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/omniaweb/chatbot/conversation"
)

// Sentinel errors returned by store constructors.
var (
	// ErrUnknownDriver is returned when Open is given a driver name
	// it does not recognize.
	ErrUnknownDriver = errors.New("store: unknown driver")

	// ErrInvalidConfig is returned when a driver is missing required
	// configuration, such as an empty DSN.
	ErrInvalidConfig = errors.New("store: invalid configuration")
)

// SessionStore persists conversation sessions and small expiring
// counters (used for per-client rate accounting).
//
// Implementations must be safe for concurrent use. A missing session
// is not an error: Get returns (nil, nil) so callers can distinguish
// "expired or never existed" from backend failures.
type SessionStore interface {
	// Get returns the session with the given ID, or (nil, nil) when
	// no live session exists.
	Get(ctx context.Context, id string) (*conversation.Session, error)

	// Put stores the session under id with the given time to live.
	// A ttl <= 0 means the session never expires.
	Put(ctx context.Context, id string, sess *conversation.Session, ttl time.Duration) error

	// Delete removes the session. Deleting a missing session is a no-op.
	Delete(ctx context.Context, id string) error

	// Incr atomically increments the named counter and returns the new
	// value. The first increment starts the counter's expiry window;
	// once ttl elapses the counter resets to zero.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Close releases backend resources.
	Close() error
}

// Config selects and configures a store driver.
type Config struct {
	// Driver is one of "memory", "redis", "sqlite", "mysql".
	Driver string

	// DSN is the backend address: a Redis URL ("redis://host:6379/0"),
	// a SQLite file path, or a MySQL DSN. Ignored by the memory driver.
	DSN string
}

// Open creates a SessionStore for the configured driver.
func Open(cfg Config) (SessionStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.DSN)
	case "sqlite":
		return NewSQLiteStore(cfg.DSN)
	case "mysql":
		return NewMySQLStore(cfg.DSN)
	default:
		return nil, ErrUnknownDriver
	}
}
