// Package identity persists users, friend requests, friendships and message
// history in SQLite.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrAlreadyFriends = errors.New("already friends")
	ErrSelfRequest    = errors.New("cannot befriend yourself")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS friend_requests (
	from_username TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
	to_username   TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
	created_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (from_username, to_username)
);
CREATE TABLE IF NOT EXISTS friendships (
	username        TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
	friend_username TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
	created_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (username, friend_username)
);
CREATE TABLE IF NOT EXISTS messages (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	sender   TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
	receiver TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
	body     TEXT NOT NULL,
	sent_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_receiver_idx ON messages (receiver, id);
`

// Store is the SQLite-backed identity and friendship store.
type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Open connects to the database at path, creating the schema if needed.
// The special path ":memory:" yields a private in-memory database.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database %s: %w", path, err)
	}

	log.Info("identity store ready", "path", path)
	return &Store{db: db, log: log, now: time.Now}, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on"
	}
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func normalize(username string) string {
	return strings.TrimSpace(username)
}
