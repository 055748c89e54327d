package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User is a registered account.
type User struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUser inserts a new user. It returns ErrAlreadyExists when the
// username is taken.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		normalize(username), passwordHash, s.now().UTC(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert user %q: %w", username, err)
	}
	return nil
}

// GetUser loads a user by username.
func (s *Store) GetUser(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, created_at FROM users WHERE username = ?`,
		normalize(username),
	).Scan(&u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user %q: %w", username, err)
	}
	return u, nil
}

// UserExists reports whether username is registered.
func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE username = ?`, normalize(username),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user %q: %w", username, err)
	}
	return true, nil
}

// CountUsers returns the number of registered users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
