package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FriendRequest is a pending request from one user to another.
type FriendRequest struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	CreatedAt time.Time `json:"created_at"`
}

// SendFriendRequest records a pending request from one user to another.
func (s *Store) SendFriendRequest(ctx context.Context, from, to string) error {
	from, to = normalize(from), normalize(to)
	if from == to {
		return ErrSelfRequest
	}

	for _, username := range []string{from, to} {
		exists, err := s.UserExists(ctx, username)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
	}

	friends, err := s.AreFriends(ctx, from, to)
	if err != nil {
		return err
	}
	if friends {
		return ErrAlreadyFriends
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO friend_requests (from_username, to_username, created_at) VALUES (?, ?, ?)`,
		from, to, s.now().UTC(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert friend request %s->%s: %w", from, to, err)
	}
	return nil
}

// PendingRequests lists the requests addressed to username, oldest first.
func (s *Store) PendingRequests(ctx context.Context, username string) ([]FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_username, to_username, created_at FROM friend_requests
		 WHERE to_username = ? ORDER BY created_at, from_username`,
		normalize(username),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending requests for %q: %w", username, err)
	}
	defer rows.Close()

	requests := []FriendRequest{}
	for rows.Next() {
		var r FriendRequest
		if err := rows.Scan(&r.From, &r.To, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// AcceptFriendRequest turns a pending request into a mutual friendship.
func (s *Store) AcceptFriendRequest(ctx context.Context, from, to string) error {
	from, to = normalize(from), normalize(to)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM friend_requests WHERE from_username = ? AND to_username = ?`, from, to)
		if err != nil {
			return fmt.Errorf("delete friend request %s->%s: %w", from, to, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		// a crossed request in the other direction is settled too
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM friend_requests WHERE from_username = ? AND to_username = ?`, to, from); err != nil {
			return fmt.Errorf("delete friend request %s->%s: %w", to, from, err)
		}

		now := s.now().UTC()
		for _, pair := range [][2]string{{from, to}, {to, from}} {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO friendships (username, friend_username, created_at) VALUES (?, ?, ?)`,
				pair[0], pair[1], now,
			); err != nil {
				return fmt.Errorf("insert friendship %s->%s: %w", pair[0], pair[1], err)
			}
		}
		s.log.Info("friend request accepted", "from", from, "to", to)
		return nil
	})
}

// DeclineFriendRequest drops a pending request.
func (s *Store) DeclineFriendRequest(ctx context.Context, from, to string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM friend_requests WHERE from_username = ? AND to_username = ?`,
		normalize(from), normalize(to),
	)
	if err != nil {
		return fmt.Errorf("delete friend request %s->%s: %w", from, to, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Friends lists the confirmed friends of username in alphabetical order.
func (s *Store) Friends(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT friend_username FROM friendships WHERE username = ? ORDER BY friend_username`,
		normalize(username),
	)
	if err != nil {
		return nil, fmt.Errorf("query friends of %q: %w", username, err)
	}
	defer rows.Close()

	friends := []string{}
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// AreFriends reports whether a and b have a confirmed friendship.
func (s *Store) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM friendships WHERE username = ? AND friend_username = ?`,
		normalize(a), normalize(b),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query friendship %s<->%s: %w", a, b, err)
	}
	return true, nil
}

// RemoveFriend deletes the friendship in both directions.
func (s *Store) RemoveFriend(ctx context.Context, a, b string) error {
	a, b = normalize(a), normalize(b)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM friendships WHERE (username = ? AND friend_username = ?)
			 OR (username = ? AND friend_username = ?)`,
			a, b, b, a,
		)
		if err != nil {
			return fmt.Errorf("delete friendship %s<->%s: %w", a, b, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AddFriendship makes a and b friends without a request round trip.
func (s *Store) AddFriendship(ctx context.Context, a, b string) error {
	a, b = normalize(a), normalize(b)
	if a == b {
		return ErrSelfRequest
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now().UTC()
		for _, pair := range [][2]string{{a, b}, {b, a}} {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO friendships (username, friend_username, created_at) VALUES (?, ?, ?)`,
				pair[0], pair[1], now,
			); err != nil {
				if isConstraintViolation(err) {
					return fmt.Errorf("user %q or %q: %w", a, b, ErrNotFound)
				}
				return fmt.Errorf("insert friendship %s->%s: %w", pair[0], pair[1], err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
