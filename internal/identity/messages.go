package identity

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Message is one stored chat line.
type Message struct {
	ID       int64     `json:"id"`
	Sender   string    `json:"sender"`
	Receiver string    `json:"receiver"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// SaveMessage appends a message to the history.
func (s *Store) SaveMessage(ctx context.Context, sender, receiver, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (sender, receiver, body, sent_at) VALUES (?, ?, ?, ?)`,
		normalize(sender), normalize(receiver), text, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert message %s->%s: %w", sender, receiver, err)
	}
	return nil
}

// ReceivedMessages returns up to limit messages addressed to username, oldest
// first. A limit of zero or less returns everything.
func (s *Store) ReceivedMessages(ctx context.Context, username string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, receiver, body, sent_at FROM messages
		 WHERE receiver = ? ORDER BY id DESC LIMIT ?`,
		normalize(username), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages for %q: %w", username, err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}
