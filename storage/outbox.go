package storage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// OutboxMessage is one locally sent private message. The shared store only
// holds the sealed ciphertext, which the sender cannot open again, so the
// plaintext copy lives here.
type OutboxMessage struct {
	ID         string
	ReceiverID string
	Content    string
	IsImage    bool
	Timestamp  float64
}

// SaveOwnPrivateMessage records a sent private message. A missing ID is
// filled with a fresh UUID.
func (s *Store) SaveOwnPrivateMessage(message OutboxMessage) (string, error) {
	if message.ReceiverID == "" {
		return "", errors.New("receiver_id is required")
	}
	if message.Timestamp == 0 {
		return "", errors.New("timestamp is required")
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}

	_, err := s.db.Exec(
		`INSERT INTO private_outbox (id, receiver_id, content, is_image, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID,
		message.ReceiverID,
		message.Content,
		boolToInt(message.IsImage),
		message.Timestamp,
		nowUnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert outbox message: %w", err)
	}

	return message.ID, nil
}

// ListOwnPrivateMessages returns all sent private messages ordered by
// timestamp ascending.
func (s *Store) ListOwnPrivateMessages() ([]OutboxMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, receiver_id, content, is_image, timestamp
		FROM private_outbox
		ORDER BY timestamp ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []OutboxMessage
	for rows.Next() {
		var message OutboxMessage
		var isImage int
		if err := rows.Scan(&message.ID, &message.ReceiverID, &message.Content, &isImage, &message.Timestamp); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		message.IsImage = isImage == 1
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}

	return messages, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
