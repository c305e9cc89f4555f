package storage

import (
	"errors"
	"fmt"
)

// AddChatPartner records a user ID we have exchanged private messages
// with. Re-adding an existing partner is a no-op.
func (s *Store) AddChatPartner(userID string) error {
	if userID == "" {
		return errors.New("user_id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO chat_partners (user_id, added_at)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID,
		nowUnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert chat partner %q: %w", userID, err)
	}

	return nil
}

// ListChatPartners returns all known chat partners sorted by user ID.
func (s *Store) ListChatPartners() ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM chat_partners ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query chat partners: %w", err)
	}
	defer rows.Close()

	var partners []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan chat partner: %w", err)
		}
		partners = append(partners, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat partners: %w", err)
	}

	return partners, nil
}
