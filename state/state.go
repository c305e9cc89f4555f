// Package state defines the single aggregate object shared through the
// image store: three user-keyed registries plus the ordered message log,
// together with its compressed wire codec.
//
// The aggregate is materialized on every fetch, mutated in memory, and
// replaced wholesale on publish. There is no delete and no compaction; the
// log grows for the life of the system.
package state

import (
	"maps"
	"slices"

	"pixelchat/models"
)

// AggregateState holds everything the system persists: profile image URLs,
// verify keys and encryption public keys per user, and the append-only
// message log in send order. Secrets (signing keys, private keys) are never
// part of an AggregateState.
type AggregateState struct {
	ProfileImages map[string]string
	VerifyKeys    *KeyMap
	PublicKeys    *KeyMap
	Messages      []models.Message
}

// NewState returns an empty aggregate.
func NewState() *AggregateState {
	return &AggregateState{
		ProfileImages: make(map[string]string),
		VerifyKeys:    NewKeyMap(),
		PublicKeys:    NewKeyMap(),
	}
}

// Append adds a message to the end of the log.
func (s *AggregateState) Append(m models.Message) {
	s.Messages = append(s.Messages, m)
}

// SetProfileImage records a user's profile image URL. Unlike the key
// registries, profile images may be replaced.
func (s *AggregateState) SetProfileImage(userID, imageURL string) {
	if userID == "" || imageURL == "" {
		return
	}
	s.ProfileImages[userID] = imageURL
}

// Equal reports structural equality of all four collections.
func (s *AggregateState) Equal(other *AggregateState) bool {
	if s == nil || other == nil {
		return s == other
	}

	return maps.Equal(s.ProfileImages, other.ProfileImages) &&
		s.VerifyKeys.Equal(other.VerifyKeys) &&
		s.PublicKeys.Equal(other.PublicKeys) &&
		slices.Equal(s.Messages, other.Messages)
}
