package state

import (
	"encoding/json"
	"maps"
)

// KeyMap is a registry from user ID to key with first-write-wins semantics. The
// only mutation it exposes is InsertIfAbsent: once a user ID is bound to a
// key, later registrations under the same ID are silently ignored.
type KeyMap struct {
	entries map[string]string
}

// NewKeyMap returns an empty KeyMap.
func NewKeyMap() *KeyMap {
	return &KeyMap{entries: make(map[string]string)}
}

// InsertIfAbsent binds key to userID unless userID is already bound. It
// reports whether the binding was inserted. Empty IDs and keys are ignored.
func (m *KeyMap) InsertIfAbsent(userID, key string) bool {
	if userID == "" || key == "" {
		return false
	}
	if _, exists := m.entries[userID]; exists {
		return false
	}

	m.entries[userID] = key
	return true
}

// Get returns the key bound to userID.
func (m *KeyMap) Get(userID string) (string, bool) {
	key, ok := m.entries[userID]
	return key, ok
}

// Len returns the number of bindings.
func (m *KeyMap) Len() int {
	return len(m.entries)
}

// Snapshot returns a copy of the bindings for callers to merge locally.
func (m *KeyMap) Snapshot() map[string]string {
	return maps.Clone(m.entries)
}

// Equal reports whether two maps hold identical bindings.
func (m *KeyMap) Equal(other *KeyMap) bool {
	if m == nil || other == nil {
		return m == other
	}
	return maps.Equal(m.entries, other.entries)
}

// MarshalJSON encodes the map as a plain JSON object.
func (m *KeyMap) MarshalJSON() ([]byte, error) {
	if m == nil || m.entries == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.entries)
}

// UnmarshalJSON decodes a plain JSON object into the map.
func (m *KeyMap) UnmarshalJSON(data []byte) error {
	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	m.entries = entries
	return nil
}
