package models

// EventType identifies the kind of chat event carried by a message.
type EventType string

const (
	EventPublicText   EventType = "PUBLIC_TEXT"
	EventPublicImage  EventType = "PUBLIC_IMAGE"
	EventPrivateText  EventType = "PRIVATE_TEXT"
	EventPrivateImage EventType = "PRIVATE_IMAGE"
)

// Valid reports whether the event type is one of the known variants.
func (e EventType) Valid() bool {
	switch e {
	case EventPublicText, EventPublicImage, EventPrivateText, EventPrivateImage:
		return true
	default:
		return false
	}
}

// Public reports whether the event is a public broadcast.
func (e EventType) Public() bool {
	return e == EventPublicText || e == EventPublicImage
}

// Private reports whether the event is a one-to-one message.
func (e EventType) Private() bool {
	return e == EventPrivateText || e == EventPrivateImage
}

// Image reports whether the message content is an image rather than text.
func (e EventType) Image() bool {
	return e == EventPublicImage || e == EventPrivateImage
}

// Message is one entry of the shared message log.
//
// Content is plaintext on either side of the protocol layer; inside the
// stored log it holds the signed blob (public events) or the ciphertext
// (private events). Messages carry no unique ID: the pair
// (SenderID, Timestamp) identifies a message for dedup purposes.
type Message struct {
	SenderID           string    `json:"sender_id"`
	ReceiverID         string    `json:"receiver_id,omitempty"`
	EventType          EventType `json:"event_type"`
	Content            string    `json:"content"`
	Timestamp          float64   `json:"timestamp"`
	SenderUsername     string    `json:"sender_username,omitempty"`
	SenderProfileImage string    `json:"sender_profile_image,omitempty"`
}

// SameOrigin reports whether two messages share the (sender, timestamp)
// identity used for dedup.
func (m Message) SameOrigin(other Message) bool {
	return m.SenderID == other.SenderID && m.Timestamp == other.Timestamp
}
