package models

// ChatMessage is the local view form of a message after reconciliation:
// content is already verified or decrypted, and ownership is resolved
// against the local user ID.
type ChatMessage struct {
	Content          string  `json:"content"`
	UserID           string  `json:"user_id"`
	ReceiverID       string  `json:"receiver_id,omitempty"`
	UserName         string  `json:"user_name"`
	UserProfileImage string  `json:"user_profile_image,omitempty"`
	OwnMessage       bool    `json:"own_message"`
	IsImageMessage   bool    `json:"is_image_message"`
	Timestamp        float64 `json:"timestamp"`
}

// ChatMessageFromMessage resolves a decoded log entry into the local view
// form. The sender ID stands in for a missing username.
func ChatMessageFromMessage(m Message, localUserID string) ChatMessage {
	name := m.SenderUsername
	if name == "" {
		name = m.SenderID
	}

	return ChatMessage{
		Content:          m.Content,
		UserID:           m.SenderID,
		ReceiverID:       m.ReceiverID,
		UserName:         name,
		UserProfileImage: m.SenderProfileImage,
		OwnMessage:       m.SenderID == localUserID,
		IsImageMessage:   m.EventType.Image(),
		Timestamp:        m.Timestamp,
	}
}
