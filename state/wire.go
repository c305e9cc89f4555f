package state

import (
	"encoding/json"
	"fmt"

	"pixelchat/models"
)

// wireState is the four-field structure inside the compressed blob.
type wireState struct {
	ProfileImages map[string]string `json:"profile_image_stack"`
	VerifyKeys    map[string]string `json:"verify_keys_stack"`
	PublicKeys    map[string]string `json:"public_keys_stack"`
	Messages      []json.RawMessage `json:"message_stack"`
}

// messageRecord is one persisted log entry in header/body form.
//
// The header retains slots for per-message key material because earlier
// schema revisions persisted them. They are transient send-time parameters
// here: Encode never populates them, and Decode ignores whatever a foreign
// writer may have stored in them, so secrets cannot leak through this
// implementation while old blobs still parse.
type messageRecord struct {
	Header recordHeader `json:"header"`
	Body   recordBody   `json:"body"`
}

type recordHeader struct {
	SenderID          string  `json:"sender_id"`
	ReceiverID        string  `json:"receiver_id,omitempty"`
	EventType         string  `json:"event_type"`
	Timestamp         float64 `json:"timestamp"`
	SigningKey        string  `json:"signing_key,omitempty"`
	VerifyKey         string  `json:"verify_key,omitempty"`
	OwnPublicKey      string  `json:"own_public_key,omitempty"`
	ReceiverPublicKey string  `json:"receiver_public_key,omitempty"`
	PrivateKey        string  `json:"private_key,omitempty"`
}

type recordBody struct {
	Content        string         `json:"content"`
	ExtraEventInfo extraEventInfo `json:"extra_event_info"`
}

type extraEventInfo struct {
	UserName  string `json:"user_name,omitempty"`
	UserImage string `json:"user_image,omitempty"`
}

func recordFromMessage(m models.Message) messageRecord {
	return messageRecord{
		Header: recordHeader{
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			EventType:  string(m.EventType),
			Timestamp:  m.Timestamp,
		},
		Body: recordBody{
			Content: m.Content,
			ExtraEventInfo: extraEventInfo{
				UserName:  m.SenderUsername,
				UserImage: m.SenderProfileImage,
			},
		},
	}
}

func (r messageRecord) toMessage() (models.Message, error) {
	eventType := models.EventType(r.Header.EventType)
	if r.Header.SenderID == "" {
		return models.Message{}, fmt.Errorf("message record missing sender_id")
	}
	if !eventType.Valid() {
		return models.Message{}, fmt.Errorf("unknown event type %q", r.Header.EventType)
	}

	return models.Message{
		SenderID:           r.Header.SenderID,
		ReceiverID:         r.Header.ReceiverID,
		EventType:          eventType,
		Content:            r.Body.Content,
		Timestamp:          r.Header.Timestamp,
		SenderUsername:     r.Body.ExtraEventInfo.UserName,
		SenderProfileImage: r.Body.ExtraEventInfo.UserImage,
	}, nil
}
