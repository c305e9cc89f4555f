package protocol

import "pixelchat/models"

// Outgoing bundles a message with the transient send-time key material the
// protocol needs. The key fields are parameters of the send operation
// only; none of them is ever serialized into the shared state.
type Outgoing struct {
	Message models.Message

	// SigningKey signs public broadcasts; VerifyKey is registered for
	// readers. Both required for SendPublic.
	SigningKey string
	VerifyKey  string

	// OwnPublicKey is registered for the recipient's replies;
	// ReceiverPublicKey and PrivateKey seal the content. All required
	// for SendPrivate.
	OwnPublicKey      string
	ReceiverPublicKey string
	PrivateKey        string
}

func (o Outgoing) validatePublic() error {
	if o.Message.SenderID == "" ||
		!o.Message.EventType.Public() ||
		o.Message.Content == "" ||
		o.SigningKey == "" {
		return ErrIncompleteMessage
	}

	return nil
}

func (o Outgoing) validatePrivate() error {
	if o.Message.SenderID == "" ||
		o.Message.ReceiverID == "" ||
		!o.Message.EventType.Private() ||
		o.Message.Content == "" ||
		o.Message.Timestamp == 0 ||
		o.OwnPublicKey == "" ||
		o.ReceiverPublicKey == "" ||
		o.PrivateKey == "" {
		return ErrIncompleteMessage
	}

	return nil
}
