// Package protocol implements the message operations on top of the shared
// aggregate state: signed public broadcasts, box-encrypted private
// messages, and key registration.
//
// Every write is a fetch-modify-publish cycle against the unsynchronized
// store. Concurrent writers race; the later publish silently overwrites
// the earlier writer's append (see the imagehost package). Read operations
// degrade by omission: entries that fail verification or decryption are
// dropped, never surfaced as call-level errors.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pixelchat/crypto"
	"pixelchat/models"
	"pixelchat/state"
)

// ErrIncompleteMessage indicates a send was rejected for missing required
// fields before any network call was made.
var ErrIncompleteMessage = errors.New("protocol: message is not complete")

// BlobStore is the injected fetch/publish capability over the shared
// aggregate blob. *imagehost.Store satisfies it; tests substitute an
// in-memory stub with no networking.
type BlobStore interface {
	Publish(ctx context.Context, payload []byte) error
	FetchLatest(ctx context.Context) ([]byte, error)
}

// Option customizes a Backend.
type Option func(*Backend)

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend executes protocol operations against a blob store.
type Backend struct {
	store  BlobStore
	logger *slog.Logger
}

// NewBackend returns a Backend over the given store.
func NewBackend(store BlobStore, opts ...Option) *Backend {
	b := &Backend{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *Backend) fetchState(ctx context.Context) (*state.AggregateState, error) {
	payload, err := b.store.FetchLatest(ctx)
	if err != nil {
		return nil, err
	}

	s, err := state.Decode(string(payload))
	if err != nil {
		return nil, fmt.Errorf("decode fetched state: %w", err)
	}

	return s, nil
}

func (b *Backend) publishState(ctx context.Context, s *state.AggregateState) error {
	blob, err := state.Encode(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	return b.store.Publish(ctx, []byte(blob))
}

// SendPublic signs a broadcast and appends it to the shared log. The
// sender's verify key is registered first-write-wins so readers can check
// the signature. Requires sender ID, a public event type, content and the
// signing key; anything missing fails with ErrIncompleteMessage before any
// network call.
func (b *Backend) SendPublic(ctx context.Context, out Outgoing) error {
	if err := out.validatePublic(); err != nil {
		return err
	}

	s, err := b.fetchState(ctx)
	if err != nil {
		return err
	}

	s.VerifyKeys.InsertIfAbsent(out.Message.SenderID, out.VerifyKey)
	s.SetProfileImage(out.Message.SenderID, out.Message.SenderProfileImage)

	signed, err := crypto.SignMessage(out.Message.Content, out.SigningKey)
	if err != nil {
		return fmt.Errorf("sign message: %w", err)
	}

	message := out.Message
	message.ReceiverID = ""
	message.Content = signed
	if message.Timestamp == 0 {
		message.Timestamp = nowTimestamp()
	}
	s.Append(message)

	return b.publishState(ctx, s)
}

// SendPrivate seals a one-to-one message and appends it to the shared log.
// The sender's encryption public key is registered first-write-wins so the
// recipient can open the box. Requires sender and receiver IDs, a private
// event type, content, a timestamp, both public keys and the sender's
// private key; anything missing fails with ErrIncompleteMessage before any
// network call.
func (b *Backend) SendPrivate(ctx context.Context, out Outgoing) error {
	if err := out.validatePrivate(); err != nil {
		return err
	}

	s, err := b.fetchState(ctx)
	if err != nil {
		return err
	}

	s.PublicKeys.InsertIfAbsent(out.Message.SenderID, out.OwnPublicKey)
	s.SetProfileImage(out.Message.SenderID, out.Message.SenderProfileImage)

	sealed, err := crypto.SealMessage(out.Message.Content, out.PrivateKey, out.ReceiverPublicKey)
	if err != nil {
		return fmt.Errorf("seal message: %w", err)
	}

	message := out.Message
	message.Content = sealed
	s.Append(message)

	return b.publishState(ctx, s)
}

// ReadPublic returns all public broadcasts whose signatures verify against
// the sender's registered verify key, in log order. Entries from unknown
// senders or with invalid signatures are silently dropped.
func (b *Backend) ReadPublic(ctx context.Context) ([]models.Message, error) {
	s, err := b.fetchState(ctx)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	for _, message := range s.Messages {
		if !message.EventType.Public() {
			continue
		}

		verifyKey, ok := s.VerifyKeys.Get(message.SenderID)
		if !ok {
			continue
		}

		plain, err := crypto.VerifyMessage(message.Content, verifyKey)
		if err != nil {
			b.logger.Debug("dropping unverifiable public message",
				"sender_id", message.SenderID, "timestamp", message.Timestamp, "error", err)
			continue
		}

		message.Content = plain
		messages = append(messages, message)
	}

	return messages, nil
}

// ReadPrivate returns all private messages addressed to userID that open
// under the given private key and the sender's registered public key, in
// log order. Entries from unknown senders or that fail to decrypt are
// silently dropped.
func (b *Backend) ReadPrivate(ctx context.Context, userID, privateKey string) ([]models.Message, error) {
	s, err := b.fetchState(ctx)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	for _, message := range s.Messages {
		if !message.EventType.Private() || message.ReceiverID != userID {
			continue
		}

		senderPublicKey, ok := s.PublicKeys.Get(message.SenderID)
		if !ok {
			continue
		}

		plain, err := crypto.OpenMessage(message.Content, privateKey, senderPublicKey)
		if err != nil {
			b.logger.Debug("dropping undecryptable private message",
				"sender_id", message.SenderID, "timestamp", message.Timestamp, "error", err)
			continue
		}

		message.Content = plain
		messages = append(messages, message)
	}

	return messages, nil
}

// ReadKeys returns snapshots of the verify-key and public-key registries
// for the caller to merge locally.
func (b *Backend) ReadKeys(ctx context.Context) (verifyKeys, publicKeys map[string]string, err error) {
	s, err := b.fetchState(ctx)
	if err != nil {
		return nil, nil, err
	}

	return s.VerifyKeys.Snapshot(), s.PublicKeys.Snapshot(), nil
}

// PushKeys registers a user's verify key and encryption public key,
// first write wins, and publishes the updated state.
func (b *Backend) PushKeys(ctx context.Context, userID, verifyKey, publicKey string) error {
	if userID == "" || verifyKey == "" || publicKey == "" {
		return ErrIncompleteMessage
	}

	s, err := b.fetchState(ctx)
	if err != nil {
		return err
	}

	s.VerifyKeys.InsertIfAbsent(userID, verifyKey)
	s.PublicKeys.InsertIfAbsent(userID, publicKey)

	return b.publishState(ctx, s)
}

func nowTimestamp() float64 {
	return float64(time.Now().UTC().UnixMicro()) / 1e6
}
