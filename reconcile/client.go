// Package reconcile maintains a local view of the chat by polling the
// backend on a fixed interval and merging what it finds, deduplicating on
// the (sender, timestamp) message identity.
//
// Merging is deliberately asymmetric: public messages are appended in
// arrival order to preserve receipt order in the shared room, while
// private history is re-sorted by timestamp so one's own sent messages
// (folded in from the local outbox, since the backend cannot decrypt them
// back for us) interleave causally with the decrypted remote set.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"pixelchat/crypto"
	"pixelchat/models"
	"pixelchat/protocol"
	"pixelchat/storage"
)

// DefaultPollInterval is the wait between polling cycles.
const DefaultPollInterval = 5 * time.Second

// ErrUnknownRecipient indicates a private send to a user whose encryption
// public key has not been seen yet.
var ErrUnknownRecipient = errors.New("reconcile: recipient public key is not registered")

// Backend is the protocol surface the client polls and sends through.
// *protocol.Backend satisfies it.
type Backend interface {
	SendPublic(ctx context.Context, out protocol.Outgoing) error
	SendPrivate(ctx context.Context, out protocol.Outgoing) error
	ReadPublic(ctx context.Context) ([]models.Message, error)
	ReadPrivate(ctx context.Context, userID, privateKey string) ([]models.Message, error)
	ReadKeys(ctx context.Context) (verifyKeys, publicKeys map[string]string, err error)
	PushKeys(ctx context.Context, userID, verifyKey, publicKey string) error
}

// Option customizes a Client.
type Option func(*Client)

// WithPollInterval overrides the polling interval.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.interval = interval
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithProfile sets the username and profile image attached to outgoing
// messages.
func WithProfile(userName, profileImage string) Option {
	return func(c *Client) {
		c.userName = userName
		c.profileImage = profileImage
	}
}

// Client polls the backend and merges results into a local ordered view.
type Client struct {
	backend  Backend
	local    *storage.Store
	identity *crypto.Identity
	interval time.Duration
	logger   *slog.Logger

	userName     string
	profileImage string

	mu         sync.Mutex
	messages   []models.ChatMessage
	partners   []string
	verifyKeys map[string]string
	publicKeys map[string]string
}

// New returns a Client for the given identity. The storage store holds the
// plaintext record of one's own sent private messages.
func New(backend Backend, local *storage.Store, identity *crypto.Identity, opts ...Option) *Client {
	c := &Client{
		backend:    backend,
		local:      local,
		identity:   identity,
		interval:   DefaultPollInterval,
		logger:     slog.Default(),
		verifyKeys: make(map[string]string),
		publicKeys: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	// Our own keys are always known locally.
	c.verifyKeys[identity.UserID] = identity.VerifyKey
	c.publicKeys[identity.UserID] = identity.PublicKey

	return c
}

// Register publishes the local identity's verify and public keys so other
// clients can reach us.
func (c *Client) Register(ctx context.Context) error {
	return c.backend.PushKeys(ctx, c.identity.UserID, c.identity.VerifyKey, c.identity.PublicKey)
}

// Run polls until the context is cancelled. Poll errors are logged and the
// loop keeps going; a dead host heals on a later cycle.
func (c *Client) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.Poll(ctx); err != nil {
			c.logger.Warn("poll cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one reconciliation cycle: merge remote keys, then public
// messages in arrival order, then private history sorted by timestamp.
func (c *Client) Poll(ctx context.Context) error {
	verifyKeys, publicKeys, err := c.backend.ReadKeys(ctx)
	if err != nil {
		return fmt.Errorf("read keys: %w", err)
	}

	publicMessages, err := c.backend.ReadPublic(ctx)
	if err != nil {
		return fmt.Errorf("read public messages: %w", err)
	}

	privateMessages, err := c.backend.ReadPrivate(ctx, c.identity.UserID, c.identity.PrivateKey)
	if err != nil {
		return fmt.Errorf("read private messages: %w", err)
	}

	ownPrivate, err := c.local.ListOwnPrivateMessages()
	if err != nil {
		return fmt.Errorf("load own private messages: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for userID, key := range verifyKeys {
		if _, known := c.verifyKeys[userID]; !known {
			c.verifyKeys[userID] = key
		}
	}
	for userID, key := range publicKeys {
		if _, known := c.publicKeys[userID]; !known {
			c.publicKeys[userID] = key
		}
	}

	for _, message := range publicMessages {
		c.mergeLocked(models.ChatMessageFromMessage(message, c.identity.UserID))
	}

	merged := make([]models.ChatMessage, 0, len(privateMessages)+len(ownPrivate))
	for _, message := range privateMessages {
		merged = append(merged, models.ChatMessageFromMessage(message, c.identity.UserID))
	}
	for _, message := range ownPrivate {
		merged = append(merged, models.ChatMessage{
			Content:        message.Content,
			UserID:         c.identity.UserID,
			ReceiverID:     message.ReceiverID,
			UserName:       c.userName,
			OwnMessage:     true,
			IsImageMessage: message.IsImage,
			Timestamp:      message.Timestamp,
		})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})

	for _, message := range merged {
		if message.UserID != c.identity.UserID {
			c.registerPartnerLocked(message.UserID)
		} else if message.ReceiverID != "" {
			c.registerPartnerLocked(message.ReceiverID)
		}
		c.mergeLocked(message)
	}

	return nil
}

// SendPublic appends an optimistic local copy, then signs and publishes
// the broadcast. The local copy stays even when the backend write fails;
// the error is returned so callers can surface it.
func (c *Client) SendPublic(ctx context.Context, eventType models.EventType, content string) error {
	message := models.Message{
		SenderID:           c.identity.UserID,
		EventType:          eventType,
		Content:            content,
		Timestamp:          nowTimestamp(),
		SenderUsername:     c.userName,
		SenderProfileImage: c.profileImage,
	}

	c.mu.Lock()
	c.mergeLocked(models.ChatMessageFromMessage(message, c.identity.UserID))
	c.mu.Unlock()

	err := c.backend.SendPublic(ctx, protocol.Outgoing{
		Message:    message,
		SigningKey: c.identity.SigningKey,
		VerifyKey:  c.identity.VerifyKey,
	})
	if err != nil {
		c.logger.Warn("public send failed, keeping local copy", "error", err)
		return err
	}

	return nil
}

// SendPrivate records the plaintext in the local outbox, appends an
// optimistic local copy, then seals and publishes the message. Fails with
// ErrUnknownRecipient when the receiver's key has not been seen yet.
func (c *Client) SendPrivate(ctx context.Context, receiverID string, eventType models.EventType, content string) error {
	c.mu.Lock()
	receiverPublicKey, known := c.publicKeys[receiverID]
	c.mu.Unlock()
	if !known {
		return ErrUnknownRecipient
	}

	message := models.Message{
		SenderID:           c.identity.UserID,
		ReceiverID:         receiverID,
		EventType:          eventType,
		Content:            content,
		Timestamp:          nowTimestamp(),
		SenderUsername:     c.userName,
		SenderProfileImage: c.profileImage,
	}

	if _, err := c.local.SaveOwnPrivateMessage(storage.OutboxMessage{
		ReceiverID: receiverID,
		Content:    content,
		IsImage:    eventType.Image(),
		Timestamp:  message.Timestamp,
	}); err != nil {
		return fmt.Errorf("record own private message: %w", err)
	}
	if err := c.local.AddChatPartner(receiverID); err != nil {
		return fmt.Errorf("record chat partner: %w", err)
	}

	c.mu.Lock()
	c.registerPartnerLocked(receiverID)
	c.mergeLocked(models.ChatMessageFromMessage(message, c.identity.UserID))
	c.mu.Unlock()

	err := c.backend.SendPrivate(ctx, protocol.Outgoing{
		Message:           message,
		OwnPublicKey:      c.identity.PublicKey,
		ReceiverPublicKey: receiverPublicKey,
		PrivateKey:        c.identity.PrivateKey,
	})
	if err != nil {
		c.logger.Warn("private send failed, keeping local copy", "error", err)
		return err
	}

	return nil
}

// Messages returns a snapshot of the merged local view.
func (c *Client) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// Partners returns a snapshot of known chat partners, sorted.
func (c *Client) Partners() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.partners)
}

// KnownPublicKey reports the encryption public key seen for a user.
func (c *Client) KnownPublicKey(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.publicKeys[userID]
	return key, ok
}

// mergeLocked appends a message unless one with the same (user,
// timestamp) identity is already present. The scan is linear per incoming
// item, which is fine at this system's message volumes.
func (c *Client) mergeLocked(message models.ChatMessage) {
	for _, existing := range c.messages {
		if existing.UserID == message.UserID && existing.Timestamp == message.Timestamp {
			return
		}
	}

	c.messages = append(c.messages, message)
}

func (c *Client) registerPartnerLocked(userID string) {
	if userID == "" || userID == c.identity.UserID {
		return
	}
	if slices.Contains(c.partners, userID) {
		return
	}

	c.partners = append(c.partners, userID)
	slices.Sort(c.partners)
}

func nowTimestamp() float64 {
	return float64(time.Now().UTC().UnixMicro()) / 1e6
}
