package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pixelchat/crypto"
	"pixelchat/models"
	"pixelchat/state"
)

// memStore is an in-memory BlobStore that counts calls so tests can assert
// which operations touch the network.
type memStore struct {
	mu        sync.Mutex
	blob      []byte
	fetches   int
	publishes int
}

func (s *memStore) Publish(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.publishes++
	s.blob = append([]byte(nil), payload...)
	return nil
}

func (s *memStore) FetchLatest(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches++
	return append([]byte(nil), s.blob...), nil
}

func (s *memStore) calls() (fetches, publishes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches, s.publishes
}

type testIdentity struct {
	userID     string
	signingKey string
	verifyKey  string
	privateKey string
	publicKey  string
}

func newTestIdentity(t *testing.T) testIdentity {
	t.Helper()

	identity, err := crypto.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	return testIdentity{
		userID:     identity.UserID,
		signingKey: identity.SigningKey,
		verifyKey:  identity.VerifyKey,
		privateKey: identity.PrivateKey,
		publicKey:  identity.PublicKey,
	}
}

func publicOutgoing(id testIdentity, content string, timestamp float64) Outgoing {
	return Outgoing{
		Message: models.Message{
			SenderID:  id.userID,
			EventType: models.EventPublicText,
			Content:   content,
			Timestamp: timestamp,
		},
		SigningKey: id.signingKey,
		VerifyKey:  id.verifyKey,
	}
}

func privateOutgoing(sender, receiver testIdentity, content string, timestamp float64) Outgoing {
	return Outgoing{
		Message: models.Message{
			SenderID:   sender.userID,
			ReceiverID: receiver.userID,
			EventType:  models.EventPrivateText,
			Content:    content,
			Timestamp:  timestamp,
		},
		OwnPublicKey:      sender.publicKey,
		ReceiverPublicKey: receiver.publicKey,
		PrivateKey:        sender.privateKey,
	}
}

func TestSendPublicIncompleteIssuesNoNetworkCall(t *testing.T) {
	store := &memStore{}
	backend := NewBackend(store)
	alice := newTestIdentity(t)

	incomplete := []Outgoing{
		{},
		{Message: models.Message{SenderID: alice.userID, EventType: models.EventPublicText, Content: "hi"}},
		{Message: models.Message{SenderID: alice.userID, Content: "hi"}, SigningKey: alice.signingKey},
		{Message: models.Message{EventType: models.EventPublicText, Content: "hi"}, SigningKey: alice.signingKey},
		{Message: models.Message{SenderID: alice.userID, EventType: models.EventPublicText}, SigningKey: alice.signingKey},
		// Private event type on the public path is also incomplete.
		{Message: models.Message{SenderID: alice.userID, EventType: models.EventPrivateText, Content: "hi"}, SigningKey: alice.signingKey},
	}

	for i, out := range incomplete {
		if err := backend.SendPublic(context.Background(), out); !errors.Is(err, ErrIncompleteMessage) {
			t.Fatalf("case %d: expected ErrIncompleteMessage, got %v", i, err)
		}
	}

	fetches, publishes := store.calls()
	if fetches != 0 || publishes != 0 {
		t.Fatalf("incomplete sends touched the store: %d fetches, %d publishes", fetches, publishes)
	}
}

func TestSendPublicThenReadPublic(t *testing.T) {
	store := &memStore{}
	backend := NewBackend(store)
	alice := newTestIdentity(t)

	if err := backend.SendPublic(context.Background(), publicOutgoing(alice, "first post", 100.5)); err != nil {
		t.Fatalf("SendPublic failed: %v", err)
	}

	messages, err := backend.ReadPublic(context.Background())
	if err != nil {
		t.Fatalf("ReadPublic failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected exactly [m1], got %d messages", len(messages))
	}
	if messages[0].Content != "first post" {
		t.Fatalf("expected original plaintext, got %q", messages[0].Content)
	}
	if messages[0].SenderID != alice.userID || messages[0].Timestamp != 100.5 {
		t.Fatalf("message metadata mismatch: %+v", messages[0])
	}
}

func TestStoredPublicContentIsSignedBlob(t *testing.T) {
	store := &memStore{}
	backend := NewBackend(store)
	alice := newTestIdentity(t)

	if err := backend.SendPublic(context.Background(), publicOutgoing(alice, "plaintext", 1)); err != nil {
		t.Fatalf("SendPublic failed: %v", err)
	}

	stored, err := state.Decode(string(store.blob))
	if err != nil {
		t.Fatalf("decode stored state: %v", err)
	}
	if len(stored.Messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(stored.Messages))
	}
	if stored.Messages[0].Content == "plaintext" {
		t.Fatalf("stored log carries unsigned plaintext")
	}
}

func TestReadPublicDropsForgedMessages(t *testing.T) {
	store := &memStore{}
	backend := NewBackend(store)
	alice := newTestIdentity(t)
	mallory := newTestIdentity(t)

	if err := backend.SendPublic(context.Background(), publicOutgoing(alice, "genuine", 1)); err != nil {
		t.Fatalf("SendPublic failed: %v", err)
	}

	// Mallory appends a message claiming to be Alice, signed with
	// Mallory's own key, plus one from a sender with no registered key.
	s, err := state.Decode(string(store.blob))
	if err != nil {
		t.Fatalf("decode state: %v", err)
	}
	forged, err := crypto.SignMessage("forged", mallory.signingKey)
	if err != nil {
		t.Fatalf("sign forged message: %v", err)
	}
	s.Append(models.Message{SenderID: alice.userID, EventType: models.EventPublicText, Content: forged, Timestamp: 2})
	s.Append(models.Message{SenderID: "stranger", EventType: models.EventPublicText, Content: forged, Timestamp: 3})
	blob, err := state.Encode(s)
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	store.blob = []byte(blob)

	messages, err := backend.ReadPublic(context.Background())
	if err != nil {
		t.Fatalf("ReadPublic failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "genuine" {
		t.Fatalf("expected only the genuine message, got %+v", messages)
	}
}

func TestSendPrivateThenReadPrivate(t *testing.T) {
	store := &memStore{}
	backend := NewBackend(store)
	alice := newTestIdentity(t)
	bob := newTestIdentity(t)

	if err := backend.SendPrivate(context.Background(), privateOutgoing(alice, bob, "for bob only", 10)); err != nil {
		t.Fatalf("SendPrivate failed: %v", err)
	}

	received, err := backend.ReadPrivate(context.Background(), bob.userID, bob.privateKey)
	if err != nil {
		t.Fatalf("ReadPrivate failed: %v", err)
	}
	if len(received) != 1 || received[0].Content != "for bob only" {
		t.Fatalf("expected decrypted message for bob, got %+v", received)
	}

	// The message is not addressed to Carol and must not appear for her.
	carol := newTestIdentity(t)
	forCarol, err := backend.ReadPrivate(context.Background(), carol.userID, carol.privateKey)
	if err != nil {
		t.Fatalf("ReadPrivate for carol failed: %v", err)
	}
	if len(forCarol) != 0 {
		t.Fatalf("message leaked to wrong recipient: %+v", forCarol)
	}

	// The sender cannot decrypt their own stored copy either; the read
	// degrades by omission instead of failing.
	forAlice, err := backend.ReadPrivate(context.Background(), alice.userID, alice.privateKey)
	if err != nil {
		t.Fatalf("ReadPrivate for alice failed: %v", err)
	}
	if len(forAlice) != 0 {
		t.Fatalf("expected no messages addressed to the sender, got %+v", forAlice)
	}
}

func TestReadPrivateDropsUndecryptable(t *testing.T) {
	store := &memStore{}
	backend := NewBackend(store)
	alice := newTestIdentity(t)
	bob := newTestIdentity(t)
	eve := newTestIdentity(t)

	if err := backend.SendPrivate(context.Background(), privateOutgoing(alice, bob, "real", 10)); err != nil {
		t.Fatalf("SendPrivate failed: %v", err)
	}

	// Eve reading Bob's log with her own key gets nothing.
	forEve, err := backend.ReadPrivate(context.Background(), bob.userID, eve.privateKey)
	if err != nil {
		t.Fatalf("ReadPrivate failed: %v", err)
	}
	if len(forEve) != 0 {
		t.Fatalf("expected decryption failures to be dropped, got %+v", forEve)
	}
}

func TestSendPrivateIncompleteIssuesNoNetworkCall(t *testing.T) {
	store := &memStore{}
	backend := NewBackend(store)
	alice := newTestIdentity(t)
	bob := newTestIdentity(t)

	out := privateOutgoing(alice, bob, "content", 10)
	out.Message.Timestamp = 0

	if err := backend.SendPrivate(context.Background(), out); !errors.Is(err, ErrIncompleteMessage) {
		t.Fatalf("expected ErrIncompleteMessage, got %v", err)
	}

	out = privateOutgoing(alice, bob, "content", 10)
	out.ReceiverPublicKey = ""
	if err := backend.SendPrivate(context.Background(), out); !errors.Is(err, ErrIncompleteMessage) {
		t.Fatalf("expected ErrIncompleteMessage, got %v", err)
	}

	fetches, publishes := store.calls()
	if fetches != 0 || publishes != 0 {
		t.Fatalf("incomplete sends touched the store: %d fetches, %d publishes", fetches, publishes)
	}
}

func TestPushKeysFirstWriteWins(t *testing.T) {
	store := &memStore{}
	backend := NewBackend(store)
	alice := newTestIdentity(t)

	if err := backend.PushKeys(context.Background(), alice.userID, alice.verifyKey, alice.publicKey); err != nil {
		t.Fatalf("PushKeys failed: %v", err)
	}

	// A second registration under the same ID must be ignored.
	impostor := newTestIdentity(t)
	if err := backend.PushKeys(context.Background(), alice.userID, impostor.verifyKey, impostor.publicKey); err != nil {
		t.Fatalf("second PushKeys failed: %v", err)
	}

	verifyKeys, publicKeys, err := backend.ReadKeys(context.Background())
	if err != nil {
		t.Fatalf("ReadKeys failed: %v", err)
	}
	if verifyKeys[alice.userID] != alice.verifyKey {
		t.Fatalf("verify key overwritten: got %q", verifyKeys[alice.userID])
	}
	if publicKeys[alice.userID] != alice.publicKey {
		t.Fatalf("public key overwritten: got %q", publicKeys[alice.userID])
	}
}

// frozenStore hands every fetch the same initial snapshot, modeling two
// writers whose read-modify-write cycles interleave.
type frozenStore struct {
	snapshot []byte
	last     []byte
}

func (s *frozenStore) Publish(_ context.Context, payload []byte) error {
	s.last = append([]byte(nil), payload...)
	return nil
}

func (s *frozenStore) FetchLatest(_ context.Context) ([]byte, error) {
	return append([]byte(nil), s.snapshot...), nil
}

func TestConcurrentWritersLoseEarlierUpdate(t *testing.T) {
	store := &frozenStore{}
	backend := NewBackend(store)
	alice := newTestIdentity(t)
	bob := newTestIdentity(t)

	// Both sends fetch the same (empty) state S before either publishes.
	if err := backend.SendPublic(context.Background(), publicOutgoing(alice, "from alice", 1)); err != nil {
		t.Fatalf("alice SendPublic failed: %v", err)
	}
	if err := backend.SendPublic(context.Background(), publicOutgoing(bob, "from bob", 2)); err != nil {
		t.Fatalf("bob SendPublic failed: %v", err)
	}

	final, err := state.Decode(string(store.last))
	if err != nil {
		t.Fatalf("decode final state: %v", err)
	}

	// Whichever publish landed last wins wholesale; the earlier append
	// is lost. This is the store's documented behavior, not a defect.
	if len(final.Messages) != 1 {
		t.Fatalf("expected exactly one surviving message, got %d", len(final.Messages))
	}
	if final.Messages[0].SenderID != bob.userID {
		t.Fatalf("expected the last writer's message to survive, got sender %q", final.Messages[0].SenderID)
	}
}

func TestProfileImagePropagates(t *testing.T) {
	store := &memStore{}
	backend := NewBackend(store)
	alice := newTestIdentity(t)

	out := publicOutgoing(alice, "with profile", 1)
	out.Message.SenderUsername = "Alice"
	out.Message.SenderProfileImage = "https://img.example/alice.png"

	if err := backend.SendPublic(context.Background(), out); err != nil {
		t.Fatalf("SendPublic failed: %v", err)
	}

	messages, err := backend.ReadPublic(context.Background())
	if err != nil {
		t.Fatalf("ReadPublic failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected one message, got %d", len(messages))
	}
	if messages[0].SenderUsername != "Alice" || messages[0].SenderProfileImage != "https://img.example/alice.png" {
		t.Fatalf("profile metadata lost: %+v", messages[0])
	}

	stored, err := state.Decode(string(store.blob))
	if err != nil {
		t.Fatalf("decode stored state: %v", err)
	}
	if stored.ProfileImages[alice.userID] != "https://img.example/alice.png" {
		t.Fatalf("profile image stack not updated: %v", stored.ProfileImages)
	}
}
