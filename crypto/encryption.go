package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

const boxNonceSize = 24

// ErrDecryptionFailed indicates a ciphertext could not be opened with the
// given key pair.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

// GenerateEncryptionKeyPair creates a private/public key pair for
// authenticated public-key encryption of one-to-one messages. Both keys are
// returned base64-encoded; only the public key is safe to publish.
func GenerateEncryptionKeyPair() (privateKey, publicKey string, err error) {
	public, private, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate encryption key pair: %w", err)
	}

	privateKey = base64.StdEncoding.EncodeToString(private[:])
	publicKey = base64.StdEncoding.EncodeToString(public[:])
	return privateKey, publicKey, nil
}

// SealMessage encrypts a message for the recipient using the sender's
// private key and the recipient's public key. Sender authenticity is
// implicit in the scheme; no separate signature is attached. The random
// nonce is prepended to the ciphertext and the whole blob base64-encoded.
func SealMessage(message, senderPrivateKey, recipientPublicKey string) (string, error) {
	private, err := decodeBoxKey(senderPrivateKey, "sender private key")
	if err != nil {
		return "", err
	}
	public, err := decodeBoxKey(recipientPublicKey, "recipient public key")
	if err != nil {
		return "", err
	}

	var nonce [boxNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := box.Seal(nonce[:], []byte(message), &nonce, public, private)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenMessage decrypts a sealed blob using the recipient's private key and
// the sender's public key. It fails with ErrDecryptionFailed when the blob
// does not authenticate under the key pair.
func OpenMessage(sealedMessage, recipientPrivateKey, senderPublicKey string) (string, error) {
	private, err := decodeBoxKey(recipientPrivateKey, "recipient private key")
	if err != nil {
		return "", err
	}
	public, err := decodeBoxKey(senderPublicKey, "sender public key")
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(sealedMessage)
	if err != nil {
		return "", fmt.Errorf("decode sealed message: %w", err)
	}
	if len(raw) < boxNonceSize {
		return "", ErrDecryptionFailed
	}

	var nonce [boxNonceSize]byte
	copy(nonce[:], raw[:boxNonceSize])

	message, ok := box.Open(nil, raw[boxNonceSize:], &nonce, public, private)
	if !ok {
		return "", ErrDecryptionFailed
	}

	return string(message), nil
}

func decodeBoxKey(encoded, what string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid %s length: got %d want 32", what, len(raw))
	}

	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
