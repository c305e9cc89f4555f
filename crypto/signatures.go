package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/sign"
)

// ErrSignatureInvalid indicates a signed blob failed verification.
var ErrSignatureInvalid = errors.New("crypto: signature verification failed")

// GenerateSigningKeyPair creates a signing/verify key pair for
// authenticating public broadcasts. Both keys are returned base64-encoded;
// only the verify key is safe to publish.
func GenerateSigningKeyPair() (signingKey, verifyKey string, err error) {
	publicKey, privateKey, err := sign.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate signing key pair: %w", err)
	}

	signingKey = base64.StdEncoding.EncodeToString(privateKey[:])
	verifyKey = base64.StdEncoding.EncodeToString(publicKey[:])
	return signingKey, verifyKey, nil
}

// SignMessage signs a message with a base64 signing key and returns the
// signed blob (signature attached to the message) base64-encoded.
func SignMessage(message, signingKey string) (string, error) {
	rawKey, err := base64.StdEncoding.DecodeString(signingKey)
	if err != nil {
		return "", fmt.Errorf("decode signing key: %w", err)
	}
	if len(rawKey) != 64 {
		return "", fmt.Errorf("invalid signing key length: got %d want 64", len(rawKey))
	}

	var privateKey [64]byte
	copy(privateKey[:], rawKey)

	signed := sign.Sign(nil, []byte(message), &privateKey)
	return base64.StdEncoding.EncodeToString(signed), nil
}

// VerifyMessage verifies a signed blob against a base64 verify key and
// returns the original message. It fails with ErrSignatureInvalid when the
// signature does not match the key.
func VerifyMessage(signedMessage, verifyKey string) (string, error) {
	rawKey, err := base64.StdEncoding.DecodeString(verifyKey)
	if err != nil {
		return "", fmt.Errorf("decode verify key: %w", err)
	}
	if len(rawKey) != 32 {
		return "", fmt.Errorf("invalid verify key length: got %d want 32", len(rawKey))
	}

	rawSigned, err := base64.StdEncoding.DecodeString(signedMessage)
	if err != nil {
		return "", fmt.Errorf("decode signed message: %w", err)
	}

	var publicKey [32]byte
	copy(publicKey[:], rawKey)

	message, ok := sign.Open(nil, rawSigned, &publicKey)
	if !ok {
		return "", ErrSignatureInvalid
	}

	return string(message), nil
}
