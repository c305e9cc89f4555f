package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Identity holds the local-only key material of one client: a signing pair
// for public broadcasts and an encryption pair for private messages. The
// signing key and private key must never be serialized into shared state;
// they live only in this file on the local device.
type Identity struct {
	UserID     string `json:"user_id"`
	SigningKey string `json:"signing_key"`
	VerifyKey  string `json:"verify_key"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// GenerateUserID returns a random 48-bit user ID, base64-encoded. The ID
// space is small but collisions are vanishingly unlikely at this system's
// scale, so IDs are not checked for duplicates.
func GenerateUserID() (string, error) {
	raw := make([]byte, 6)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate user ID: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// GenerateIdentity creates a fresh identity with both key pairs.
func GenerateIdentity() (*Identity, error) {
	userID, err := GenerateUserID()
	if err != nil {
		return nil, err
	}

	signingKey, verifyKey, err := GenerateSigningKeyPair()
	if err != nil {
		return nil, err
	}

	privateKey, publicKey, err := GenerateEncryptionKeyPair()
	if err != nil {
		return nil, err
	}

	return &Identity{
		UserID:     userID,
		SigningKey: signingKey,
		VerifyKey:  verifyKey,
		PrivateKey: privateKey,
		PublicKey:  publicKey,
	}, nil
}

// EnsureIdentity loads the identity file from disk, generating and saving
// a new identity on first run.
func EnsureIdentity(path string) (*Identity, error) {
	identity, err := LoadIdentity(path)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	identity, err = GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := SaveIdentity(path, identity); err != nil {
		return nil, err
	}

	return identity, nil
}

// LoadIdentity reads an identity file from disk.
func LoadIdentity(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}

	var identity Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	if identity.UserID == "" || identity.SigningKey == "" || identity.PrivateKey == "" {
		return nil, fmt.Errorf("parse identity: missing key material in %q", path)
	}

	return &identity, nil
}

// SaveIdentity writes an identity file with 0600 permissions.
func SaveIdentity(path string, identity *Identity) error {
	raw, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}

	return nil
}
