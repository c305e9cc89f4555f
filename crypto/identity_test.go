package crypto

import (
	"encoding/base64"
	"path/filepath"
	"testing"
)

func TestGenerateUserID(t *testing.T) {
	userID, err := GenerateUserID()
	if err != nil {
		t.Fatalf("GenerateUserID failed: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(userID)
	if err != nil {
		t.Fatalf("user ID is not valid base64: %v", err)
	}
	if len(raw) != 6 {
		t.Fatalf("expected 6-byte user ID, got %d bytes", len(raw))
	}
}

func TestEnsureIdentityGeneratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	first, err := EnsureIdentity(path)
	if err != nil {
		t.Fatalf("first EnsureIdentity failed: %v", err)
	}
	if first.UserID == "" || first.SigningKey == "" || first.VerifyKey == "" ||
		first.PrivateKey == "" || first.PublicKey == "" {
		t.Fatalf("generated identity has empty fields: %+v", first)
	}

	second, err := EnsureIdentity(path)
	if err != nil {
		t.Fatalf("second EnsureIdentity failed: %v", err)
	}
	if *second != *first {
		t.Fatalf("EnsureIdentity did not return the persisted identity")
	}
}

func TestLoadIdentityRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	if err := SaveIdentity(path, &Identity{UserID: "abc"}); err != nil {
		t.Fatalf("SaveIdentity failed: %v", err)
	}

	if _, err := LoadIdentity(path); err == nil {
		t.Fatalf("expected error loading identity without key material")
	}
}
