package auth

import (
	"strings"
	"testing"
)

func TestGenerateAPIToken(t *testing.T) {
	token, err := GenerateAPIToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(token, "blindspot_") {
		t.Errorf("expected blindspot_ prefix, got %q", token)
	}
	if len(token) != len("blindspot_")+32 {
		t.Errorf("unexpected token length %d", len(token))
	}

	other, err := GenerateAPIToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if token == other {
		t.Error("two generated tokens are identical")
	}
}

func TestGeneratePassword(t *testing.T) {
	pass, err := GeneratePassword()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(pass) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(pass))
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("expected argon2id encoding, got %q", hash)
	}

	if !VerifyPassword("correct horse battery staple", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("wrong password", hash) {
		t.Error("wrong password accepted")
	}
	if VerifyPassword("correct horse battery staple", "not-a-hash") {
		t.Error("malformed hash accepted")
	}
}

func TestHashPasswordSalted(t *testing.T) {
	a, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password are identical, salt is not random")
	}
}
