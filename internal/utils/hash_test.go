package utils

import "testing"

func TestHashKeyRoundtrip(t *testing.T) {
	hash, err := HashKey("operator-key-1")
	if err != nil {
		t.Fatalf("HashKey: %v", err)
	}

	if !CheckKey(hash, "operator-key-1") {
		t.Fatal("expected the hashed key to verify against its plaintext")
	}
	if CheckKey(hash, "operator-key-2") {
		t.Fatal("expected a different key to fail verification")
	}
}

func TestCheckKeyRejectsMalformedHash(t *testing.T) {
	if CheckKey("not-a-bcrypt-hash", "operator-key-1") {
		t.Fatal("expected a malformed hash to fail verification")
	}
}
