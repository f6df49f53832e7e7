package utils

import (
	"testing"
	"time"
)

func TestOpsTokenRoundtrip(t *testing.T) {
	token, err := GenerateOpsToken("secret-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateOpsToken: %v", err)
	}

	if err := ParseOpsToken("secret-1", token); err != nil {
		t.Fatalf("ParseOpsToken: %v", err)
	}
}

func TestOpsTokenWrongSecret(t *testing.T) {
	token, err := GenerateOpsToken("secret-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateOpsToken: %v", err)
	}

	if err := ParseOpsToken("secret-2", token); err == nil {
		t.Fatal("expected an error for a token signed with a different secret")
	}
}

func TestOpsTokenExpired(t *testing.T) {
	token, err := GenerateOpsToken("secret-1", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateOpsToken: %v", err)
	}

	if err := ParseOpsToken("secret-1", token); err == nil {
		t.Fatal("expected an error for an expired token")
	}
}

func TestOpsTokenGarbage(t *testing.T) {
	if err := ParseOpsToken("secret-1", "not-a-token"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}
