package identity

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Coach@Example.COM", "coach@example.com"},
		{"  padded@x.com  ", "padded@x.com"},
		{"plain@x.com", "plain@x.com"},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("top-shelf-2024"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	u := &User{PasswordHash: string(hash)}

	if !CheckPassword(u, "top-shelf-2024") {
		t.Error("expected correct password to verify")
	}
	if CheckPassword(u, "five-hole") {
		t.Error("expected wrong password to fail")
	}
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	u := &User{PasswordHash: "not-a-bcrypt-hash"}
	if CheckPassword(u, "anything") {
		t.Error("expected malformed hash to fail closed")
	}
}
