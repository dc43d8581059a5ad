package auth

import (
	"strings"
	"testing"
	"time"
)

func TestSignAndVerifyHMAC(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		body      []byte
		timestamp string
	}{
		{
			name:      "simple payload",
			secret:    "s3cret",
			body:      []byte(`{"a":1}`),
			timestamp: "1735732800",
		},
		{
			name:      "empty body",
			secret:    "s3cret",
			body:      nil,
			timestamp: "1735732800",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := SignHMAC(tt.secret, tt.body, tt.timestamp)
			if len(sig) != 64 {
				t.Errorf("SignHMAC() length = %d, want 64 hex chars", len(sig))
			}
			if !VerifyHMAC(tt.secret, tt.body, tt.timestamp, sig) {
				t.Error("VerifyHMAC() = false for matching signature")
			}
			if VerifyHMAC("wrong", tt.body, tt.timestamp, sig) {
				t.Error("VerifyHMAC() = true with wrong secret")
			}
			if VerifyHMAC(tt.secret, append([]byte("x"), tt.body...), tt.timestamp, sig) {
				t.Error("VerifyHMAC() = true with tampered body")
			}
			if VerifyHMAC(tt.secret, tt.body, "1735732801", sig) {
				t.Error("VerifyHMAC() = true with shifted timestamp")
			}
		})
	}
}

func TestMintAndVerifyToken(t *testing.T) {
	secret := "s3cret"
	webhookID := "b2a5d8c0-98a7-4f41-a1cf-2d9f6f9d9e01"

	token, err := MintToken(secret, webhookID, time.Now())
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Fatalf("MintToken() produced %d segments, want 3", len(parts))
	}

	subject, err := VerifyToken(secret, token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if subject != webhookID {
		t.Errorf("VerifyToken() subject = %q, want %q", subject, webhookID)
	}
}

func TestVerifyTokenRejections(t *testing.T) {
	secret := "s3cret"
	webhookID := "hook-1"

	valid, err := MintToken(secret, webhookID, time.Now())
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}
	expired, err := MintToken(secret, webhookID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{name: "wrong secret", secret: "other", token: valid},
		{name: "expired token", secret: secret, token: expired},
		{name: "garbage token", secret: secret, token: "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifyToken(tt.secret, tt.token); err == nil {
				t.Error("VerifyToken() error = nil, want rejection")
			}
		})
	}
}
