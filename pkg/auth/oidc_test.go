package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testOIDC(t *testing.T) *OIDCConfig {
	t.Helper()
	oidc, err := NewOIDCConfig("https://id.example.org", "catalog", "secret")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	return oidc
}

func oidcToken(t *testing.T, claims oidcClaims) string {
	t.Helper()
	header, err := encodeSegment(tokenHeader{Algorithm: "RS256", Type: "JWT"})
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	payload, err := encodeSegment(claims)
	if err != nil {
		t.Fatalf("encode claims: %v", err)
	}
	return header + "." + payload + ".providersig"
}

func TestOIDCValidateTokenAcceptsProviderToken(t *testing.T) {
	oidc := testOIDC(t)
	subject := uuid.New()
	token := oidcToken(t, oidcClaims{
		Issuer:    "https://id.example.org",
		Subject:   subject.String(),
		Name:      "alice",
		Role:      "uploader",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})

	principal, err := oidc.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if principal.UserID != subject || principal.Name != "alice" || principal.Role != "uploader" {
		t.Fatalf("unexpected principal %+v", principal)
	}
}

func TestOIDCValidateTokenMapsFreeFormSubjectStably(t *testing.T) {
	oidc := testOIDC(t)
	claims := oidcClaims{
		Issuer:    "https://id.example.org",
		Subject:   "github|12345",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}

	first, err := oidc.ValidateToken(context.Background(), oidcToken(t, claims))
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	second, err := oidc.ValidateToken(context.Background(), oidcToken(t, claims))
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if first.UserID == uuid.Nil || first.UserID != second.UserID {
		t.Fatalf("subject mapping must be stable, got %s then %s", first.UserID, second.UserID)
	}
}

func TestOIDCValidateTokenRejections(t *testing.T) {
	oidc := testOIDC(t)
	future := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name  string
		token string
	}{
		{"wrong issuer", oidcToken(t, oidcClaims{Issuer: "https://evil.example.org", Subject: "x", ExpiresAt: future})},
		{"missing subject", oidcToken(t, oidcClaims{Issuer: "https://id.example.org", ExpiresAt: future})},
		{"expired", oidcToken(t, oidcClaims{Issuer: "https://id.example.org", Subject: "x", ExpiresAt: time.Now().Add(-time.Minute).Unix()})},
		{"malformed", "not-a-token"},
	}
	for _, c := range cases {
		if _, err := oidc.ValidateToken(context.Background(), c.token); err == nil {
			t.Fatalf("%s: expected rejection", c.name)
		}
	}
}
