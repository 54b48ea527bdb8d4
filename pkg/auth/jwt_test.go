package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager("unit-test-secret-0123456789", "opencatalog", "catalog-api", time.Hour)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

func TestJWTRoundTrip(t *testing.T) {
	m := testManager(t)
	principal := Principal{UserID: uuid.New(), Name: "ada", Role: "uploader"}

	token, err := m.IssueToken(principal)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	got, err := m.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if got.UserID != principal.UserID || got.Name != "ada" || got.Role != "uploader" {
		t.Fatalf("principal mismatch: %+v", got)
	}
}

func TestJWTRejectsTampering(t *testing.T) {
	m := testManager(t)
	token, err := m.IssueToken(Principal{UserID: uuid.New(), Name: "ada"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + ".eyJzdWIiOiJldmlsIn0." + parts[2]
	if _, err := m.ValidateToken(context.Background(), tampered); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}

	if _, err := m.ValidateToken(context.Background(), "not.a.token.at.all"); err == nil {
		t.Fatal("expected malformed token to be rejected")
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	m := testManager(t)
	m.nowFunc = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := m.IssueToken(Principal{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	m.nowFunc = time.Now
	if _, err := m.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestJWTRequiresStrongSecret(t *testing.T) {
	if _, err := NewJWTManager("short", "iss", "aud", time.Hour); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}
