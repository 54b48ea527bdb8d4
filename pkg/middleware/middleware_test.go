package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/opencatalog/platform/pkg/auth"
)

func testManager(t *testing.T, secret string) *auth.JWTManager {
	t.Helper()
	m, err := auth.NewJWTManager(secret, "opencatalog", "catalog-api", time.Hour)
	if err != nil {
		t.Fatalf("manager failed: %v", err)
	}
	return m
}

func principalEcho(t *testing.T) (http.Handler, *auth.Principal) {
	t.Helper()
	captured := &auth.Principal{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := PrincipalFrom(r.Context()); p != nil {
			*captured = *p
		}
		w.WriteHeader(http.StatusOK)
	})
	return handler, captured
}

func TestAuthenticateTriesValidatorsInOrder(t *testing.T) {
	primary := testManager(t, "primary-secret-0123")
	secondary := testManager(t, "secondary-secret-0123")

	want := auth.Principal{UserID: uuid.New(), Name: "alice", Role: "uploader"}
	token, err := secondary.IssueToken(want)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	inner, captured := principalEcho(t)
	handler := Authenticate(primary, secondary)(inner)

	req := httptest.NewRequest(http.MethodGet, "/datasets", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected fallback validator to accept, got %d", rec.Code)
	}
	if captured.UserID != want.UserID || captured.Name != want.Name {
		t.Fatalf("unexpected principal %+v", captured)
	}
}

func TestAuthenticateRejectsWhenAllValidatorsFail(t *testing.T) {
	primary := testManager(t, "primary-secret-0123")
	foreign := testManager(t, "foreign-secret-0123")
	token, err := foreign.IssueToken(auth.Principal{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	inner, _ := principalEcho(t)
	handler := Authenticate(primary)(inner)

	req := httptest.NewRequest(http.MethodGet, "/datasets", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthenticateLetsAnonymousReadsThrough(t *testing.T) {
	inner, captured := principalEcho(t)
	handler := Authenticate(testManager(t, "primary-secret-0123"))(inner)

	req := httptest.NewRequest(http.MethodGet, "/datasets", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous read must pass through, got %d", rec.Code)
	}
	if captured.UserID != uuid.Nil {
		t.Fatalf("anonymous request must carry no principal, got %+v", captured)
	}
}
