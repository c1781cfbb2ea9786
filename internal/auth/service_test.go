package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/eventure-server/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) (*Service, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig), st
}

func signClaims(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestAuthenticate_UpsertsUser(t *testing.T) {
	svc, st := newTestAuthService(t)
	ctx := context.Background()

	token, err := svc.IssueToken("user-1", "Alice")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	id, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.UserID != "user-1" || id.DisplayName != "Alice" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	user, err := st.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("user not mirrored: %v", err)
	}
	if user.DisplayName != "Alice" {
		t.Fatalf("unexpected display name %q", user.DisplayName)
	}

	// A renamed identity refreshes the mirror.
	token, _ = svc.IssueToken("user-1", "Alice B.")
	if _, err := svc.Authenticate(ctx, token); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	user, _ = st.GetUser(ctx, "user-1")
	if user.DisplayName != "Alice B." {
		t.Fatalf("display name not refreshed: %q", user.DisplayName)
	}
}

func TestAuthenticate_DisplayNameFallback(t *testing.T) {
	svc, _ := newTestAuthService(t)

	token, _ := svc.IssueToken("user-2", "   ")
	id, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.DisplayName != "user-2" {
		t.Fatalf("expected subject as display name, got %q", id.DisplayName)
	}

	token, _ = svc.IssueToken("user-3", strings.Repeat("x", 100))
	id, err = svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if len(id.DisplayName) != maxDisplayName {
		t.Fatalf("expected display name truncated to %d, got %d", maxDisplayName, len(id.DisplayName))
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	svc, _ := newTestAuthService(t)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: signClaims(t, "other", jwt.MapClaims{"sub": "u", "iss": "test", "aud": "test", "exp": exp})},
		{name: "expired", token: signClaims(t, "test-secret-change-me", jwt.MapClaims{"sub": "u", "iss": "test", "aud": "test", "exp": time.Now().Add(-time.Hour).Unix()})},
		{name: "wrong issuer", token: signClaims(t, "test-secret-change-me", jwt.MapClaims{"sub": "u", "iss": "evil", "aud": "test", "exp": exp})},
		{name: "wrong audience", token: signClaims(t, "test-secret-change-me", jwt.MapClaims{"sub": "u", "iss": "test", "aud": "other", "exp": exp})},
		{name: "missing subject", token: signClaims(t, "test-secret-change-me", jwt.MapClaims{"iss": "test", "aud": "test", "exp": exp})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestGenerateToken_RoundTrip(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s"), TTL: time.Minute}

	token, err := GenerateToken(cfg, "u-42", "Zed")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID() != "u-42" || claims.Name != "Zed" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := GenerateToken(cfg, "", "nobody"); err == nil {
		t.Fatal("expected error for empty user id")
	}
}
