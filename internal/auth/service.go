package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/vovakirdan/eventure-server/internal/store"
)

const maxDisplayName = 64

// Identity is an authenticated caller.
type Identity struct {
	UserID      string
	DisplayName string
}

// Service validates identity tokens and keeps the local users mirror current.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Authenticate validates the token and upserts the caller into the users mirror.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*Identity, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	id := &Identity{UserID: claims.UserID(), DisplayName: displayName(claims)}
	if err := s.store.UpsertUser(ctx, id.UserID, id.DisplayName); err != nil {
		return nil, fmt.Errorf("sync user: %w", err)
	}
	return id, nil
}

// ValidateToken validates a JWT token and returns claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// IssueToken mints a token for userID. Used for local development and tests.
func (s *Service) IssueToken(userID, name string) (string, error) {
	return GenerateToken(s.jwtConfig, userID, name)
}

func displayName(c *Claims) string {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = c.UserID()
	}
	if r := []rune(name); len(r) > maxDisplayName {
		name = string(r[:maxDisplayName])
	}
	return name
}
