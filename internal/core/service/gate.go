package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

// Guard authorizes a bearer token and returns the resolved caller.
type Guard func(ctx context.Context, token string) (*domain.User, error)

// Gate resolves who is calling and whether they may proceed. Roles are always
// read from storage; the token's role snapshot is never trusted, so a demoted
// user loses access immediately instead of at token expiry.
type Gate struct {
	tokens *TokenService
	repo   ports.AuthRepository
	log    zerolog.Logger
}

func NewGate(tokens *TokenService, repo ports.AuthRepository, log zerolog.Logger) *Gate {
	return &Gate{tokens: tokens, repo: repo, log: log}
}

// Authenticate validates token and loads its subject. A subject that no
// longer exists is treated as unauthenticated.
func (g *Gate) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := g.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := g.repo.FindUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			g.log.Warn().Str("subject", claims.Subject).Msg("token subject no longer exists")
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return user, nil
}

// RequireRole returns a Guard that authenticates and then demands role.
func (g *Gate) RequireRole(role string) Guard {
	return func(ctx context.Context, token string) (*domain.User, error) {
		user, err := g.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		if !user.HasRole(role) {
			g.log.Warn().Str("user_id", user.ID).Str("required_role", role).Msg("role check denied")
			return nil, domain.ErrForbidden
		}
		return user, nil
	}
}

// Authorize is RequireRole(role) applied to token.
func (g *Gate) Authorize(ctx context.Context, token, role string) (*domain.User, error) {
	return g.RequireRole(role)(ctx, token)
}
