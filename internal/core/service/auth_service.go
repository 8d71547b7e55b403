package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

// AuthService implements registration and login.
type AuthService struct {
	repo      ports.AuthRepository
	passwords *PasswordHasher
	tokens    *TokenService
	tokenTTL  time.Duration
	now       func() time.Time
	log       zerolog.Logger

	// dummyHash is verified when the email is unknown so both failure paths
	// cost one hash computation.
	dummyHash string
}

func NewAuthService(
	repo ports.AuthRepository,
	passwords *PasswordHasher,
	tokens *TokenService,
	tokenTTL time.Duration,
	log zerolog.Logger,
) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &AuthService{
		repo:      repo,
		passwords: passwords,
		tokens:    tokens,
		tokenTTL:  tokenTTL,
		now:       tokens.Now,
		log:       log,
		dummyHash: passwords.Hash("not-a-real-password"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user holding the default role.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}

	if _, err := s.repo.FindUserByEmail(ctx, email); err == nil {
		return nil, domain.ErrDuplicateEmail
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("register: %w", err)
	}

	if _, err := s.repo.FindRoleByName(ctx, domain.DefaultRole); err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			s.log.Error().Str("role", domain.DefaultRole).Msg("default role missing, seed roles not applied")
			return nil, domain.ErrConfiguration
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		Email:        email,
		PasswordHash: s.passwords.Hash(password),
		Roles:        []string{domain.DefaultRole},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info().Str("user_id", created.ID).Msg("user registered")
	return created, nil
}

// Login verifies credentials and issues an access token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.LoginResult, error) {
	email = normalizeEmail(email)

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("login: %w", err)
		}
		s.passwords.Verify(password, s.dummyHash)
		s.log.Warn().Msg("login failed")
		return nil, domain.ErrInvalidCredentials
	}

	if !s.passwords.Verify(password, user.PasswordHash) {
		s.log.Warn().Str("user_id", user.ID).Msg("login failed")
		return nil, domain.ErrInvalidCredentials
	}

	issued, err := s.tokens.Issue(user.ID, user.RoleNames(), s.now().UTC(), s.tokenTTL)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("login succeeded")
	return &ports.LoginResult{
		AccessToken: issued.Value,
		TokenType:   "bearer",
		ExpiresAt:   issued.ExpiresAt,
		User:        user,
	}, nil
}
