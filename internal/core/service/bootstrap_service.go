package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

// BootstrapService prepares a fresh store: the seed roles and, optionally,
// a first administrator.
type BootstrapService struct {
	store     ports.Store
	passwords *PasswordHasher
	now       func() time.Time
	log       zerolog.Logger
}

func NewBootstrapService(store ports.Store, passwords *PasswordHasher, log zerolog.Logger) *BootstrapService {
	return &BootstrapService{store: store, passwords: passwords, now: time.Now, log: log}
}

// SeedRoles makes sure every role in domain.SeedRoles exists.
func (s *BootstrapService) SeedRoles(ctx context.Context) error {
	if err := s.store.EnsureRoles(ctx, domain.SeedRoles); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	s.log.Info().Strs("roles", domain.SeedRoles).Msg("seed roles ensured")
	return nil
}

// EnsureAdmin creates an administrator account when email is not registered
// yet. The creation is audited as a system action without an actor. It
// reports whether a user was created.
func (s *BootstrapService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return false, fmt.Errorf("bootstrap admin: %w", domain.ErrInvalidInput)
	}

	created := false
	err := s.store.RunAtomic(ctx, func(ctx context.Context, repo ports.AuthRepository) error {
		created = false
		if _, err := repo.FindUserByEmail(ctx, email); err == nil {
			return nil
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}

		for _, name := range []string{domain.DefaultRole, domain.RoleAdmin} {
			if _, err := repo.FindRoleByName(ctx, name); err != nil {
				if errors.Is(err, domain.ErrRoleNotFound) {
					return domain.ErrConfiguration
				}
				return err
			}
		}

		now := s.now().UTC()
		user, err := repo.CreateUser(ctx, &domain.User{
			Email:        email,
			PasswordHash: s.passwords.Hash(password),
			Roles:        []string{domain.DefaultRole, domain.RoleAdmin},
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}

		if err := repo.AppendAuditLog(ctx, &domain.AuditEntry{
			Action: domain.ActionBootstrapAdmin,
			Target: domain.UserTarget(user.ID),
		}); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}

	if created {
		s.log.Info().Msg("bootstrap administrator created")
	}
	return created, nil
}
