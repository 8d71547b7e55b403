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

// PromotionService grants the admin role and records the grant in the audit
// trail as a single atomic unit.
type PromotionService struct {
	store ports.Store
	gate  *Gate
	lock  ports.PromotionLocker
	now   func() time.Time
	log   zerolog.Logger
}

// NewPromotionService builds the workflow. lock may be nil, in which case
// serialization relies on the store's transaction isolation alone.
func NewPromotionService(store ports.Store, gate *Gate, lock ports.PromotionLocker, log zerolog.Logger) *PromotionService {
	return &PromotionService{store: store, gate: gate, lock: lock, now: time.Now, log: log}
}

// Promote makes targetUserID an admin on behalf of the caller holding
// actorToken. Promoting an existing admin is a no-op reported as success.
func (s *PromotionService) Promote(ctx context.Context, actorToken, targetUserID string) (*ports.PromotionResult, error) {
	actor, err := s.gate.Authorize(ctx, actorToken, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}

	if s.lock != nil {
		release, err := s.lock.Acquire(ctx, targetUserID)
		if err != nil {
			s.log.Error().Err(err).Str("target_user_id", targetUserID).Msg("promotion lock unavailable")
			return nil, domain.ErrPromotionFailed
		}
		defer release()
	}

	var result *ports.PromotionResult
	err = s.store.RunAtomic(ctx, func(ctx context.Context, repo ports.AuthRepository) error {
		target, err := repo.FindUserByID(ctx, targetUserID)
		if err != nil {
			return err
		}

		if _, err := repo.FindRoleByName(ctx, domain.RoleAdmin); err != nil {
			if errors.Is(err, domain.ErrRoleNotFound) {
				return domain.ErrConfiguration
			}
			return err
		}

		if !target.AddRole(domain.RoleAdmin) {
			result = &ports.PromotionResult{UserID: target.ID, Roles: target.RoleNames(), AlreadyAdmin: true}
			return nil
		}

		target.UpdatedAt = s.now().UTC()
		if err := repo.SaveUser(ctx, target); err != nil {
			return fmt.Errorf("save user: %w", err)
		}

		actorID := actor.ID
		entry := &domain.AuditEntry{
			ActorUserID: &actorID,
			Action:      domain.ActionPromoteUser,
			Target:      domain.UserTarget(target.ID),
		}
		if err := repo.AppendAuditLog(ctx, entry); err != nil {
			return fmt.Errorf("append audit log: %w", err)
		}

		result = &ports.PromotionResult{UserID: target.ID, Roles: target.RoleNames()}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUserNotFound):
		return nil, domain.ErrUserNotFound
	case errors.Is(err, domain.ErrConfiguration):
		s.log.Error().Str("role", domain.RoleAdmin).Msg("admin role missing, seed roles not applied")
		return nil, domain.ErrConfiguration
	default:
		s.log.Error().Err(err).
			Str("actor_user_id", actor.ID).
			Str("target_user_id", targetUserID).
			Msg("promotion rolled back")
		return nil, domain.ErrPromotionFailed
	}

	if result.AlreadyAdmin {
		s.log.Info().Str("target_user_id", result.UserID).Msg("user already admin, nothing to do")
	} else {
		s.log.Info().
			Str("actor_user_id", actor.ID).
			Str("target_user_id", result.UserID).
			Msg("user promoted to admin")
	}
	return result, nil
}
