package ports

import (
	"context"
	"time"

	"github.com/rbac-authz/auth-api/internal/core/domain"
)

// LoginResult is returned on a successful login.
type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	User        *domain.User
}

type AuthService interface {
	Register(ctx context.Context, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
}

// Authorizer resolves the calling identity and, optionally, checks a role.
type Authorizer interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	Authorize(ctx context.Context, token, role string) (*domain.User, error)
}

// PromotionResult describes the outcome of a promotion request.
type PromotionResult struct {
	UserID       string
	Roles        []string
	AlreadyAdmin bool
}

type PromotionService interface {
	Promote(ctx context.Context, actorToken, targetUserID string) (*PromotionResult, error)
}

type AuditService interface {
	List(ctx context.Context, actorToken string) ([]*domain.AuditEntry, error)
}
