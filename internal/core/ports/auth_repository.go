package ports

import (
	"context"

	"github.com/rbac-authz/auth-api/internal/core/domain"
)

// AuthRepository defines user, role and audit persistence.
type AuthRepository interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	// SaveUser persists the user's role set.
	SaveUser(ctx context.Context, user *domain.User) error

	FindRoleByName(ctx context.Context, name string) (*domain.Role, error)
	// EnsureRoles creates any of the named roles that do not exist yet.
	EnsureRoles(ctx context.Context, names []string) error

	AppendAuditLog(ctx context.Context, entry *domain.AuditEntry) error
	// ListAuditLogs returns every entry, newest first.
	ListAuditLogs(ctx context.Context) ([]*domain.AuditEntry, error)
}

// AtomicFunc runs inside a storage transaction. Every call made through repo
// commits together when it returns nil and is rolled back otherwise.
type AtomicFunc func(ctx context.Context, repo AuthRepository) error

// Store is the storage port consumed by the core.
type Store interface {
	AuthRepository
	RunAtomic(ctx context.Context, fn AtomicFunc) error
}

// PromotionLocker serializes promotions of the same target across
// processes. Implementations must be safe for concurrent use.
type PromotionLocker interface {
	// Acquire returns a release func once the lock is held.
	Acquire(ctx context.Context, targetUserID string) (release func(), err error)
}
