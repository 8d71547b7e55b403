package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ ports.Store = (*AuthRepository)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AuthRepository stores users, roles and the audit trail in Postgres.
// Inside RunAtomic the user row read by FindUserByID is locked until commit.
type AuthRepository struct {
	db    *sql.DB
	q     querier
	inTx  bool
	newID func() string
}

func NewAuthRepository(db *sql.DB) *AuthRepository {
	return &AuthRepository{db: db, q: db, newID: newID}
}

func (r *AuthRepository) RunAtomic(ctx context.Context, fn ports.AtomicFunc) error {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txRepo := &AuthRepository{db: r.db, q: tx, inTx: true, newID: r.newID}
	if err := fn(ctx, txRepo); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *AuthRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	created := &domain.User{
		ID:           r.newID(),
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Roles:        user.RoleNames(),
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}

	err := r.RunAtomic(ctx, func(ctx context.Context, repo ports.AuthRepository) error {
		tx := repo.(*AuthRepository)
		_, err := tx.q.ExecContext(ctx,
			`insert into users(id, email, password_hash, created_at, updated_at) values($1,$2,$3,$4,$5)`,
			created.ID, created.Email, created.PasswordHash, created.CreatedAt, created.UpdatedAt,
		)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
				return domain.ErrDuplicateEmail
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return tx.insertRoles(ctx, created.ID, created.Roles)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *AuthRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findUser(ctx,
		`select id, email, password_hash, created_at, updated_at from users where email = $1`, email)
}

func (r *AuthRepository) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `select id, email, password_hash, created_at, updated_at from users where id = $1`
	if r.inTx {
		query += ` for update`
	}
	return r.findUser(ctx, query, id)
}

func (r *AuthRepository) findUser(ctx context.Context, query string, arg string) (*domain.User, error) {
	var u domain.User
	err := r.q.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	roles, err := r.userRoles(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func (r *AuthRepository) userRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`select role_name from user_roles where user_id = $1 order by role_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	defer rows.Close()

	roles := make([]string, 0, 2)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}
	return roles, nil
}

// SaveUser replaces the stored role set with user.Roles.
func (r *AuthRepository) SaveUser(ctx context.Context, user *domain.User) error {
	return r.RunAtomic(ctx, func(ctx context.Context, repo ports.AuthRepository) error {
		tx := repo.(*AuthRepository)

		res, err := tx.q.ExecContext(ctx,
			`update users set updated_at = $2 where id = $1`, user.ID, user.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return domain.ErrUserNotFound
		}

		if _, err := tx.q.ExecContext(ctx, `delete from user_roles where user_id = $1`, user.ID); err != nil {
			return fmt.Errorf("clear user roles: %w", err)
		}
		return tx.insertRoles(ctx, user.ID, user.Roles)
	})
}

func (r *AuthRepository) insertRoles(ctx context.Context, userID string, roles []string) error {
	for _, name := range roles {
		_, err := r.q.ExecContext(ctx,
			`insert into user_roles(user_id, role_name) values($1,$2) on conflict do nothing`, userID, name)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: %s", domain.ErrRoleNotFound, name)
			}
			return fmt.Errorf("assign role %s: %w", name, err)
		}
	}
	return nil
}

func (r *AuthRepository) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.q.QueryRowContext(ctx,
		`select id, name, created_at from roles where name = $1`, name).
		Scan(&role.ID, &role.Name, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find role: %w", err)
	}
	return &role, nil
}

func (r *AuthRepository) EnsureRoles(ctx context.Context, names []string) error {
	now := time.Now().UTC()
	for _, name := range names {
		_, err := r.q.ExecContext(ctx,
			`insert into roles(id, name, created_at) values($1,$2,$3) on conflict (name) do nothing`,
			r.newID(), name, now,
		)
		if err != nil {
			return fmt.Errorf("ensure role %s: %w", name, err)
		}
	}
	return nil
}

func (r *AuthRepository) AppendAuditLog(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	id := r.newID()

	var actor sql.NullString
	if entry.ActorUserID != nil {
		actor = sql.NullString{String: *entry.ActorUserID, Valid: true}
	}

	_, err := r.q.ExecContext(ctx,
		`insert into audit_logs(id, actor_user_id, action, target, created_at) values($1,$2,$3,$4,$5)`,
		id, actor, entry.Action, entry.Target, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	entry.ID = id
	return nil
}

func (r *AuthRepository) ListAuditLogs(ctx context.Context) ([]*domain.AuditEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`select id, actor_user_id, action, target, created_at from audit_logs order by created_at desc, id desc`)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e     domain.AuditEntry
			actor sql.NullString
		)
		if err := rows.Scan(&e.ID, &actor, &e.Action, &e.Target, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if actor.Valid {
			id := actor.String
			e.ActorUserID = &id
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return entries, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
