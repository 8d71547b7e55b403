package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stub store with staged transactions
// ---------------------------------------------------------------------------

type stubState struct {
	users map[string]*domain.User
	roles map[string]*domain.Role
	audit []*domain.AuditEntry
}

func (s *stubState) clone() *stubState {
	c := &stubState{
		users: make(map[string]*domain.User, len(s.users)),
		roles: make(map[string]*domain.Role, len(s.roles)),
		audit: make([]*domain.AuditEntry, len(s.audit)),
	}
	for id, u := range s.users {
		c.users[id] = cloneUser(u)
	}
	for name, r := range s.roles {
		role := *r
		c.roles[name] = &role
	}
	copy(c.audit, s.audit)
	return c
}

// stubStore serializes every RunAtomic call, which models a store with
// serializable isolation. failOn injects an error into the named repository
// operation.
type stubStore struct {
	mu      sync.Mutex
	state   *stubState
	failOn  map[string]error
	nextID  int
	auditAt time.Time

	atomicRuns int
}

func newStubStore(roles ...string) *stubStore {
	s := &stubStore{
		state: &stubState{
			users: make(map[string]*domain.User),
			roles: make(map[string]*domain.Role),
		},
		failOn:  make(map[string]error),
		auditAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, name := range roles {
		s.state.roles[name] = &domain.Role{ID: "role-" + name, Name: name}
	}
	return s
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Roles = append([]string(nil), u.Roles...)
	return &clone
}

func (s *stubStore) repo() *stubRepo {
	return &stubRepo{store: s, state: s.state}
}

func (s *stubStore) RunAtomic(ctx context.Context, fn ports.AtomicFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atomicRuns++

	tx := &stubRepo{store: s, state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *stubStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().FindUserByEmail(ctx, email)
}

func (s *stubStore) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().FindUserByID(ctx, id)
}

func (s *stubStore) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().CreateUser(ctx, user)
}

func (s *stubStore) SaveUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().SaveUser(ctx, user)
}

func (s *stubStore) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().FindRoleByName(ctx, name)
}

func (s *stubStore) EnsureRoles(ctx context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().EnsureRoles(ctx, names)
}

func (s *stubStore) AppendAuditLog(ctx context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().AppendAuditLog(ctx, entry)
}

func (s *stubStore) ListAuditLogs(ctx context.Context) ([]*domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo().ListAuditLogs(ctx)
}

// auditEntries and user read committed state for assertions.
func (s *stubStore) auditEntries() []*domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.AuditEntry(nil), s.state.audit...)
}

func (s *stubStore) user(id string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUser(s.state.users[id])
}

// stubRepo operates on one state snapshot; the caller holds store.mu.
type stubRepo struct {
	store *stubStore
	state *stubState
}

func (r *stubRepo) fail(op string) error {
	return r.store.failOn[op]
}

func (r *stubRepo) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	if err := r.fail("FindUserByEmail"); err != nil {
		return nil, err
	}
	for _, u := range r.state.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubRepo) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	if err := r.fail("FindUserByID"); err != nil {
		return nil, err
	}
	u, ok := r.state.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubRepo) CreateUser(_ context.Context, user *domain.User) (*domain.User, error) {
	if err := r.fail("CreateUser"); err != nil {
		return nil, err
	}
	for _, u := range r.state.users {
		if u.Email == user.Email {
			return nil, domain.ErrDuplicateEmail
		}
	}
	r.store.nextID++
	created := cloneUser(user)
	created.ID = fmt.Sprintf("user-%d", r.store.nextID)
	r.state.users[created.ID] = created
	return cloneUser(created), nil
}

func (r *stubRepo) SaveUser(_ context.Context, user *domain.User) error {
	if err := r.fail("SaveUser"); err != nil {
		return err
	}
	if _, ok := r.state.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	r.state.users[user.ID] = cloneUser(user)
	return nil
}

func (r *stubRepo) FindRoleByName(_ context.Context, name string) (*domain.Role, error) {
	if err := r.fail("FindRoleByName"); err != nil {
		return nil, err
	}
	role, ok := r.state.roles[name]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	clone := *role
	return &clone, nil
}

func (r *stubRepo) EnsureRoles(_ context.Context, names []string) error {
	if err := r.fail("EnsureRoles"); err != nil {
		return err
	}
	for _, name := range names {
		if _, ok := r.state.roles[name]; !ok {
			r.state.roles[name] = &domain.Role{ID: "role-" + name, Name: name}
		}
	}
	return nil
}

func (r *stubRepo) AppendAuditLog(_ context.Context, entry *domain.AuditEntry) error {
	if err := r.fail("AppendAuditLog"); err != nil {
		return err
	}
	clone := *entry
	clone.ID = fmt.Sprintf("audit-%d", len(r.state.audit)+1)
	if clone.Timestamp.IsZero() {
		r.store.auditAt = r.store.auditAt.Add(time.Second)
		clone.Timestamp = r.store.auditAt
	}
	r.state.audit = append(r.state.audit, &clone)
	return nil
}

func (r *stubRepo) ListAuditLogs(_ context.Context) ([]*domain.AuditEntry, error) {
	if err := r.fail("ListAuditLogs"); err != nil {
		return nil, err
	}
	out := append([]*domain.AuditEntry(nil), r.state.audit...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Test environment
// ---------------------------------------------------------------------------

var testArgon2Params = Argon2Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1}

type testEnv struct {
	store     *stubStore
	passwords *PasswordHasher
	tokens    *TokenService
	gate      *Gate
	auth      *AuthService
	promotion *PromotionService
	audit     *AuditService
	bootstrap *BootstrapService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newStubStore(domain.SeedRoles...)
	passwords := NewPasswordHasher(testArgon2Params)
	tokens, err := NewTokenService("test-secret-with-enough-entropy")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	log := zerolog.Nop()
	gate := NewGate(tokens, store, log)

	return &testEnv{
		store:     store,
		passwords: passwords,
		tokens:    tokens,
		gate:      gate,
		auth:      NewAuthService(store, passwords, tokens, DefaultTokenTTL, log),
		promotion: NewPromotionService(store, gate, nil, log),
		audit:     NewAuditService(store, gate),
		bootstrap: NewBootstrapService(store, passwords, log),
	}
}

// seedUser registers email and optionally grants extra roles directly in the
// store, returning the user and a fresh token.
func (e *testEnv) seedUser(t *testing.T, email string, extraRoles ...string) (*domain.User, string) {
	t.Helper()

	user, err := e.auth.Register(context.Background(), email, "pw-"+email)
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	if len(extraRoles) > 0 {
		for _, r := range extraRoles {
			user.AddRole(r)
		}
		if err := e.store.SaveUser(context.Background(), user); err != nil {
			t.Fatalf("save %s: %v", email, err)
		}
	}

	login, err := e.auth.Login(context.Background(), email, "pw-"+email)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return user, login.AccessToken
}
