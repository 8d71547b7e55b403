package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/rbac-authz/auth-api/internal/core/domain"
	"github.com/rbac-authz/auth-api/internal/core/ports"
)

const (
	usersCollection = "users"
	rolesCollection = "roles"
	auditCollection = "audit_logs"
)

var _ ports.Store = (*AuthRepository)(nil)

// AuthRepository stores users, roles and the audit trail. Multi-document
// atomicity needs a replica set or sharded cluster.
type AuthRepository struct {
	db    *mongo.Database
	users *mongo.Collection
	roles *mongo.Collection
	audit *mongo.Collection
}

func NewAuthRepository(db *mongo.Database) *AuthRepository {
	return &AuthRepository{
		db:    db,
		users: db.Collection(usersCollection),
		roles: db.Collection(rolesCollection),
		audit: db.Collection(auditCollection),
	}
}

type mongoUser struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	Roles        []string           `bson:"roles"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

type mongoRole struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	CreatedAt time.Time          `bson:"created_at"`
}

type mongoAuditEntry struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ActorUserID *string            `bson:"actor_user_id"`
	Action      string             `bson:"action"`
	Target      string             `bson:"target"`
	Timestamp   time.Time          `bson:"timestamp"`
}

// EnsureIndexes creates the unique keys the store relies on.
func (r *AuthRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users index: %w", err)
	}
	if _, err := r.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("roles index: %w", err)
	}
	if _, err := r.audit.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	}); err != nil {
		return fmt.Errorf("audit index: %w", err)
	}
	return nil
}

// RunAtomic runs fn in a snapshot transaction. The driver retries fn on
// transient errors such as a write conflict with a concurrent promotion, so
// fn must be safe to run more than once.
func (r *AuthRepository) RunAtomic(ctx context.Context, fn ports.AtomicFunc) error {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, r)
	}, txOpts)
	return err
}

func (r *AuthRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	doc := mongoUser{
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Roles:        user.RoleNames(),
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}

	res, err := r.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return toDomainUser(doc), nil
}

func (r *AuthRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findUser(ctx, bson.M{"email": email})
}

func (r *AuthRepository) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return r.findUser(ctx, bson.M{"_id": oid})
}

func (r *AuthRepository) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var mu mongoUser
	if err := r.users.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return toDomainUser(mu), nil
}

func (r *AuthRepository) SaveUser(ctx context.Context, user *domain.User) error {
	oid, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		return domain.ErrUserNotFound
	}

	res, err := r.users.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"roles":      user.RoleNames(),
			"updated_at": user.UpdatedAt.UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *AuthRepository) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var mr mongoRole
	if err := r.roles.FindOne(ctx, bson.M{"name": name}).Decode(&mr); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return &domain.Role{ID: mr.ID.Hex(), Name: mr.Name, CreatedAt: mr.CreatedAt}, nil
}

func (r *AuthRepository) EnsureRoles(ctx context.Context, names []string) error {
	now := time.Now().UTC()
	for _, name := range names {
		_, err := r.roles.UpdateOne(ctx,
			bson.M{"name": name},
			bson.M{"$setOnInsert": bson.M{"name": name, "created_at": now}},
			options.Update().SetUpsert(true),
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
	doc := mongoAuditEntry{
		ActorUserID: entry.ActorUserID,
		Action:      entry.Action,
		Target:      entry.Target,
		Timestamp:   entry.Timestamp,
	}

	res, err := r.audit.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		entry.ID = oid.Hex()
	}
	return nil
}

func (r *AuthRepository) ListAuditLogs(ctx context.Context) ([]*domain.AuditEntry, error) {
	// _id breaks ties between entries written in the same millisecond.
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})

	cur, err := r.audit.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer cur.Close(ctx)

	entries := make([]*domain.AuditEntry, 0)
	for cur.Next(ctx) {
		var doc mongoAuditEntry
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, toDomainAuditEntry(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return entries, nil
}

func toDomainUser(mu mongoUser) *domain.User {
	roles := mu.Roles
	if roles == nil {
		roles = []string{}
	}
	return &domain.User{
		ID:           mu.ID.Hex(),
		Email:        mu.Email,
		PasswordHash: mu.PasswordHash,
		Roles:        roles,
		CreatedAt:    mu.CreatedAt.UTC(),
		UpdatedAt:    mu.UpdatedAt.UTC(),
	}
}

func toDomainAuditEntry(doc mongoAuditEntry) *domain.AuditEntry {
	return &domain.AuditEntry{
		ID:          doc.ID.Hex(),
		ActorUserID: doc.ActorUserID,
		Action:      doc.Action,
		Target:      doc.Target,
		Timestamp:   doc.Timestamp.UTC(),
	}
}
