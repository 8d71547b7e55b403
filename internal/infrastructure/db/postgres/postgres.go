package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultTimeout = 10 * time.Second

// Config captures the settings for opening the Postgres pool.
type Config struct {
	DSN     string
	Timeout time.Duration
}

// Connect opens a pgx-backed *sql.DB and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

var schema = []string{
	`create table if not exists users (
		id            text primary key,
		email         text not null unique,
		password_hash text not null,
		created_at    timestamptz not null,
		updated_at    timestamptz not null
	)`,
	`create table if not exists roles (
		id         text primary key,
		name       text not null unique,
		created_at timestamptz not null
	)`,
	`create table if not exists user_roles (
		user_id   text not null references users(id) on delete cascade,
		role_name text not null references roles(name),
		primary key (user_id, role_name)
	)`,
	`create table if not exists audit_logs (
		id            text primary key,
		actor_user_id text references users(id),
		action        text not null,
		target        text not null,
		created_at    timestamptz not null
	)`,
	`create index if not exists audit_logs_created_at_idx on audit_logs (created_at desc, id desc)`,
}

// EnsureSchema creates the tables the store needs when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
