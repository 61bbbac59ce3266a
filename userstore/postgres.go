// Package userstore is the Postgres-backed CredentialStore. Duplicate
// detection rides on the unique index over lower(email) inside the insert
// transaction, never on a prior existence check.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/invozo/authcore"
)

// Schema is the reference DDL for the users table. Migration tooling is
// the embedding application's concern.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id             UUID PRIMARY KEY,
    email          TEXT NOT NULL,
    password_hash  TEXT NOT NULL,
    role           TEXT NOT NULL DEFAULT 'member',
    first_name     TEXT NOT NULL DEFAULT '',
    last_name      TEXT NOT NULL DEFAULT '',
    is_active      BOOLEAN NOT NULL DEFAULT TRUE,
    email_verified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_login_at  TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS users_email_unique ON users (lower(email));
`

const uniqueViolation = "23505"

type userRow struct {
	ID            string       `db:"id"`
	Email         string       `db:"email"`
	PasswordHash  string       `db:"password_hash"`
	Role          string       `db:"role"`
	FirstName     string       `db:"first_name"`
	LastName      string       `db:"last_name"`
	IsActive      bool         `db:"is_active"`
	EmailVerified bool         `db:"email_verified"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
	LastLoginAt   sql.NullTime `db:"last_login_at"`
}

func (r *userRow) toUser() *authcore.User {
	u := &authcore.User{
		ID:            r.ID,
		Email:         r.Email,
		PasswordHash:  r.PasswordHash,
		Role:          r.Role,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		IsActive:      r.IsActive,
		EmailVerified: r.EmailVerified,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.LastLoginAt.Valid {
		ts := r.LastLoginAt.Time
		u.LastLoginAt = &ts
	}
	return u
}

// Store implements authcore.CredentialStore over Postgres. The *sqlx.DB
// is injected; its lifecycle belongs to the process entry point.
type Store struct {
	db *sqlx.DB
}

// New creates a Store over db.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `id, email, password_hash, role, first_name, last_name,
	is_active, email_verified, created_at, updated_at, last_login_at`

// FindByEmail looks a user up by normalized email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+selectColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, fmt.Errorf("find by email: %w", err)
	}
	return row.toUser(), nil
}

// FindByID looks a user up by ID.
func (s *Store) FindByID(ctx context.Context, id string) (*authcore.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+selectColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authcore.ErrUserNotFound
		}
		return nil, fmt.Errorf("find by id: %w", err)
	}
	return row.toUser(), nil
}

// CreateIfAbsent inserts a new user inside a transaction. A concurrent
// insert of the same email loses against the unique index and surfaces as
// authcore.ErrDuplicateEmail; there is no check-then-insert window.
func (s *Store) CreateIfAbsent(ctx context.Context, input authcore.NewUserInput) (*authcore.User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row userRow
	err = tx.GetContext(ctx, &row, `
		INSERT INTO users (id, email, password_hash, role, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+selectColumns,
		uuid.NewString(), input.Email, input.PasswordHash, input.Role,
		input.FirstName, input.LastName)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, authcore.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return row.toUser(), nil
}

// SetPasswordHash rotates the stored hash.
func (s *Store) SetPasswordHash(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	return requireOneRow(res)
}

// SetLastLogin stamps the last successful login.
func (s *Store) SetLastLogin(ctx context.Context, id string, ts time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, id, ts)
	if err != nil {
		return fmt.Errorf("set last login: %w", err)
	}
	return requireOneRow(res)
}

// SetEmailVerified flips the verification flag.
func (s *Store) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email_verified = $2, updated_at = now() WHERE id = $1`, id, verified)
	if err != nil {
		return fmt.Errorf("set email verified: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}
