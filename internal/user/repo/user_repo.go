package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
)

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// The embedding column is owned by the embedding store.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL,
  role TEXT NOT NULL,
  approved BOOLEAN NOT NULL DEFAULT FALSE,
  password_hash TEXT NOT NULL,
  embedding BYTEA,
  created_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
	}
	for _, ddl := range stmts {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

const selectUser = `SELECT id, email, full_name, role, approved, password_hash,
		embedding IS NOT NULL AS has_face, created_at
	FROM users`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, email, full_name, role, approved, password_hash, created_at)
		VALUES (:id, :email, :full_name, :role, :approved, :password_hash, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, u)
	return err
}

// GetByEmail returns a user matched by email or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var row entity.User
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(selectUser+` WHERE email = ?`), email); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	var row entity.User
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(selectUser+` WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetMinimalAuthView returns only the fields needed for token claim hydration.
func (r *UserRepo) GetMinimalAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error) {
	const q = `SELECT id, email, full_name, role, embedding IS NOT NULL AS has_face FROM users WHERE id = ?`
	var v entity.MinimalAuthView
	if err := r.db.GetContext(ctx, &v, r.db.Rebind(q), id); err != nil {
		return nil, err
	}
	return &v, nil
}

// List returns users, optionally filtered by role, newest first.
func (r *UserRepo) List(ctx context.Context, role entity.Role) ([]entity.User, error) {
	q := selectUser
	var args []any
	if role != "" {
		q += ` WHERE role = ?`
		args = append(args, role)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	out := []entity.User{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Approve marks a user approved; returns false when no such user exists.
func (r *UserRepo) Approve(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET approved = TRUE WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasRole reports whether the user exists with the given role.
func (r *UserRepo) HasRole(ctx context.Context, id int64, role entity.Role) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, r.db.Rebind(`SELECT 1 FROM users WHERE id = ? AND role = ?`), id, role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
