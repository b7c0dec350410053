package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// RefreshSession is a persisted refresh token, keyed by the token's hash.
type RefreshSession struct {
	TokenHash string    `db:"token_hash"`
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

// EnsureTable creates refresh_sessions if it does not already exist.
func (r *RefreshRepo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS refresh_sessions (
  token_hash TEXT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  expires_at TIMESTAMP NOT NULL,
  created_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_sessions_user ON refresh_sessions(user_id)`,
	}
	for _, ddl := range stmts {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (r *RefreshRepo) Save(ctx context.Context, s RefreshSession) error {
	const q = `INSERT INTO refresh_sessions (token_hash, user_id, expires_at, created_at)
		VALUES (:token_hash, :user_id, :expires_at, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, s)
	return err
}

func (r *RefreshRepo) Get(ctx context.Context, tokenHash string) (*RefreshSession, error) {
	const q = `SELECT token_hash, user_id, expires_at, created_at FROM refresh_sessions WHERE token_hash = ?`
	var s RefreshSession
	if err := r.db.GetContext(ctx, &s, r.db.Rebind(q), tokenHash); err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete removes a session and reports whether it existed, so a rotated
// token can only be consumed once.
func (r *RefreshRepo) Delete(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM refresh_sessions WHERE token_hash = ?`), tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
