package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Row is a stored reference blob keyed by student.
type Row struct {
	StudentID int64  `db:"id"`
	Blob      []byte `db:"embedding"`
}

// Repo reads and writes the embedding column of users. The column itself
// is created by the user repo.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

// Set overwrites the student's blob. Returns false when no student row
// matched.
func (r *Repo) Set(ctx context.Context, studentID int64, blob []byte) (bool, error) {
	const q = `UPDATE users SET embedding = ? WHERE id = ? AND role = 'student'`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), blob, studentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns the blob, nil when the student has none, or sql.ErrNoRows
// when the user does not exist.
func (r *Repo) Get(ctx context.Context, studentID int64) ([]byte, error) {
	var blob []byte
	if err := r.db.GetContext(ctx, &blob, r.db.Rebind(`SELECT embedding FROM users WHERE id = ?`), studentID); err != nil {
		return nil, err
	}
	return blob, nil
}

// Clear drops the student's reference.
func (r *Repo) Clear(ctx context.Context, studentID int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE users SET embedding = NULL WHERE id = ?`), studentID)
	return err
}

// Scan returns a cursor over every stored reference in ascending student
// id order. The caller must close it.
func (r *Repo) Scan(ctx context.Context) (*sqlx.Rows, error) {
	const q = `SELECT id, embedding FROM users
		WHERE role = 'student' AND embedding IS NOT NULL ORDER BY id`
	return r.db.QueryxContext(ctx, q)
}
