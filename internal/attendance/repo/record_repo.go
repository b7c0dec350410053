package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
)

// Repo is the data access layer for attendance_records. Methods take the
// executor explicitly so the ledger can run them inside one transaction.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

func (r *Repo) DB() *sqlx.DB { return r.db }

// EnsureTable creates attendance_records. Requires sessions and users.
func (r *Repo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attendance_records (
  id BIGINT PRIMARY KEY,
  session_id BIGINT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
  student_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  verified BOOLEAN NOT NULL,
  joined_at TIMESTAMP NOT NULL,
  CONSTRAINT uq_attendance_session_student UNIQUE (session_id, student_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records(student_id)`,
	}
	for _, ddl := range stmts {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// LockOpenSession returns the course of an open session and, on
// PostgreSQL, holds a share lock on the row until q's transaction ends so
// the session cannot be closed underneath the caller. sql.ErrNoRows means
// the session is missing or already closed.
func LockOpenSession(ctx context.Context, q sqlx.ExtContext, sessionID int64) (int64, error) {
	query := `SELECT course_id FROM sessions WHERE id = ? AND closed_at IS NULL` + database.LockShared(q.DriverName())
	var courseID int64
	if err := sqlx.GetContext(ctx, q, &courseID, q.Rebind(query), sessionID); err != nil {
		return 0, err
	}
	return courseID, nil
}

func Insert(ctx context.Context, q sqlx.ExtContext, rec *entity.Record) error {
	const query = `INSERT INTO attendance_records (id, session_id, student_id, verified, joined_at)
		VALUES (:id, :session_id, :student_id, :verified, :joined_at)`
	_, err := sqlx.NamedExecContext(ctx, q, query, rec)
	return err
}

// Count returns the number of records in a session.
func Count(ctx context.Context, q sqlx.ExtContext, sessionID int64) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, q.Rebind(`SELECT COUNT(*) FROM attendance_records WHERE session_id = ?`), sessionID)
	return n, err
}

func (r *Repo) Exists(ctx context.Context, sessionID, studentID int64) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one,
		r.db.Rebind(`SELECT 1 FROM attendance_records WHERE session_id = ? AND student_id = ?`), sessionID, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListForSession returns attendees ordered by join time.
func (r *Repo) ListForSession(ctx context.Context, sessionID int64) ([]entity.Attendee, error) {
	const q = `SELECT a.id, a.session_id, a.student_id, a.verified, a.joined_at, u.full_name, u.email
		FROM attendance_records a JOIN users u ON u.id = a.student_id
		WHERE a.session_id = ? ORDER BY a.joined_at, a.id`
	out := []entity.Attendee{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), sessionID); err != nil {
		return nil, err
	}
	return out, nil
}

// ListForStudent returns a student's records, newest first.
func (r *Repo) ListForStudent(ctx context.Context, studentID int64) ([]entity.Record, error) {
	const q = `SELECT id, session_id, student_id, verified, joined_at
		FROM attendance_records WHERE student_id = ? ORDER BY joined_at DESC, id DESC`
	out := []entity.Record{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), studentID); err != nil {
		return nil, err
	}
	return out, nil
}
