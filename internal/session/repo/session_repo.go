package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
)

type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo { return &Repo{db: db} }

func (r *Repo) DB() *sqlx.DB { return r.db }

// EnsureTable creates sessions. The partial unique index keeps at most one
// open session per course. Requires courses and users.
func (r *Repo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
  id BIGINT PRIMARY KEY,
  course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  opened_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
  opened_at TIMESTAMP NOT NULL,
  closed_at TIMESTAMP
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_sessions_open_course ON sessions(course_id) WHERE closed_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_course ON sessions(course_id)`,
	}
	for _, ddl := range stmts {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

const selectSession = `SELECT id, course_id, opened_by, opened_at, closed_at FROM sessions`

func (r *Repo) Insert(ctx context.Context, s *entity.Session) error {
	const q = `INSERT INTO sessions (id, course_id, opened_by, opened_at, closed_at)
		VALUES (:id, :course_id, :opened_by, :opened_at, :closed_at)`
	_, err := r.db.NamedExecContext(ctx, q, s)
	return err
}

// Get returns a session or sql.ErrNoRows. lock is a row-lock suffix from
// database.LockUpdate / LockShared, or "".
func Get(ctx context.Context, q sqlx.ExtContext, id int64, lock string) (*entity.Session, error) {
	var s entity.Session
	if err := sqlx.GetContext(ctx, q, &s, q.Rebind(selectSession+` WHERE id = ?`+lock), id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*entity.Session, error) {
	return Get(ctx, r.db, id, "")
}

// GetForUpdate loads a session inside tx with an exclusive row lock.
func GetForUpdate(ctx context.Context, tx *sqlx.Tx, id int64) (*entity.Session, error) {
	return Get(ctx, tx, id, database.LockUpdate(tx.DriverName()))
}

// OpenForCourse returns the course's open session or sql.ErrNoRows.
func (r *Repo) OpenForCourse(ctx context.Context, courseID int64) (*entity.Session, error) {
	var s entity.Session
	q := r.db.Rebind(selectSession + ` WHERE course_id = ? AND closed_at IS NULL`)
	if err := r.db.GetContext(ctx, &s, q, courseID); err != nil {
		return nil, err
	}
	return &s, nil
}

// CourseTeacher returns the teacher of a course, nil when unassigned.
func CourseTeacher(ctx context.Context, q sqlx.ExtContext, courseID int64) (*int64, error) {
	var teacherID *int64
	if err := sqlx.GetContext(ctx, q, &teacherID, q.Rebind(`SELECT teacher_id FROM courses WHERE id = ?`), courseID); err != nil {
		return nil, err
	}
	return teacherID, nil
}

// Close marks an open session closed; false when it was not open.
func Close(ctx context.Context, tx *sqlx.Tx, id int64, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE sessions SET closed_at = ? WHERE id = ? AND closed_at IS NULL`), at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const activeColumns = `SELECT s.id AS session_id, s.course_id, c.code AS course_code, c.name AS course_name, s.opened_at`

const attendeeCount = `(SELECT COUNT(*) FROM attendance_records a WHERE a.session_id = s.id) AS attendee_count`

// ListOpen returns every open session with attendee counts.
func (r *Repo) ListOpen(ctx context.Context) ([]entity.ActiveView, error) {
	q := activeColumns + `, ` + attendeeCount + `
		FROM sessions s JOIN courses c ON c.id = s.course_id
		WHERE s.closed_at IS NULL ORDER BY s.opened_at DESC, s.id DESC`
	return r.listActive(ctx, q)
}

// ListOpenByTeacher returns open sessions of the teacher's courses.
func (r *Repo) ListOpenByTeacher(ctx context.Context, teacherID int64) ([]entity.ActiveView, error) {
	q := activeColumns + `, ` + attendeeCount + `
		FROM sessions s JOIN courses c ON c.id = s.course_id
		WHERE s.closed_at IS NULL AND c.teacher_id = ? ORDER BY s.opened_at DESC, s.id DESC`
	return r.listActive(ctx, q, teacherID)
}

// ListOpenForStudent returns open sessions of the student's enrolled
// courses, flagging the ones already joined.
func (r *Repo) ListOpenForStudent(ctx context.Context, studentID int64) ([]entity.ActiveView, error) {
	q := activeColumns + `,
		EXISTS (SELECT 1 FROM attendance_records a WHERE a.session_id = s.id AND a.student_id = ?) AS joined
		FROM sessions s
		JOIN courses c ON c.id = s.course_id
		JOIN enrollments e ON e.course_id = s.course_id AND e.student_id = ?
		WHERE s.closed_at IS NULL ORDER BY s.opened_at DESC, s.id DESC`
	return r.listActive(ctx, q, studentID, studentID)
}

func (r *Repo) listActive(ctx context.Context, q string, args ...any) ([]entity.ActiveView, error) {
	out := []entity.ActiveView{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return out, nil
}
