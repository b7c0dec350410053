package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/course/entity"
)

// Repo is the data access layer for courses and enrollments.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable creates courses and enrollments. Requires users.
func (r *Repo) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS courses (
  id BIGINT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  teacher_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
  created_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_courses_teacher ON courses(teacher_id)`,
		`CREATE TABLE IF NOT EXISTS enrollments (
  id BIGINT PRIMARY KEY,
  student_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  created_at TIMESTAMP NOT NULL,
  UNIQUE (student_id, course_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments(course_id)`,
	}
	for _, ddl := range stmts {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

const selectCourse = `SELECT id, code, name, teacher_id, created_at FROM courses`

func (r *Repo) Create(ctx context.Context, c *entity.Course) error {
	const q = `INSERT INTO courses (id, code, name, teacher_id, created_at)
		VALUES (:id, :code, :name, :teacher_id, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, c)
	return err
}

// GetByID returns a course or sql.ErrNoRows.
func (r *Repo) GetByID(ctx context.Context, id int64) (*entity.Course, error) {
	var c entity.Course
	if err := r.db.GetContext(ctx, &c, r.db.Rebind(selectCourse+` WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return &c, nil
}

// Update writes code, name and teacher of c.
func (r *Repo) Update(ctx context.Context, c *entity.Course) error {
	const q = `UPDATE courses SET code = :code, name = :name, teacher_id = :teacher_id WHERE id = :id`
	_, err := r.db.NamedExecContext(ctx, q, c)
	return err
}

// Delete removes a course with its enrollments, sessions and records;
// false when it did not exist.
func (r *Repo) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM courses WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) ListAll(ctx context.Context) ([]entity.Course, error) {
	return r.list(ctx, selectCourse+` ORDER BY code`)
}

func (r *Repo) ListByTeacher(ctx context.Context, teacherID int64) ([]entity.Course, error) {
	return r.list(ctx, selectCourse+` WHERE teacher_id = ? ORDER BY code`, teacherID)
}

func (r *Repo) ListByStudent(ctx context.Context, studentID int64) ([]entity.Course, error) {
	const q = `SELECT c.id, c.code, c.name, c.teacher_id, c.created_at
		FROM courses c JOIN enrollments e ON e.course_id = c.id
		WHERE e.student_id = ? ORDER BY c.code`
	return r.list(ctx, q, studentID)
}

func (r *Repo) list(ctx context.Context, q string, args ...any) ([]entity.Course, error) {
	out := []entity.Course{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) CreateEnrollment(ctx context.Context, e *entity.Enrollment) error {
	const q = `INSERT INTO enrollments (id, student_id, course_id, created_at)
		VALUES (:id, :student_id, :course_id, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, e)
	return err
}

// DeleteEnrollment removes an enrollment; false when it did not exist.
func (r *Repo) DeleteEnrollment(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM enrollments WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Students lists a course roster ordered by name.
func (r *Repo) Students(ctx context.Context, courseID int64) ([]entity.EnrolledStudent, error) {
	const q = `SELECT e.id AS enrollment_id, u.id AS student_id, u.full_name, u.email,
			u.embedding IS NOT NULL AS has_face, e.created_at AS enrolled_at
		FROM enrollments e JOIN users u ON u.id = e.student_id
		WHERE e.course_id = ? ORDER BY u.full_name, u.id`
	out := []entity.EnrolledStudent{}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), courseID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	return IsEnrolled(ctx, r.db, studentID, courseID)
}

// IsEnrolled checks enrollment through q so callers can run it inside
// their own transaction.
func IsEnrolled(ctx context.Context, q sqlx.ExtContext, studentID, courseID int64) (bool, error) {
	var one int
	err := sqlx.GetContext(ctx, q, &one,
		q.Rebind(`SELECT 1 FROM enrollments WHERE student_id = ? AND course_id = ?`), studentID, courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
