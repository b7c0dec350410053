package course

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/course/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/course/repo"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// RoleChecker is the slice of the account service courses need.
type RoleChecker interface {
	HasRole(ctx context.Context, id int64, role userentity.Role) (bool, error)
}

var (
	ErrCourseNotFound     = apperr.New(apperr.KindNotFound, "course not found")
	ErrEnrollmentNotFound = apperr.New(apperr.KindNotFound, "enrollment not found")
	ErrCodeTaken          = apperr.New(apperr.KindConflict, "course code already exists")
	ErrAlreadyEnrolled    = apperr.New(apperr.KindConflict, "student already enrolled in course")
	ErrNotATeacher        = apperr.New(apperr.KindInvalidRequest, "teacher_id does not belong to a teacher")
	ErrNotAStudent        = apperr.New(apperr.KindInvalidRequest, "student_id does not belong to a student")
)

// Service encapsulates course and enrollment rules.
type Service struct {
	repo  *repo.Repo
	users RoleChecker
	now   func() time.Time
}

func NewService(db *sqlx.DB, users RoleChecker) *Service {
	return &Service{repo: repo.NewRepo(db), users: users, now: time.Now}
}

// Create adds a course. Codes are stored upper-cased and must be unique.
func (s *Service) Create(ctx context.Context, name, code string, teacherID *int64) (*entity.Course, error) {
	name = strings.TrimSpace(name)
	code = strings.ToUpper(strings.TrimSpace(code))
	if name == "" || code == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "name and code are required")
	}
	if teacherID != nil {
		ok, err := s.users.HasRole(ctx, *teacherID, userentity.RoleTeacher)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotATeacher
		}
	}
	c := &entity.Course{
		ID:        utilities.NewID(),
		Code:      code,
		Name:      name,
		TeacherID: teacherID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrCodeTaken
		}
		return nil, err
	}
	return c, nil
}

// Changes is a partial course update; nil fields are left alone.
// SetTeacher with a nil TeacherID unassigns the teacher.
type Changes struct {
	Name       *string
	Code       *string
	SetTeacher bool
	TeacherID  *int64
}

// Update applies ch to the course. The code stays unique and a new
// teacher must hold the teacher role.
func (s *Service) Update(ctx context.Context, id int64, ch Changes) (*entity.Course, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.Name != nil {
		c.Name = strings.TrimSpace(*ch.Name)
	}
	if ch.Code != nil {
		c.Code = strings.ToUpper(strings.TrimSpace(*ch.Code))
	}
	if c.Name == "" || c.Code == "" {
		return nil, apperr.New(apperr.KindInvalidRequest, "name and code are required")
	}
	if ch.SetTeacher {
		if ch.TeacherID != nil {
			ok, err := s.users.HasRole(ctx, *ch.TeacherID, userentity.RoleTeacher)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrNotATeacher
			}
		}
		c.TeacherID = ch.TeacherID
	}
	if err := s.repo.Update(ctx, c); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrCodeTaken
		}
		return nil, err
	}
	return c, nil
}

// Delete removes a course. Its enrollments, sessions and attendance
// records go with it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCourseNotFound
	}
	return nil
}

// Get returns a course by id.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Course, error) {
	c, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	return c, err
}

// Authorize returns the course when actor may manage it: admins always,
// teachers only for their own courses. A non-admin gets Unauthorized for
// a missing course as well, so course ids cannot be probed.
func (s *Service) Authorize(ctx context.Context, courseID int64, actor auth.Identity) (*entity.Course, error) {
	c, err := s.Get(ctx, courseID)
	if err != nil {
		if errors.Is(err, ErrCourseNotFound) && !actor.IsAdmin() {
			return nil, apperr.ErrUnauthorized
		}
		return nil, err
	}
	if actor.IsAdmin() || c.OwnedBy(actor.UserID) {
		return c, nil
	}
	return nil, apperr.ErrUnauthorized
}

// List returns the courses visible to actor.
func (s *Service) List(ctx context.Context, actor auth.Identity) ([]entity.Course, error) {
	switch actor.Role {
	case userentity.RoleAdmin:
		return s.repo.ListAll(ctx)
	case userentity.RoleTeacher:
		return s.repo.ListByTeacher(ctx, actor.UserID)
	case userentity.RoleStudent:
		return s.repo.ListByStudent(ctx, actor.UserID)
	}
	return nil, apperr.ErrUnauthorized
}

// Enroll adds a student to a course.
func (s *Service) Enroll(ctx context.Context, studentID, courseID int64) (*entity.Enrollment, error) {
	ok, err := s.users.HasRole(ctx, studentID, userentity.RoleStudent)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAStudent
	}
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	e := &entity.Enrollment{
		ID:        utilities.NewID(),
		StudentID: studentID,
		CourseID:  courseID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateEnrollment(ctx, e); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, err
	}
	return e, nil
}

func (s *Service) Unenroll(ctx context.Context, enrollmentID int64) error {
	ok, err := s.repo.DeleteEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEnrollmentNotFound
	}
	return nil
}

// Students returns the roster of a course the actor may manage.
func (s *Service) Students(ctx context.Context, courseID int64, actor auth.Identity) ([]entity.EnrolledStudent, error) {
	if _, err := s.Authorize(ctx, courseID, actor); err != nil {
		return nil, err
	}
	return s.repo.Students(ctx, courseID)
}

// IsEnrolled reports whether the student holds an enrollment in the course.
func (s *Service) IsEnrolled(ctx context.Context, studentID, courseID int64) (bool, error) {
	return s.repo.IsEnrolled(ctx, studentID, courseID)
}
