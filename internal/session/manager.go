// Package session implements the per-course attendance session lifecycle.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	courseentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/course/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session/repo"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

var (
	ErrSessionNotFound      = apperr.New(apperr.KindNotFound, "session not found")
	ErrSessionAlreadyActive = apperr.New(apperr.KindSessionAlreadyActive, "course already has an active session")
	ErrSessionNotActive     = apperr.New(apperr.KindSessionNotActive, "session is not active")
)

// CourseAuthorizer resolves a course the actor is allowed to manage.
type CourseAuthorizer interface {
	Authorize(ctx context.Context, courseID int64, actor auth.Identity) (*courseentity.Course, error)
}

// Manager owns session state transitions. It keeps no session state in
// memory; every decision is made against the store.
type Manager struct {
	repo    *repo.Repo
	courses CourseAuthorizer
	ledger  *attendance.Ledger
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewManager(db *sqlx.DB, courses CourseAuthorizer, ledger *attendance.Ledger, m *metrics.Metrics, logger *zap.SugaredLogger) *Manager {
	return &Manager{repo: repo.NewRepo(db), courses: courses, ledger: ledger, metrics: m, logger: logger, now: time.Now}
}

// Start opens a session for the course. Of two concurrent starts on the
// same course exactly one succeeds; the store's partial unique index
// decides.
func (m *Manager) Start(ctx context.Context, courseID int64, actor auth.Identity) (*entity.Session, error) {
	if _, err := m.courses.Authorize(ctx, courseID, actor); err != nil {
		return nil, err
	}
	if _, err := m.repo.OpenForCourse(ctx, courseID); err == nil {
		return nil, ErrSessionAlreadyActive
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check open session: %w", err)
	}
	opener := actor.UserID
	s := &entity.Session{
		ID:       utilities.NewID(),
		CourseID: courseID,
		OpenedBy: &opener,
		OpenedAt: m.now().UTC(),
	}
	if err := m.repo.Insert(ctx, s); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrSessionAlreadyActive
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}
	m.metrics.SessionTransition("start")
	m.logger.Infow("session started", "session_id", s.ID, "course_id", courseID, "actor", actor.UserID)
	return s, nil
}

// End closes an open session and returns how many students attended. The
// count is taken in the closing transaction, after every join that got in
// before the close.
func (m *Manager) End(ctx context.Context, sessionID int64, actor auth.Identity) (*entity.Closed, error) {
	var out entity.Closed
	err := database.WithTx(ctx, m.repo.DB(), func(tx *sqlx.Tx) error {
		s, err := repo.GetForUpdate(ctx, tx, sessionID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if !actor.IsAdmin() {
			teacherID, err := repo.CourseTeacher(ctx, tx, s.CourseID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("load course: %w", err)
			}
			if teacherID == nil || *teacherID != actor.UserID {
				return apperr.ErrUnauthorized
			}
		}
		if !s.IsOpen() {
			return ErrSessionNotActive
		}
		closedAt := m.now().UTC()
		ok, err := repo.Close(ctx, tx, sessionID, closedAt)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		if !ok {
			return ErrSessionNotActive
		}
		s.ClosedAt = &closedAt
		n, err := attendance.CountTx(ctx, tx, sessionID)
		if err != nil {
			return fmt.Errorf("count attendance: %w", err)
		}
		out = entity.Closed{Session: s, AttendeeCount: n}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.metrics.SessionTransition("end")
	m.logger.Infow("session ended", "session_id", sessionID, "attendees", out.AttendeeCount, "actor", actor.UserID)
	return &out, nil
}

// Get returns a session by id.
func (m *Manager) Get(ctx context.Context, sessionID int64) (*entity.Session, error) {
	s, err := m.repo.GetByID(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return s, nil
}

// ListActive returns the open sessions visible to the actor.
func (m *Manager) ListActive(ctx context.Context, actor auth.Identity) ([]entity.ActiveView, error) {
	switch actor.Role {
	case userentity.RoleStudent:
		return m.repo.ListOpenForStudent(ctx, actor.UserID)
	case userentity.RoleTeacher:
		return m.repo.ListOpenByTeacher(ctx, actor.UserID)
	case userentity.RoleAdmin:
		return m.repo.ListOpen(ctx)
	}
	return nil, apperr.ErrUnauthorized
}

// Details returns a session and its attendees for the course owner or an
// admin.
func (m *Manager) Details(ctx context.Context, sessionID int64, actor auth.Identity) (*entity.Details, error) {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c, err := m.courses.Authorize(ctx, s.CourseID, actor)
	if err != nil {
		return nil, err
	}
	attendees, err := m.ledger.ListForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return &entity.Details{
		ID:         s.ID,
		CourseID:   s.CourseID,
		CourseCode: c.Code,
		CourseName: c.Name,
		State:      s.State(),
		OpenedAt:   s.OpenedAt,
		ClosedAt:   s.ClosedAt,
		Attendees:  attendees,
	}, nil
}
