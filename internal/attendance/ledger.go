// Package attendance is the append-only ledger of session joins.
package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/repo"
	courserepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/course/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

var (
	ErrAlreadyJoined = apperr.New(apperr.KindAlreadyJoined, "already joined this session")
	ErrSessionClosed = apperr.New(apperr.KindSessionNotActive, "session is not active")
	ErrNotEnrolled   = apperr.New(apperr.KindNotEnrolled, "not enrolled in this course")
)

// Ledger writes and reads attendance records. The (session, student)
// unique key in the store is the only authority for exactly-once joins.
type Ledger struct {
	repo *repo.Repo
	now  func() time.Time
}

func NewLedger(db *sqlx.DB) *Ledger {
	return &Ledger{repo: repo.NewRepo(db), now: time.Now}
}

// Record appends a record for the student. In one transaction it checks
// the session is still open (locking it against a concurrent close), that
// the enrollment still exists, and inserts; a duplicate is ErrAlreadyJoined.
func (l *Ledger) Record(ctx context.Context, sessionID, studentID int64, verified bool) (*entity.Record, error) {
	rec := &entity.Record{
		ID:        utilities.NewID(),
		SessionID: sessionID,
		StudentID: studentID,
		Verified:  verified,
		JoinedAt:  l.now().UTC(),
	}
	err := database.WithTx(ctx, l.repo.DB(), func(tx *sqlx.Tx) error {
		courseID, err := repo.LockOpenSession(ctx, tx, sessionID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionClosed
		}
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		enrolled, err := courserepo.IsEnrolled(ctx, tx, studentID, courseID)
		if err != nil {
			return fmt.Errorf("check enrollment: %w", err)
		}
		if !enrolled {
			return ErrNotEnrolled
		}
		if err := repo.Insert(ctx, tx, rec); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAlreadyJoined
			}
			return fmt.Errorf("insert record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CountFor returns the number of records in the session.
func (l *Ledger) CountFor(ctx context.Context, sessionID int64) (int, error) {
	return repo.Count(ctx, l.repo.DB(), sessionID)
}

// CountTx is CountFor inside the caller's transaction.
func CountTx(ctx context.Context, tx *sqlx.Tx, sessionID int64) (int, error) {
	return repo.Count(ctx, tx, sessionID)
}

// Exists reports whether the student already joined the session.
func (l *Ledger) Exists(ctx context.Context, sessionID, studentID int64) (bool, error) {
	return l.repo.Exists(ctx, sessionID, studentID)
}

// ListForSession returns the session's attendees by join time.
func (l *Ledger) ListForSession(ctx context.Context, sessionID int64) ([]entity.Attendee, error) {
	return l.repo.ListForSession(ctx, sessionID)
}

// ListForStudent returns the student's attendance history.
func (l *Ledger) ListForStudent(ctx context.Context, studentID int64) ([]entity.Record, error) {
	return l.repo.ListForStudent(ctx, studentID)
}
