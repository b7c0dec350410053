package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/testutil"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

type fixture struct {
	db      *sqlx.DB
	ledger  *Ledger
	course  int64
	student int64
	session int64
}

func openSession(t *testing.T, db *sqlx.DB, courseID int64) int64 {
	t.Helper()
	id := utilities.NewID()
	_, err := db.Exec(db.Rebind(`INSERT INTO sessions (id, course_id, opened_at) VALUES (?, ?, ?)`), id, courseID, time.Now().UTC())
	require.NoError(t, err)
	return id
}

func closeSession(t *testing.T, db *sqlx.DB, id int64) {
	t.Helper()
	_, err := db.Exec(db.Rebind(`UPDATE sessions SET closed_at = ? WHERE id = ?`), time.Now().UTC(), id)
	require.NoError(t, err)
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	teacher := testutil.User(t, db, entity.RoleTeacher, "Teacher")
	student := testutil.User(t, db, entity.RoleStudent, "Student")
	course := testutil.Course(t, db, "CS101", teacher)
	testutil.Enroll(t, db, student, course)
	return fixture{
		db:      db,
		ledger:  NewLedger(db),
		course:  course,
		student: student,
		session: openSession(t, db, course),
	}
}

func TestRecordOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.ledger.Record(ctx, f.session, f.student, true)
	require.NoError(t, err)
	assert.Equal(t, f.session, rec.SessionID)
	assert.True(t, rec.Verified)

	ok, err := f.ledger.Exists(ctx, f.session, f.student)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.ledger.Record(ctx, f.session, f.student, true)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	n, err := f.ledger.CountFor(ctx, f.session)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	const workers = 16

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.ledger.Record(context.Background(), f.session, f.student, true)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, apperr.KindAlreadyJoined, apperr.KindOf(err))
	}
	assert.Equal(t, 1, ok)
	n, err := f.ledger.CountFor(context.Background(), f.session)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordRejectsClosedSession(t *testing.T) {
	f := newFixture(t)
	closeSession(t, f.db, f.session)

	_, err := f.ledger.Record(context.Background(), f.session, f.student, true)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, apperr.KindSessionNotActive, apperr.KindOf(err))
}

func TestRecordRechecksEnrollment(t *testing.T) {
	f := newFixture(t)
	outsider := testutil.User(t, f.db, entity.RoleStudent, "Outsider")

	_, err := f.ledger.Record(context.Background(), f.session, outsider, true)
	assert.ErrorIs(t, err, ErrNotEnrolled)

	n, err := f.ledger.CountFor(context.Background(), f.session)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListForSessionOrdersByJoinTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := testutil.User(t, f.db, entity.RoleStudent, "Bea")
	testutil.Enroll(t, f.db, other, f.course)

	now := time.Now()
	f.ledger.now = func() time.Time { return now }
	_, err := f.ledger.Record(ctx, f.session, other, true)
	require.NoError(t, err)
	f.ledger.now = func() time.Time { return now.Add(time.Minute) }
	_, err = f.ledger.Record(ctx, f.session, f.student, true)
	require.NoError(t, err)

	list, err := f.ledger.ListForSession(ctx, f.session)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Bea", list[0].FullName)
	assert.Equal(t, "Student", list[1].FullName)

	hist, err := f.ledger.ListForStudent(ctx, f.student)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, f.session, hist[0].SessionID)
}
