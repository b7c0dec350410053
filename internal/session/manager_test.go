package session

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/course"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/testutil"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
)

type env struct {
	db      *sqlx.DB
	mgr     *Manager
	ledger  *attendance.Ledger
	teacher auth.Identity
	admin   auth.Identity
	student auth.Identity
	course  int64
}

func setup(t *testing.T) env {
	t.Helper()
	db := testutil.OpenDB(t)
	users := user.NewUserService(db, nil, nil)
	courses := course.NewService(db, users)
	ledger := attendance.NewLedger(db)

	teacherID := testutil.User(t, db, userentity.RoleTeacher, "Teacher")
	studentID := testutil.User(t, db, userentity.RoleStudent, "Student")
	adminID := testutil.User(t, db, userentity.RoleAdmin, "Admin")
	courseID := testutil.Course(t, db, "CS101", teacherID)
	testutil.Enroll(t, db, studentID, courseID)

	return env{
		db:      db,
		mgr:     NewManager(db, courses, ledger, metrics.New(), testutil.Logger()),
		ledger:  ledger,
		teacher: auth.Identity{UserID: teacherID, Role: userentity.RoleTeacher},
		admin:   auth.Identity{UserID: adminID, Role: userentity.RoleAdmin},
		student: auth.Identity{UserID: studentID, Role: userentity.RoleStudent},
		course:  courseID,
	}
}

func TestStartSession(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	s, err := e.mgr.Start(ctx, e.course, e.teacher)
	require.NoError(t, err)
	assert.Equal(t, entity.StateOpen, s.State())
	assert.Equal(t, e.course, s.CourseID)

	got, err := e.mgr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen())
}

func TestStartSessionTwiceIsRejected(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.mgr.Start(ctx, e.course, e.teacher)
	require.NoError(t, err)
	_, err = e.mgr.Start(ctx, e.course, e.admin)
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)
}

func TestStartSessionConcurrently(t *testing.T) {
	e := setup(t)
	const workers = 12

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.mgr.Start(context.Background(), e.course, e.teacher)
		}()
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.Equal(t, apperr.KindSessionAlreadyActive, apperr.KindOf(err))
	}
	assert.Equal(t, 1, won)

	var open int
	require.NoError(t, e.db.Get(&open, e.db.Rebind(`SELECT COUNT(*) FROM sessions WHERE course_id = ? AND closed_at IS NULL`), e.course))
	assert.Equal(t, 1, open)
}

func TestStartSessionAuthorization(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	other := testutil.User(t, e.db, userentity.RoleTeacher, "Other")

	_, err := e.mgr.Start(ctx, e.course, auth.Identity{UserID: other, Role: userentity.RoleTeacher})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = e.mgr.Start(ctx, e.course, e.student)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	// unknown course looks the same as someone else's to a teacher
	_, err = e.mgr.Start(ctx, 12345, e.teacher)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = e.mgr.Start(ctx, 12345, e.admin)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestEndSession(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	s, err := e.mgr.Start(ctx, e.course, e.teacher)
	require.NoError(t, err)
	_, err = e.ledger.Record(ctx, s.ID, e.student.UserID, true)
	require.NoError(t, err)

	closed, err := e.mgr.End(ctx, s.ID, e.teacher)
	require.NoError(t, err)
	assert.Equal(t, 1, closed.AttendeeCount)
	assert.Equal(t, entity.StateClosed, closed.Session.State())

	// closed is terminal
	_, err = e.mgr.End(ctx, s.ID, e.teacher)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	_, err = e.ledger.Record(ctx, s.ID, e.student.UserID, true)
	assert.Equal(t, apperr.KindSessionNotActive, apperr.KindOf(err))

	// a new session may be opened once the previous one is closed
	next, err := e.mgr.Start(ctx, e.course, e.teacher)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, next.ID)
}

func TestEndSessionErrors(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.mgr.End(ctx, 777, e.teacher)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s, err := e.mgr.Start(ctx, e.course, e.teacher)
	require.NoError(t, err)
	other := testutil.User(t, e.db, userentity.RoleTeacher, "Other")
	_, err = e.mgr.End(ctx, s.ID, auth.Identity{UserID: other, Role: userentity.RoleTeacher})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	got, err := e.mgr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen())

	closed, err := e.mgr.End(ctx, s.ID, e.admin)
	require.NoError(t, err)
	assert.Zero(t, closed.AttendeeCount)
}

func TestEndSessionRacingJoins(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	s, err := e.mgr.Start(ctx, e.course, e.teacher)
	require.NoError(t, err)

	students := make([]int64, 10)
	for i := range students {
		students[i] = testutil.User(t, e.db, userentity.RoleStudent, "S")
		testutil.Enroll(t, e.db, students[i], e.course)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		recorded int
		closed   *entity.Closed
	)
	for _, id := range students {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.Record(ctx, s.ID, id, true)
			if err == nil {
				mu.Lock()
				recorded++
				mu.Unlock()
				return
			}
			assert.Equal(t, apperr.KindSessionNotActive, apperr.KindOf(err))
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		closed, err = e.mgr.End(ctx, s.ID, e.teacher)
		assert.NoError(t, err)
	}()
	wg.Wait()

	require.NotNil(t, closed)
	n, err := e.ledger.CountFor(ctx, s.ID)
	require.NoError(t, err)
	// nothing committed after the close
	assert.Equal(t, recorded, n)
	assert.Equal(t, n, closed.AttendeeCount)
}

func TestListActiveByRole(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	s, err := e.mgr.Start(ctx, e.course, e.teacher)
	require.NoError(t, err)

	otherTeacher := testutil.User(t, e.db, userentity.RoleTeacher, "Other")
	otherCourse := testutil.Course(t, e.db, "MA201", otherTeacher)
	_, err = e.mgr.Start(ctx, otherCourse, e.admin)
	require.NoError(t, err)

	list, err := e.mgr.ListActive(ctx, e.student)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, s.ID, list[0].SessionID)
	require.NotNil(t, list[0].Joined)
	assert.False(t, *list[0].Joined)
	assert.Nil(t, list[0].AttendeeCount)

	_, err = e.ledger.Record(ctx, s.ID, e.student.UserID, true)
	require.NoError(t, err)
	list, err = e.mgr.ListActive(ctx, e.student)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, *list[0].Joined)

	list, err = e.mgr.ListActive(ctx, e.teacher)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "CS101", list[0].CourseCode)
	require.NotNil(t, list[0].AttendeeCount)
	assert.Equal(t, 1, *list[0].AttendeeCount)

	list, err = e.mgr.ListActive(ctx, e.admin)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDetails(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	s, err := e.mgr.Start(ctx, e.course, e.teacher)
	require.NoError(t, err)
	_, err = e.ledger.Record(ctx, s.ID, e.student.UserID, true)
	require.NoError(t, err)

	d, err := e.mgr.Details(ctx, s.ID, e.teacher)
	require.NoError(t, err)
	assert.Equal(t, "CS101", d.CourseCode)
	assert.Equal(t, entity.StateOpen, d.State)
	require.Len(t, d.Attendees, 1)
	assert.Equal(t, "Student", d.Attendees[0].FullName)

	_, err = e.mgr.Details(ctx, s.ID, e.student)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = e.mgr.Details(ctx, 1, e.admin)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
