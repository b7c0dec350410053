package course

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/testutil"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

func TestCourseLifecycle(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := NewService(db, user.NewUserService(db, nil, nil))
	ctx := context.Background()

	teacherID := testutil.User(t, db, entity.RoleTeacher, "Tom")
	studentID := testutil.User(t, db, entity.RoleStudent, "Ana")
	adminID := testutil.User(t, db, entity.RoleAdmin, "Root")

	c, err := svc.Create(ctx, "Algorithms", " cs101 ", &teacherID)
	require.NoError(t, err)
	assert.Equal(t, "CS101", c.Code)

	_, err = svc.Create(ctx, "Other", "CS101", nil)
	assert.ErrorIs(t, err, ErrCodeTaken)
	_, err = svc.Create(ctx, "Bad", "X1", &studentID)
	assert.ErrorIs(t, err, ErrNotATeacher)

	e, err := svc.Enroll(ctx, studentID, c.ID)
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, studentID, c.ID)
	assert.ErrorIs(t, err, ErrAlreadyEnrolled)
	_, err = svc.Enroll(ctx, teacherID, c.ID)
	assert.ErrorIs(t, err, ErrNotAStudent)
	_, err = svc.Enroll(ctx, studentID, 99)
	assert.ErrorIs(t, err, ErrCourseNotFound)

	ok, err := svc.IsEnrolled(ctx, studentID, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	teacher := auth.Identity{UserID: teacherID, Role: entity.RoleTeacher}
	roster, err := svc.Students(ctx, c.ID, teacher)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "Ana", roster[0].FullName)
	assert.False(t, roster[0].HasFace)

	student := auth.Identity{UserID: studentID, Role: entity.RoleStudent}
	for _, actor := range []auth.Identity{teacher, student, {UserID: adminID, Role: entity.RoleAdmin}} {
		list, err := svc.List(ctx, actor)
		require.NoError(t, err)
		assert.Len(t, list, 1, "role %s", actor.Role)
	}

	require.NoError(t, svc.Unenroll(ctx, e.ID))
	assert.ErrorIs(t, svc.Unenroll(ctx, e.ID), ErrEnrollmentNotFound)
	ok, err = svc.IsEnrolled(ctx, studentID, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	list, err := svc.List(ctx, student)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAuthorize(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := NewService(db, user.NewUserService(db, nil, nil))
	ctx := context.Background()

	owner := testutil.User(t, db, entity.RoleTeacher, "Owner")
	other := testutil.User(t, db, entity.RoleTeacher, "Other")
	courseID := testutil.Course(t, db, "CS101", owner)

	_, err := svc.Authorize(ctx, courseID, auth.Identity{UserID: owner, Role: entity.RoleTeacher})
	assert.NoError(t, err)
	_, err = svc.Authorize(ctx, courseID, auth.Identity{UserID: other, Role: entity.RoleTeacher})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = svc.Authorize(ctx, courseID+1, auth.Identity{UserID: other, Role: entity.RoleTeacher})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	_, err = svc.Authorize(ctx, courseID+1, auth.Identity{UserID: 1, Role: entity.RoleAdmin})
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func ptr[T any](v T) *T { return &v }

func TestUpdateCourse(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := NewService(db, user.NewUserService(db, nil, nil))
	ctx := context.Background()

	tom := testutil.User(t, db, entity.RoleTeacher, "Tom")
	eve := testutil.User(t, db, entity.RoleTeacher, "Eve")
	ana := testutil.User(t, db, entity.RoleStudent, "Ana")
	courseID := testutil.Course(t, db, "CS101", tom)
	testutil.Course(t, db, "MA201", tom)

	c, err := svc.Update(ctx, courseID, Changes{Name: ptr(" Data Structures ")})
	require.NoError(t, err)
	assert.Equal(t, "Data Structures", c.Name)
	assert.Equal(t, "CS101", c.Code)
	require.NotNil(t, c.TeacherID)
	assert.Equal(t, tom, *c.TeacherID)

	_, err = svc.Update(ctx, courseID, Changes{Code: ptr("cs102"), SetTeacher: true, TeacherID: &eve})
	require.NoError(t, err)
	got, err := svc.Get(ctx, courseID)
	require.NoError(t, err)
	assert.Equal(t, "CS102", got.Code)
	assert.Equal(t, eve, *got.TeacherID)

	_, err = svc.Update(ctx, courseID, Changes{Code: ptr("ma201")})
	assert.ErrorIs(t, err, ErrCodeTaken)
	_, err = svc.Update(ctx, courseID, Changes{SetTeacher: true, TeacherID: &ana})
	assert.ErrorIs(t, err, ErrNotATeacher)
	_, err = svc.Update(ctx, courseID, Changes{Name: ptr("  ")})
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
	_, err = svc.Update(ctx, courseID+1, Changes{Name: ptr("x")})
	assert.ErrorIs(t, err, ErrCourseNotFound)

	c, err = svc.Update(ctx, courseID, Changes{SetTeacher: true})
	require.NoError(t, err)
	assert.Nil(t, c.TeacherID)
	got, err = svc.Get(ctx, courseID)
	require.NoError(t, err)
	assert.Nil(t, got.TeacherID)
	assert.Equal(t, "CS102", got.Code)
}

func TestDeleteCourseCascades(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := NewService(db, user.NewUserService(db, nil, nil))
	ctx := context.Background()

	tom := testutil.User(t, db, entity.RoleTeacher, "Tom")
	ana := testutil.User(t, db, entity.RoleStudent, "Ana")
	courseID := testutil.Course(t, db, "CS101", tom)
	testutil.Enroll(t, db, ana, courseID)
	_, err := db.ExecContext(ctx, db.Rebind(`INSERT INTO sessions (id, course_id, opened_by, opened_at) VALUES (?, ?, ?, ?)`),
		utilities.NewID(), courseID, tom, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, courseID))
	assert.ErrorIs(t, svc.Delete(ctx, courseID), ErrCourseNotFound)

	_, err = svc.Get(ctx, courseID)
	assert.ErrorIs(t, err, ErrCourseNotFound)
	ok, err := svc.IsEnrolled(ctx, ana, courseID)
	require.NoError(t, err)
	assert.False(t, ok)
	var sessions int
	require.NoError(t, db.GetContext(ctx, &sessions, db.Rebind(`SELECT COUNT(*) FROM sessions WHERE course_id = ?`), courseID))
	assert.Zero(t, sessions)
}
