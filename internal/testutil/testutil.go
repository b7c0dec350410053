// Package testutil opens throwaway SQLite databases with the full schema
// and seeds rows for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
	courseentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/course/entity"
	courserepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/course/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/schema"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// OpenDB returns a migrated SQLite database under t.TempDir.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "attendance.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, schema.Ensure(context.Background(), db))
	return db
}

// Logger returns a logger that discards everything.
func Logger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// User inserts an approved account with the given role and returns its id.
func User(t *testing.T, db *sqlx.DB, role userentity.Role, name string) int64 {
	t.Helper()
	u := &userentity.User{
		ID:           utilities.NewID(),
		Email:        utilities.NewKSUID() + "@example.test",
		FullName:     name,
		Role:         role,
		Approved:     true,
		PasswordHash: "x",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, userrepo.NewUserRepo(db).Create(context.Background(), u))
	return u.ID
}

// Course inserts a course owned by teacherID (0 for none).
func Course(t *testing.T, db *sqlx.DB, code string, teacherID int64) int64 {
	t.Helper()
	c := &courseentity.Course{
		ID:        utilities.NewID(),
		Code:      code,
		Name:      code + " course",
		CreatedAt: time.Now().UTC(),
	}
	if teacherID != 0 {
		c.TeacherID = &teacherID
	}
	require.NoError(t, courserepo.NewRepo(db).Create(context.Background(), c))
	return c.ID
}

// Enroll adds the student to the course.
func Enroll(t *testing.T, db *sqlx.DB, studentID, courseID int64) int64 {
	t.Helper()
	e := &courseentity.Enrollment{
		ID:        utilities.NewID(),
		StudentID: studentID,
		CourseID:  courseID,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, courserepo.NewRepo(db).CreateEnrollment(context.Background(), e))
	return e.ID
}

// Embedding returns a vector of dim components all equal to v.
func Embedding(dim int, v float64) biometric.Embedding {
	e := make(biometric.Embedding, dim)
	for i := range e {
		e[i] = v
	}
	return e
}

// Shifted copies e with delta added to its first component, so the
// distance between e and the result is exactly |delta|.
func Shifted(e biometric.Embedding, delta float64) biometric.Embedding {
	out := make(biometric.Embedding, len(e))
	copy(out, e)
	out[0] += delta
	return out
}
