// Package schema creates every table the service needs, in dependency order.
package schema

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	attendancerepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/repo"
	authrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth/repo"
	courserepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/course/repo"
	sessionrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/session/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/repo"
)

type tableEnsurer interface {
	EnsureTable(ctx context.Context) error
}

// Ensure is idempotent.
func Ensure(ctx context.Context, db *sqlx.DB) error {
	steps := []struct {
		name string
		repo tableEnsurer
	}{
		{"users", userrepo.NewUserRepo(db)},
		{"refresh_sessions", authrepo.NewRefreshRepo(db)},
		{"courses", courserepo.NewRepo(db)},
		{"sessions", sessionrepo.NewRepo(db)},
		{"attendance_records", attendancerepo.NewRepo(db)},
	}
	for _, s := range steps {
		if err := s.repo.EnsureTable(ctx); err != nil {
			return fmt.Errorf("ensure %s: %w", s.name, err)
		}
	}
	return nil
}
