package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/testutil"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
)

func newService(t *testing.T) *UserService {
	t.Helper()
	return NewUserService(testutil.OpenDB(t), nil, BcryptHasher{Cost: bcrypt.MinCost})
}

func TestSignupApproval(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	stu, err := svc.Signup(ctx, " Ana@Example.com ", "secret1", "Ana", entity.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", stu.Email)
	assert.False(t, stu.Approved)

	teach, err := svc.Signup(ctx, "tom@example.com", "secret1", "Tom", entity.RoleTeacher)
	require.NoError(t, err)
	assert.True(t, teach.Approved)

	_, err = svc.AuthenticatePassword(ctx, "ana@example.com", "secret1")
	assert.ErrorIs(t, err, ErrNotApproved)

	require.NoError(t, svc.Approve(ctx, stu.ID))
	view, err := svc.AuthenticatePassword(ctx, "ANA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, stu.ID, view.ID)
	assert.False(t, view.HasFace)
}

func TestSignupValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "a@example.com", "123", "A", entity.RoleStudent)
	assert.ErrorIs(t, err, ErrWeakPassword)
	_, err = svc.Signup(ctx, "a@example.com", "secret1", "A", entity.RoleAdmin)
	assert.ErrorIs(t, err, ErrRoleNotAllowed)
	_, err = svc.Signup(ctx, "", "secret1", "A", entity.RoleStudent)
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.Signup(ctx, "a@example.com", "secret1", "A", "")
	require.NoError(t, err)
	_, err = svc.Signup(ctx, "A@example.com", "secret1", "B", entity.RoleStudent)
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestAuthenticateDoesNotLeakAccounts(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, "tom@example.com", "secret1", "Tom", entity.RoleTeacher)
	require.NoError(t, err)

	_, wrongPw := svc.AuthenticatePassword(ctx, "tom@example.com", "nope")
	_, unknown := svc.AuthenticatePassword(ctx, "who@example.com", "nope")
	assert.ErrorIs(t, wrongPw, ErrBadCredentials)
	assert.ErrorIs(t, unknown, ErrBadCredentials)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a, err := svc.Bootstrap(ctx, "root@example.com", "rootpass")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, a.Role)
	b, err := svc.Bootstrap(ctx, "root@example.com", "other-pass")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	admins, err := svc.List(ctx, entity.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, admins, 1)

	_, err = svc.List(ctx, "janitor")
	assert.Equal(t, apperr.KindInvalidRequest, apperr.KindOf(err))
}

func TestApproveUnknown(t *testing.T) {
	svc := newService(t)
	assert.ErrorIs(t, svc.Approve(context.Background(), 42), ErrUserNotFound)
}

func TestDisplayName(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	u, err := svc.Signup(ctx, "tom@example.com", "secret1", "Tom", entity.RoleTeacher)
	require.NoError(t, err)

	name, err := svc.DisplayName(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tom", name)
	name, err = svc.DisplayName(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, name)
}
