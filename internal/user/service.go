package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

const minPasswordLen = 6

var (
	ErrUserNotFound   = apperr.New(apperr.KindNotFound, "user not found")
	ErrBadCredentials = apperr.New(apperr.KindUnauthenticated, "invalid email or password")
	ErrNotApproved    = apperr.New(apperr.KindUnauthorized, "account not approved yet")
	ErrEmailTaken     = apperr.New(apperr.KindConflict, "email already registered")
	ErrWeakPassword   = apperr.Errorf(apperr.KindInvalidRequest, "password must be at least %d characters", minPasswordLen)
	ErrMissingFields  = apperr.New(apperr.KindInvalidRequest, "email, password and full name are required")
	ErrRoleNotAllowed = apperr.New(apperr.KindInvalidRequest, "role must be student or teacher")
)

// UserService orchestrates authentication and account lifecycle flows.
type UserService struct {
	repo   *userrepo.UserRepo
	hasher PasswordHasher
	now    func() time.Time
}

func NewUserService(db *sqlx.DB, r *userrepo.UserRepo, hasher PasswordHasher) *UserService {
	if r == nil {
		r = userrepo.NewUserRepo(db)
	}
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{repo: r, hasher: hasher, now: time.Now}
}

// Signup creates an account. Teachers are approved immediately; students
// wait for an admin. Admin accounts are only created through Bootstrap.
func (s *UserService) Signup(ctx context.Context, email, password, fullName string, role entity.Role) (*entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)
	if email == "" || password == "" || fullName == "" {
		return nil, ErrMissingFields
	}
	if role == "" {
		role = entity.RoleStudent
	}
	if role != entity.RoleStudent && role != entity.RoleTeacher {
		return nil, ErrRoleNotAllowed
	}
	return s.create(ctx, email, password, fullName, role, role == entity.RoleTeacher)
}

// Bootstrap ensures an approved admin account exists for email.
func (s *UserService) Bootstrap(ctx context.Context, email, password string) (*entity.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return s.create(ctx, email, password, "Administrator", entity.RoleAdmin, true)
}

func (s *UserService) create(ctx context.Context, email, password, fullName string, role entity.Role, approved bool) (*entity.User, error) {
	if len(password) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	u := &entity.User{
		ID:           utilities.NewID(),
		Email:        email,
		FullName:     fullName,
		Role:         role,
		Approved:     approved,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// AuthenticatePassword checks credentials. Unknown email and wrong password
// are reported identically to avoid user enumeration.
func (s *UserService) AuthenticatePassword(ctx context.Context, email, password string) (*entity.MinimalAuthView, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if !u.Approved {
		return nil, ErrNotApproved
	}
	return s.repo.GetMinimalAuthView(ctx, u.ID)
}

// GetMinimalAuthView retrieves the minimal projection for a user by ID.
func (s *UserService) GetMinimalAuthView(ctx context.Context, id int64) (*entity.MinimalAuthView, error) {
	v, err := s.repo.GetMinimalAuthView(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return v, err
}

// Approve lets a pending account log in.
func (s *UserService) Approve(ctx context.Context, id int64) error {
	ok, err := s.repo.Approve(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// List returns accounts, optionally filtered by role.
func (s *UserService) List(ctx context.Context, role entity.Role) ([]entity.User, error) {
	if role != "" && !role.Valid() {
		return nil, apperr.New(apperr.KindInvalidRequest, "unknown role")
	}
	return s.repo.List(ctx, role)
}

// HasRole reports whether the account exists with the given role.
func (s *UserService) HasRole(ctx context.Context, id int64, role entity.Role) (bool, error) {
	return s.repo.HasRole(ctx, id, role)
}

// DisplayName returns the user's full name, or "" when unknown.
func (s *UserService) DisplayName(ctx context.Context, id int64) (string, error) {
	v, err := s.repo.GetMinimalAuthView(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return v.FullName, nil
}
