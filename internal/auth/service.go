package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
)

// DevSecret signs tokens in development when JWT_SECRET is unset.
const DevSecret = "attendance-dev-secret"

var ErrSecretMissing = errors.New("JWT_SECRET is not set")

type Config struct {
	Secret     string        `env:"JWT_SECRET"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"attendance"`
	AccessTTL  time.Duration `env:"JWT_TTL" envDefault:"24h"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"720h"`
}

func ConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{Issuer: "attendance", AccessTTL: 24 * time.Hour, RefreshTTL: 720 * time.Hour}
	}
	return cfg
}

// RequireSecret fails when no signing secret is configured. In development
// the well-known DevSecret is used instead.
func (c Config) RequireSecret(dev bool) (Config, error) {
	if c.Secret != "" {
		return c, nil
	}
	if !dev {
		return c, ErrSecretMissing
	}
	c.Secret = DevSecret
	return c, nil
}

var (
	ErrInvalidToken   = apperr.New(apperr.KindUnauthenticated, "invalid or expired token")
	ErrInvalidRefresh = apperr.New(apperr.KindUnauthenticated, "invalid refresh token")
)

// Claims carried by access tokens.
type Claims struct {
	Role entity.Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens is the login/refresh response.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenService issues and verifies HS256 access tokens and rotates opaque
// refresh tokens. The shared secret lets every instance verify tokens.
type TokenService struct {
	cfg         Config
	refreshRepo *repo.RefreshRepo
	now         func() time.Time
}

func NewTokenService(db *sqlx.DB, cfg Config) *TokenService {
	return &TokenService{cfg: cfg, refreshRepo: repo.NewRefreshRepo(db), now: time.Now}
}

// IssueTokens creates an access token and a persisted refresh token.
func (s *TokenService) IssueTokens(ctx context.Context, u *entity.MinimalAuthView) (*Tokens, error) {
	access, err := s.SignAccess(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	refresh := base64.RawURLEncoding.EncodeToString(raw)
	now := s.now().UTC()
	if err := s.refreshRepo.Save(ctx, repo.RefreshSession{
		TokenHash: hashToken(refresh),
		UserID:    u.ID,
		ExpiresAt: now.Add(s.cfg.RefreshTTL),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("save refresh session: %w", err)
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
	}, nil
}

// SignAccess signs an access token for the user.
func (s *TokenService) SignAccess(userID int64, role entity.Role) (string, error) {
	now := s.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
}

// ParseAccess verifies an access token and returns the caller identity.
func (s *TokenService) ParseAccess(token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithIssuer(s.cfg.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || !claims.Role.Valid() {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: id, Role: claims.Role}, nil
}

// Rotate consumes a refresh token and returns the user it belonged to.
// The token is deleted first so a replayed token fails.
func (s *TokenService) Rotate(ctx context.Context, refresh string) (int64, error) {
	h := hashToken(refresh)
	sess, err := s.refreshRepo.Get(ctx, h)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrInvalidRefresh
		}
		return 0, err
	}
	deleted, err := s.refreshRepo.Delete(ctx, h)
	if err != nil {
		return 0, err
	}
	if !deleted || sess.ExpiresAt.Before(s.now()) {
		return 0, ErrInvalidRefresh
	}
	return sess.UserID, nil
}

// Revoke drops a refresh token; unknown tokens are ignored.
func (s *TokenService) Revoke(ctx context.Context, refresh string) error {
	_, err := s.refreshRepo.Delete(ctx, hashToken(refresh))
	return err
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
