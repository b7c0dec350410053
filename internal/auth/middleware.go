package auth

import (
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
)

// Guard authenticates bearer tokens and restricts routes by role.
type Guard struct {
	tokens *TokenService
	logger *zap.SugaredLogger
}

func NewGuard(tokens *TokenService, logger *zap.SugaredLogger) *Guard {
	return &Guard{tokens: tokens, logger: logger}
}

// Require returns a middleware that rejects requests without a valid access
// token (401) or whose role is not in roles (403). No roles means any
// authenticated caller.
func (g *Guard) Require(roles ...entity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httpx.WriteError(w, g.logger, apperr.ErrUnauthenticated)
				return
			}
			id, err := g.tokens.ParseAccess(token)
			if err != nil {
				g.logger.Debugw("rejected access token", "err", err, "path", r.URL.Path)
				httpx.WriteError(w, g.logger, err)
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, id.Role) {
				httpx.WriteError(w, g.logger, apperr.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireFunc is Require for a single handler func.
func (g *Guard) RequireFunc(h http.HandlerFunc, roles ...entity.Role) http.Handler {
	return g.Require(roles...)(h)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(h[7:])
	return t, t != ""
}
