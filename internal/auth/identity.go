package auth

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
)

// Identity is the pre-authenticated caller. Role alone never grants
// session or join rights; services still check ownership and enrollment.
type Identity struct {
	UserID int64
	Role   entity.Role
}

func (i Identity) IsAdmin() bool { return i.Role == entity.RoleAdmin }

type identityKey struct{}

// WithIdentity stores the caller identity on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the caller identity set by the auth middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
