package auth

import (
	"context"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
)

type actorKey struct{}

// WithActor records the verified claims of the caller on ctx.
func WithActor(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, actorKey{}, c)
}

// ActorFromContext returns the caller recorded by WithActor.
func ActorFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(actorKey{}).(*Claims)
	return c, ok && c != nil
}

// CanModify reports whether the caller may change the identity known by email or id.
// Teachers may change anyone.
func (c *Claims) CanModify(email, id string) bool {
	if c.Role == models.RoleTeacher {
		return true
	}
	return (email != "" && c.Email == email) || (id != "" && c.Subject == id)
}
