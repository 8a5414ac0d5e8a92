package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/auth"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/http/respond"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/logger"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
)

// Authorizer verifies access tokens.
type Authorizer interface {
	Authorize(token string) (*auth.Claims, error)
}

// ClaimsFromContext returns the claims placed by RequireAuth or OptionalAuth.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	return auth.ActorFromContext(ctx)
}

// WithClaims stores claims in ctx where the auth service finds them as the acting caller.
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return auth.WithActor(ctx, c)
}

// RequireAuth rejects requests without a valid bearer access token.
func RequireAuth(a Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if r, ok = authenticate(w, r, a, token); ok {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// OptionalAuth attaches claims when a bearer token is sent and lets anonymous requests
// through. A token that is sent but invalid is still rejected.
func OptionalAuth(a Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if r, ok = authenticate(w, r, a, token); ok {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// authenticate verifies token and returns r carrying the claims. On failure it writes the 401 itself.
func authenticate(w http.ResponseWriter, r *http.Request, a Authorizer, token string) (*http.Request, bool) {
	claims, err := a.Authorize(token)
	if err != nil {
		logger.From(r.Context()).Debug("token rejected", zap.Error(err))
		if errors.Is(err, auth.ErrExpired) {
			respond.Fail(w, http.StatusUnauthorized, respond.KindTokenExpired, "token expired", nil)
			return r, false
		}
		respond.Error(w, http.StatusUnauthorized, "invalid token")
		return r, false
	}
	log := logger.From(r.Context()).With(logger.SubjectID(claims.Subject))
	ctx := logger.ToContext(WithClaims(r.Context(), claims), log)
	return r.WithContext(ctx), true
}

// RequireRole rejects authenticated requests whose role is not one of roles. It must run after RequireAuth.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respond.Error(w, http.StatusForbidden, "insufficient role")
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
