package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/auth"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/http/respond"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(okHandler)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://APP.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "https://APP.example", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
		req.Header.Set("Origin", "https://app.example")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://any.example")
		rec := httptest.NewRecorder()
		CORS([]string{"*"})(okHandler).ServeHTTP(rec, req)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})
}

type observed struct {
	method, route string
	status        int
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (f *fakeObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, observed{method, route, status})
}

func TestLogging(t *testing.T) {
	obs := &fakeObserver{}
	r := chi.NewRouter()
	r.Use(Logging(obs))
	r.Get("/teachers/{email}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teachers/a@x.com", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/teachers/b@x.com", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	require.Len(t, obs.seen, 2)
	assert.Equal(t, observed{http.MethodGet, "/teachers/{email}", http.StatusTeapot}, obs.seen[0])
}

type fakeAuthorizer struct {
	claims *auth.Claims
	err    error
}

func (f fakeAuthorizer) Authorize(string) (*auth.Claims, error) { return f.claims, f.err }

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) respond.Envelope {
	t.Helper()
	var env respond.Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestRequireAuth(t *testing.T) {
	teacher := &auth.Claims{Email: "a@x.com", Role: models.RoleTeacher, Kind: auth.KindAccess}
	teacher.Subject = "t-1"

	var got *auth.Claims
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		authorizer fakeAuthorizer
		wantStatus int
		wantMsg    string
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantMsg: "missing bearer token"},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantMsg: "missing bearer token"},
		{name: "expired", header: "Bearer abc", authorizer: fakeAuthorizer{err: auth.ErrExpired}, wantStatus: http.StatusUnauthorized, wantMsg: "token expired"},
		{name: "malformed", header: "Bearer abc", authorizer: fakeAuthorizer{err: auth.ErrMalformed}, wantStatus: http.StatusUnauthorized, wantMsg: "invalid token"},
		{name: "valid", header: "bearer abc", authorizer: fakeAuthorizer{claims: teacher}, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireAuth(tt.authorizer)(inner).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, decodeEnvelope(t, rec).Message)
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, teacher, got)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	student := &auth.Claims{Email: "s@x.com", Role: models.RoleStudent, Kind: auth.KindAccess}

	var got *auth.Claims
	var seen bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		authorizer fakeAuthorizer
		wantStatus int
		wantClaims bool
	}{
		{name: "anonymous", wantStatus: http.StatusOK},
		{name: "valid token", header: "Bearer abc", authorizer: fakeAuthorizer{claims: student}, wantStatus: http.StatusOK, wantClaims: true},
		{name: "invalid token", header: "Bearer abc", authorizer: fakeAuthorizer{err: auth.ErrMalformed}, wantStatus: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer abc", authorizer: fakeAuthorizer{err: auth.ErrExpired}, wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, seen = nil, false
			req := httptest.NewRequest(http.MethodPost, "/students", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			OptionalAuth(tt.authorizer)(inner).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantClaims, seen)
			if tt.wantClaims {
				assert.Equal(t, student, got)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(models.RoleTeacher)(okHandler)

	student := &auth.Claims{Role: models.RoleStudent}
	req := httptest.NewRequest(http.MethodPost, "/learning-paths", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithClaims(req.Context(), student)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	teacher := &auth.Claims{Role: models.RoleTeacher}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithClaims(req.Context(), teacher)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMemoryLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(2)

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Positive(t, d.RetryAfter)

	d, err = l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "keys are independent")
}

type stubLimiter struct {
	d   Decision
	err error
}

func (s stubLimiter) Allow(context.Context, string) (Decision, error) { return s.d, s.err }

type countingRejects struct{ n int }

func (c *countingRejects) RateLimited(string) { c.n++ }

func TestRateLimit(t *testing.T) {
	t.Run("rejects", func(t *testing.T) {
		rejects := &countingRejects{}
		h := RateLimit(stubLimiter{d: Decision{RetryAfter: 1500 * time.Millisecond}}, "/auth/login", rejects)(okHandler)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))
		assert.Equal(t, 1, rejects.n)
	})

	t.Run("allows", func(t *testing.T) {
		h := RateLimit(stubLimiter{d: Decision{Allowed: true}}, "/auth/login", nil)(okHandler)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("fails open", func(t *testing.T) {
		h := RateLimit(stubLimiter{err: errors.New("redis down")}, "/auth/login", nil)(okHandler)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", clientIP(req))
	req.RemoteAddr = "weird"
	assert.Equal(t, "weird", clientIP(req))
}
