package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/auth"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/config"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/http/handlers"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/metrics"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/middleware"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

// Deps are the collaborators the router is built from.
type Deps struct {
	Store   storage.Store
	Auth    *auth.Service
	Limiter middleware.Limiter

	// Metrics and Registry default to a fresh registry when nil.
	Metrics  *metrics.Collector
	Registry *prometheus.Registry
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, deps Deps) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           NewRouter(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}
}

// NewRouter builds the HTTP handler tree.
func NewRouter(cfg config.Config, deps Deps) http.Handler {
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector(deps.Registry)
	}
	if deps.Limiter == nil {
		deps.Limiter = middleware.NewMemoryLimiter(cfg.LoginRatePerMinute)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(deps.Metrics))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	requireAuth := middleware.RequireAuth(deps.Auth)
	limit := func(route string) handlers.Middleware {
		return middleware.RateLimit(deps.Limiter, route, deps.Metrics)
	}
	teacherOnly := func(next http.Handler) http.Handler {
		return requireAuth(middleware.RequireRole(models.RoleTeacher)(next))
	}

	handlers.NewHealthHandler(time.Now(), deps.Store).Register(r)
	handlers.NewAuthHandler(deps.Auth).Register(r, limit, requireAuth)
	handlers.NewPeopleHandler(deps.Auth).Register(r, requireAuth, middleware.OptionalAuth(deps.Auth))
	handlers.NewLearningPathHandler(deps.Store).Register(r, teacherOnly)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Registry))

	return r
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
