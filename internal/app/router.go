package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-identity/internal/auth"
	"github.com/odyssey-erp/odyssey-identity/internal/authz"
	"github.com/odyssey-erp/odyssey-identity/internal/observability"
	"github.com/odyssey-erp/odyssey-identity/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-identity/internal/rbac"
	"github.com/odyssey-erp/odyssey-identity/internal/roles"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
	"github.com/odyssey-erp/odyssey-identity/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	AuthzHandler       *authz.Handler
	RolesHandler       *roles.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobsHandler        *jobs.Handler
	Metrics            *observability.Metrics
	// Ready reports backing store health for /healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter constructs the chi.Router with identity service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Ready != nil {
			if err := params.Ready(r.Context()); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("health check failed", slog.Any("error", err))
				}
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(tenant.Middleware)
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", func(r chi.Router) {
				params.UsersHandler.MountRoutes(r)
				if params.AuthzHandler != nil {
					params.AuthzHandler.MountRoutes(r)
				}
			})
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
