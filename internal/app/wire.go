package app

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-identity/internal/auth"
	"github.com/odyssey-erp/odyssey-identity/internal/authz"
	"github.com/odyssey-erp/odyssey-identity/internal/observability"
	"github.com/odyssey-erp/odyssey-identity/internal/rbac"
	"github.com/odyssey-erp/odyssey-identity/internal/roles"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
	"github.com/odyssey-erp/odyssey-identity/jobs"
)

// RoleStore is the global role and permission directory.
type RoleStore interface {
	authz.RoleDirectory
	roles.RepositoryPort
	rbac.PermissionLister
}

// Stores are the persistence ports the services run on.
type Stores struct {
	Users   users.Repository
	Roles   RoleStore
	Tenants tenant.Directory
	Ready   func(ctx context.Context) error
	// Queue and Inspector back the /jobs endpoints. Both may be nil.
	Queue     jobs.Enqueuer
	Inspector *asynq.Inspector
}

// Services bundles the wired domain services.
type Services struct {
	Users    *users.Service
	Resolver *authz.Resolver
	Auth     *auth.Service
	Roles    *roles.Service
	Guard    authz.Middleware
}

// NewServices wires the domain services over stores.
func NewServices(cfg *Config, logger *slog.Logger, metrics *observability.Metrics, stores Stores) *Services {
	credentials := users.BcryptCredentials{}
	if cfg != nil {
		credentials.Cost = cfg.BcryptCost
	}
	userService := users.NewService(stores.Users, credentials, logger)
	resolver := authz.NewResolver(stores.Roles, stores.Tenants, logger, metrics)
	if cfg != nil {
		resolver.Timeout = cfg.AuthzLookupTimeout
		resolver.Concurrency = cfg.AuthzResolveConcurrency
	}
	return &Services{
		Users:    userService,
		Resolver: resolver,
		Auth:     auth.NewService(userService, credentials, resolver, logger, metrics),
		Roles:    roles.NewService(stores.Roles, logger),
		Guard:    authz.Middleware{Users: userService, Resolver: resolver, Logger: logger},
	}
}

// NewRouterParams builds the HTTP handlers of svc.
func NewRouterParams(cfg *Config, logger *slog.Logger, metrics *observability.Metrics, stores Stores, svc *Services) RouterParams {
	return RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        auth.NewHandler(logger, svc.Auth),
		UsersHandler:       users.NewHandler(logger, svc.Users, svc.Guard, svc.Resolver),
		AuthzHandler:       authz.NewHandler(logger, svc.Users, svc.Resolver, svc.Guard),
		RolesHandler:       roles.NewHandler(logger, svc.Roles, svc.Guard),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, stores.Roles, svc.Guard),
		JobsHandler:        jobs.NewHandler(stores.Inspector, stores.Queue, svc.Guard, logger),
		Metrics:            metrics,
		Ready:              stores.Ready,
	}
}
