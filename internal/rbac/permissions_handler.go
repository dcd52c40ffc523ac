package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-identity/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-identity/internal/shared"
)

// PermissionLister lists the permission catalogue.
type PermissionLister interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// Guard restricts routes to principals holding permissions.
type Guard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
}

// PermissionsHandler manages permission listing.
type PermissionsHandler struct {
	logger  *slog.Logger
	service PermissionLister
	guard   Guard
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service PermissionLister, guard Guard) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermPermissionsView))
		r.Get("/", h.listPermissions)
	})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}
