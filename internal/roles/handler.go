package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-identity/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-identity/internal/rbac"
	"github.com/odyssey-erp/odyssey-identity/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     rbac.Guard
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.showRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Put("/{id}", h.updateRole)
		r.Delete("/{id}", h.deleteRole)
		r.Put("/{id}/permissions", h.setPermissions)
	})
}

type createRoleRequest struct {
	RoleInput
	PermissionsInput
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": list})
}

func (h *Handler) showRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.RoleInput, req.Permissions)
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	var req RoleInput
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req)
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	var req PermissionsInput
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.SetPermissions(r.Context(), id, req)
	if err != nil {
		h.respondError(w, "set role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		detail := err.Error()
		if errors.As(err, &verrs) && len(verrs) > 0 {
			detail = verrs[0].Field() + " failed " + verrs[0].Tag()
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "role not found")
	case errors.Is(err, rbac.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, rbac.ErrInvalid), errors.Is(err, rbac.ErrUnknownPermission):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return 0, false
	}
	return id, true
}
