package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-identity/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-identity/internal/shared"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
)

// Guard restricts routes to principals holding permissions.
type Guard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
}

// RoleGrantChecker decides whether the acting user may hand out or withdraw
// the given roles.
type RoleGrantChecker interface {
	CheckRoleGrant(ctx context.Context, roleIDs []int64) error
}

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     Guard
	grants    RoleGrantChecker
	validator *validator.Validate
}

// NewHandler builds Handler instance. Without grants every role change that
// names a role is refused.
func NewHandler(logger *slog.Logger, service *Service, guard Guard, grants RoleGrantChecker) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, grants: grants, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.showUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermUsersEdit))
		r.Post("/", h.createUser)
		r.Post("/{id}/roles/{roleID}", h.assignRole)
		r.Delete("/{id}/roles/{roleID}", h.removeRole)
		r.Post("/{id}/status/{action}", h.applyStatus)
	})
}

// View is the JSON shape of a user. The credential secret is never exposed.
type View struct {
	ID                    int64      `json:"id"`
	TenantID              tenant.ID  `json:"tenant_id"`
	Email                 string     `json:"email"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	Enabled               bool       `json:"enabled"`
	AccountNonExpired     bool       `json:"account_non_expired"`
	AccountNonLocked      bool       `json:"account_non_locked"`
	CredentialsNonExpired bool       `json:"credentials_non_expired"`
	Eligible              bool       `json:"eligible"`
	RoleIDs               []int64    `json:"role_ids"`
	Version               int64      `json:"version"`
	AccountExpiresAt      *time.Time `json:"account_expires_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// ToView projects u for transport.
func ToView(u *User) View {
	return View{
		ID:                    u.ID,
		TenantID:              u.TenantID(),
		Email:                 u.Email,
		FirstName:             u.FirstName,
		LastName:              u.LastName,
		Enabled:               u.Enabled,
		AccountNonExpired:     u.AccountNonExpired,
		AccountNonLocked:      u.AccountNonLocked,
		CredentialsNonExpired: u.CredentialsNonExpired,
		Eligible:              u.Eligible(),
		RoleIDs:               u.RoleIDs(),
		Version:               u.Version,
		AccountExpiresAt:      u.AccountExpiresAt,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

type createUserRequest struct {
	Email            string     `json:"email" validate:"required,email"`
	FirstName        string     `json:"first_name" validate:"required"`
	LastName         string     `json:"last_name" validate:"required"`
	Password         string     `json:"password" validate:"required,min=8"`
	RoleIDs          []int64    `json:"role_ids" validate:"dive,gt=0"`
	AccountExpiresAt *time.Time `json:"account_expires_at"`
}

type listResponse struct {
	Users      []View            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pg := shared.NewPagination(page, perPage, 0)
	filter := ListFilter{Limit: pg.PerPage, Offset: (pg.Page - 1) * pg.PerPage}
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "enabled must be a boolean")
			return
		}
		filter.Enabled = &enabled
	}
	list, total, err := h.service.ListUsers(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list users", err)
		return
	}
	views := make([]View, 0, len(list))
	for _, u := range list {
		views = append(views, ToView(u))
	}
	httpx.JSON(w, http.StatusOK, listResponse{Users: views, Pagination: shared.NewPagination(pg.Page, pg.PerPage, total)})
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToView(u))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	if err := h.checkGrant(r.Context(), req.RoleIDs); err != nil {
		h.respondError(w, "register user", err)
		return
	}
	u, err := h.service.Register(r.Context(), RegisterInput{
		Email:            req.Email,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Password:         req.Password,
		RoleIDs:          req.RoleIDs,
		AccountExpiresAt: req.AccountExpiresAt,
	})
	if err != nil {
		h.respondError(w, "register user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToView(u))
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	h.roleChange(w, r, h.service.AssignRole)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	h.roleChange(w, r, h.service.RemoveRole)
}

func (h *Handler) roleChange(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, roleID int64) (*User, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	roleID, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
		return
	}
	if err := h.checkGrant(r.Context(), []int64{roleID}); err != nil {
		h.respondError(w, "change role", err)
		return
	}
	u, err := op(r.Context(), id, roleID)
	if err != nil {
		h.respondError(w, "change role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToView(u))
}

func (h *Handler) checkGrant(ctx context.Context, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	if h.grants == nil {
		return fmt.Errorf("role changes not configured: %w", httpx.ErrForbidden)
	}
	return h.grants.CheckRoleGrant(ctx, roleIDs)
}

func (h *Handler) applyStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	u, err := h.service.ApplyStatus(r.Context(), id, StatusAction(chi.URLParam(r, "action")))
	if err != nil {
		h.respondError(w, "apply status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToView(u))
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
	case errors.Is(err, ErrEmailTaken):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrConcurrentModification):
		httpx.Problem(w, http.StatusConflict, "Conflict", "user was modified concurrently, retry")
	case errors.Is(err, ErrInvalidUser), errors.Is(err, ErrInvalidReference), errors.Is(err, ErrUnknownAction):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, tenant.ErrMissing):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "tenant required")
	case errors.Is(err, httpx.ErrForbidden):
		h.logger.Debug(op+" denied", slog.Any("error", err))
		httpx.RespondError(w, err)
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return 0, false
	}
	return id, true
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Field() + " failed " + verrs[0].Tag()
	}
	return err.Error()
}
