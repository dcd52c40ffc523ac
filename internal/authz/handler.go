package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-identity/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-identity/internal/shared"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
)

// Guard restricts routes to principals holding permissions.
type Guard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
}

// Handler exposes the authority view of a user.
type Handler struct {
	logger   *slog.Logger
	users    UserLoader
	resolver *Resolver
	guard    Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, loader UserLoader, resolver *Resolver, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, users: loader, resolver: resolver, guard: guard}
}

// MountRoutes registers authority routes under the users router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.RequireAny(shared.PermAuthoritiesView, shared.PermUsersView)).Get("/{id}/authorities", h.showAuthorities)
}

// SnapshotView is the JSON shape of a snapshot.
type SnapshotView struct {
	RoleNames      []string  `json:"role_names"`
	Permissions    []string  `json:"permissions"`
	TenantName     string    `json:"tenant_name,omitempty"`
	TenantStatus   string    `json:"tenant_status,omitempty"`
	Unresolved     int       `json:"unresolved"`
	Degraded       bool      `json:"degraded"`
	DegradedReason string    `json:"degraded_reason,omitempty"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// ToSnapshotView projects s for transport.
func ToSnapshotView(s *Snapshot) SnapshotView {
	if s == nil {
		return SnapshotView{RoleNames: []string{}, Permissions: []string{}}
	}
	return SnapshotView{
		RoleNames:      s.RoleNames(),
		Permissions:    s.Permissions(),
		TenantName:     s.TenantName,
		TenantStatus:   s.TenantStatus,
		Unresolved:     s.Unresolved,
		Degraded:       s.Degraded,
		DegradedReason: s.DegradedReason,
		ResolvedAt:     s.ResolvedAt,
	}
}

type authoritiesResponse struct {
	Principal Principal    `json:"principal"`
	Snapshot  SnapshotView `json:"snapshot"`
}

func (h *Handler) showAuthorities(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "user not found")
		case errors.Is(err, tenant.ErrMissing):
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "tenant required")
		default:
			h.logger.Error("load user authorities", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	snap := h.resolver.Resolve(r.Context(), u)
	httpx.JSON(w, http.StatusOK, authoritiesResponse{Principal: Project(u, snap), Snapshot: ToSnapshotView(snap)})
}
