package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-identity/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-identity/internal/shared"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/authenticate", h.handleAuthenticate)
}

type authenticateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authenticateResponse struct {
	Subject     string   `json:"subject"`
	Authorities []string `json:"authorities"`
	Eligible    bool     `json:"eligible"`
}

func (h *Handler) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password required")
		return
	}
	principal, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrInvalidCredentials):
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		case errors.Is(err, tenant.ErrMissing):
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "tenant required")
		default:
			h.logger.Error("authenticate", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, authenticateResponse{
		Subject:     principal.Subject,
		Authorities: principal.Authorities,
		Eligible:    principal.Eligible,
	})
}

// HandleAuthenticateForTest exposes the POST handler for tests.
func (h *Handler) HandleAuthenticateForTest(w http.ResponseWriter, r *http.Request) {
	h.handleAuthenticate(w, r)
}
