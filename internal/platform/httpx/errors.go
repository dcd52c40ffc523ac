// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-identity/internal/shared"
)

// Sentinel errors for the transport layer. Domain packages keep their own
// sentinels and map them before falling back to RespondError.
var (
	ErrForbidden = errors.New("forbidden")
)

// RespondError maps errors to HTTP responses using RFC7807. Unknown errors are
// reported as 500 without leaking their message.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, shared.ErrActorMissing):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "acting user required")
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "request timed out")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
