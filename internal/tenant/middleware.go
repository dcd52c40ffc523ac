package tenant

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-identity/internal/platform/httpx"
)

// HeaderName carries the tenant identifier on inbound requests.
const HeaderName = "X-Tenant-ID"

// Middleware places the request tenant into the context. Requests without a
// valid tenant header are rejected.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := ParseID(r.Header.Get(HeaderName))
		if err != nil {
			detail := "tenant header required"
			if errors.Is(err, ErrInvalid) {
				detail = "tenant header malformed"
			}
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", detail)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}
