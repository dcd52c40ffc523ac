package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ownedStub struct {
	Scoped
}

func TestScopedAssignOnce(t *testing.T) {
	var s ownedStub
	s.AssignTenant(7)
	assert.Equal(t, ID(7), s.TenantID())

	assert.Panics(t, func() { s.AssignTenant(7) })
	assert.Panics(t, func() { s.AssignTenant(8) })
	assert.Equal(t, ID(7), s.TenantID())
}

func TestScopedRejectsInvalidID(t *testing.T) {
	var s ownedStub
	assert.Panics(t, func() { s.AssignTenant(0) })
	assert.False(t, s.TenantID().Valid())
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, ID(42), id)

	_, err = ParseID("")
	assert.ErrorIs(t, err, ErrMissing)

	_, err = ParseID("-1")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = ParseID("acme")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCheck(t *testing.T) {
	var rec ownedStub
	rec.AssignTenant(1)

	assert.ErrorIs(t, Check(context.Background(), rec), ErrMissing)
	assert.NoError(t, Check(WithID(context.Background(), 1), rec))
	assert.ErrorIs(t, Check(WithID(context.Background(), 2), rec), ErrMismatch)
}

func TestFromContextIgnoresZero(t *testing.T) {
	_, ok := FromContext(WithID(context.Background(), 0))
	assert.False(t, ok)
}

func TestMiddleware(t *testing.T) {
	var seen ID
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set(HeaderName, "3")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Equal(t, ID(3), seen)

	res = httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "tenant header required")

	req = httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set(HeaderName, "abc")
	res = httptest.NewRecorder()
	h.ServeHTTP(res, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "malformed")
}
