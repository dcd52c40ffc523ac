package users

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-identity/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
)

type openGuard struct{ required [][]string }

func (g *openGuard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	g.required = append(g.required, perms)
	return func(next http.Handler) http.Handler { return next }
}

// reservedRoles refuses grants of the listed role ids.
type reservedRoles map[int64]bool

func (r reservedRoles) CheckRoleGrant(_ context.Context, roleIDs []int64) error {
	for _, id := range roleIDs {
		if r[id] {
			return fmt.Errorf("role %d reserved: %w", id, httpx.ErrForbidden)
		}
	}
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc, _ := newTestService()
	h := NewHandler(nil, svc, &openGuard{}, reservedRoles{99: true})
	r := chi.NewRouter()
	r.Use(tenant.Middleware)
	r.Route("/users", h.MountRoutes)
	return r, svc
}

func do(t *testing.T, h http.Handler, method, path, body string, tenantID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(tenant.HeaderName, tenantID)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestHandlerCreateAndShow(t *testing.T) {
	router, _ := newTestRouter(t)

	res := do(t, router, http.MethodPost, "/users", `{"email":"ops@acme.io","first_name":"Ops","last_name":"Team","password":"longenough","role_ids":[3]}`, "1")
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	assert.NotContains(t, res.Body.String(), "longenough")
	assert.NotContains(t, res.Body.String(), "credential_secret")

	var created View
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))
	assert.Equal(t, tenant.ID(1), created.TenantID)
	assert.Equal(t, []int64{3}, created.RoleIDs)
	assert.True(t, created.Eligible)

	res = do(t, router, http.MethodGet, "/users/1", "", "1")
	assert.Equal(t, http.StatusOK, res.Code)

	res = do(t, router, http.MethodGet, "/users/1", "", "2")
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestHandlerCreateValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	res := do(t, router, http.MethodPost, "/users", `{"email":"bad","first_name":"A","last_name":"B","password":"longenough"}`, "1")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(t, router, http.MethodPost, "/users", `{`, "1")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(t, router, http.MethodPost, "/users", `{"email":"a@x.com","first_name":"A","last_name":"B","password":"longenough"}`, "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHandlerDuplicateEmail(t *testing.T) {
	router, _ := newTestRouter(t)
	body := `{"email":"a@x.com","first_name":"A","last_name":"B","password":"longenough"}`

	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/users", body, "1").Code)
	assert.Equal(t, http.StatusConflict, do(t, router, http.MethodPost, "/users", body, "1").Code)
	assert.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/users", body, "2").Code)
}

func TestHandlerRolesAndStatus(t *testing.T) {
	router, _ := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/users", `{"email":"a@x.com","first_name":"A","last_name":"B","password":"longenough"}`, "1").Code)

	res := do(t, router, http.MethodPost, "/users/1/roles/10", "", "1")
	require.Equal(t, http.StatusOK, res.Code)
	var view View
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &view))
	assert.Equal(t, []int64{10}, view.RoleIDs)

	res = do(t, router, http.MethodPost, "/users/1/roles/0", "", "1")
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(t, router, http.MethodDelete, "/users/1/roles/10", "", "1")
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &view))
	assert.Empty(t, view.RoleIDs)

	res = do(t, router, http.MethodPost, "/users/1/status/lock", "", "1")
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &view))
	assert.False(t, view.AccountNonLocked)
	assert.False(t, view.Eligible)

	res = do(t, router, http.MethodPost, "/users/1/status/teleport", "", "1")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHandlerRefusesReservedRoles(t *testing.T) {
	router, svc := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/users", `{"email":"a@x.com","first_name":"A","last_name":"B","password":"longenough","role_ids":[10]}`, "1").Code)

	assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodPost, "/users/1/roles/99", "", "1").Code)
	assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodDelete, "/users/1/roles/99", "", "1").Code)
	assert.Equal(t, http.StatusForbidden, do(t, router, http.MethodPost, "/users", `{"email":"b@x.com","first_name":"A","last_name":"B","password":"longenough","role_ids":[10,99]}`, "1").Code)

	u, err := svc.Get(tenantCtx(1), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, u.RoleIDs())
	_, err = svc.FindByEmail(tenantCtx(1), "b@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandlerWithoutGrantCheckerRefusesRoles(t *testing.T) {
	svc, _ := newTestService()
	r := chi.NewRouter()
	r.Use(tenant.Middleware)
	r.Route("/users", NewHandler(nil, svc, &openGuard{}, nil).MountRoutes)

	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodPost, "/users", `{"email":"a@x.com","first_name":"A","last_name":"B","password":"longenough","role_ids":[10]}`, "1").Code)
	assert.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/users", `{"email":"a@x.com","first_name":"A","last_name":"B","password":"longenough"}`, "1").Code)
}

func TestHandlerList(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/users", `{"email":"`+email+`","first_name":"A","last_name":"B","password":"longenough"}`, "1").Code)
	}

	res := do(t, router, http.MethodGet, "/users?per_page=2&page=2", "", "1")
	require.Equal(t, http.StatusOK, res.Code)
	var body listResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Len(t, body.Users, 1)
	assert.Equal(t, 3, body.Pagination.Total)
	assert.Equal(t, 2, body.Pagination.TotalPages)

	res = do(t, router, http.MethodGet, "/users?enabled=maybe", "", "1")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}
