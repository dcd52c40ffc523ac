package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-identity/internal/observability"
	"github.com/odyssey-erp/odyssey-identity/internal/rbac"
	"github.com/odyssey-erp/odyssey-identity/internal/shared"
	_ "github.com/odyssey-erp/odyssey-identity/internal/testing/guard"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
)

type env struct {
	router  http.Handler
	svc     *Services
	builtin map[string]rbac.Role
	admin   *users.User
}

func newEnv(t *testing.T, ready func(context.Context) error) *env {
	t.Helper()
	ctx := context.Background()
	cfg := &Config{BcryptCost: bcrypt.MinCost, RateLimitPerMinute: 1000}
	dir := rbac.NewMemoryDirectory()
	builtin, err := rbac.EnsureBuiltins(ctx, dir)
	require.NoError(t, err)

	stores := Stores{Users: users.NewMemoryRepository(), Roles: dir, Ready: ready}
	metrics := observability.NewMetrics()
	svc := NewServices(cfg, nil, metrics, stores)
	admin, err := svc.Users.Register(tenant.WithID(ctx, 1), users.RegisterInput{
		Email: "admin@acme.io", FirstName: "Ada", LastName: "Admin", Password: "admin-pass", RoleIDs: []int64{builtin[shared.RoleAdmin].ID},
	})
	require.NoError(t, err)

	return &env{
		router:  NewRouter(NewRouterParams(cfg, nil, metrics, stores, svc)),
		svc:     svc,
		builtin: builtin,
		admin:   admin,
	}
}

func (e *env) call(method, path, body, tenantID string, actor int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(tenant.HeaderName, tenantID)
	}
	if actor > 0 {
		req.Header.Set(shared.ActorHeader, strconv.FormatInt(actor, 10))
	}
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	return res
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)
	res := e.call(http.MethodGet, "/healthz", "", "", 0)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))

	e = newEnv(t, func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, e.call(http.MethodGet, "/healthz", "", "", 0).Code)
}

func TestTenantHeaderRequired(t *testing.T) {
	e := newEnv(t, nil)
	assert.Equal(t, http.StatusBadRequest, e.call(http.MethodGet, "/users", "", "", e.admin.ID).Code)
}

func TestProvisionAndAuthenticate(t *testing.T) {
	e := newEnv(t, nil)
	writeRole := strconv.FormatInt(e.builtin[shared.RoleWrite].ID, 10)

	res := e.call(http.MethodPost, "/users", `{"email":"writer@acme.io","first_name":"W","last_name":"R","password":"writer-pass","role_ids":[`+writeRole+`,999]}`, "1", e.admin.ID)
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var created users.View
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &created))

	res = e.call(http.MethodPost, "/auth/authenticate", `{"email":"writer@acme.io","password":"writer-pass"}`, "1", 0)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var principal struct {
		Authorities []string `json:"authorities"`
		Eligible    bool     `json:"eligible"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &principal))
	assert.Equal(t, []string{shared.RoleWrite}, principal.Authorities)
	assert.True(t, principal.Eligible)

	res = e.call(http.MethodGet, "/users/"+strconv.FormatInt(created.ID, 10)+"/authorities", "", "1", e.admin.ID)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Contains(t, res.Body.String(), `"unresolved":1`)

	assert.Equal(t, http.StatusUnauthorized,
		e.call(http.MethodPost, "/auth/authenticate", `{"email":"writer@acme.io","password":"writer-pass"}`, "2", 0).Code)
}

func TestWriterCannotEditRoles(t *testing.T) {
	e := newEnv(t, nil)
	writer, err := e.svc.Users.Register(tenant.WithID(context.Background(), 1), users.RegisterInput{
		Email: "w@acme.io", FirstName: "W", LastName: "R", Password: "writer-pass", RoleIDs: []int64{e.builtin[shared.RoleWrite].ID},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, e.call(http.MethodGet, "/roles", "", "1", writer.ID).Code)
	assert.Equal(t, http.StatusForbidden, e.call(http.MethodPost, "/roles", `{"name":"AUDITOR"}`, "1", writer.ID).Code)
	assert.Equal(t, http.StatusCreated, e.call(http.MethodPost, "/roles", `{"name":"AUDITOR","permissions":["users.view"]}`, "1", e.admin.ID).Code)
	assert.Equal(t, http.StatusOK, e.call(http.MethodGet, "/permissions", "", "1", writer.ID).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, nil)
	e.call(http.MethodGet, "/users", "", "1", e.admin.ID)

	res := e.call(http.MethodGet, "/metrics", "", "", 0)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "odyssey_identity_http_requests_total")
	assert.Contains(t, res.Body.String(), "odyssey_identity_snapshot_resolutions_total")
}

func TestJobsRequireRunPermission(t *testing.T) {
	e := newEnv(t, nil)
	writer, err := e.svc.Users.Register(tenant.WithID(context.Background(), 1), users.RegisterInput{
		Email: "w@acme.io", FirstName: "W", LastName: "R", Password: "writer-pass", RoleIDs: []int64{e.builtin[shared.RoleWrite].ID},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, e.call(http.MethodPost, "/jobs/identity:accounts-expire", "", "1", writer.ID).Code)
	assert.Equal(t, http.StatusServiceUnavailable, e.call(http.MethodPost, "/jobs/identity:accounts-expire", "", "1", e.admin.ID).Code)
	assert.Equal(t, http.StatusOK, e.call(http.MethodGet, "/jobs/health", "", "1", e.admin.ID).Code)
}

func TestWriterCannotGrantAdmin(t *testing.T) {
	e := newEnv(t, nil)
	ctx := tenant.WithID(context.Background(), 1)
	writeID := e.builtin[shared.RoleWrite].ID
	adminRole := strconv.FormatInt(e.builtin[shared.RoleAdmin].ID, 10)
	writer, err := e.svc.Users.Register(ctx, users.RegisterInput{
		Email: "w@acme.io", FirstName: "W", LastName: "R", Password: "writer-pass", RoleIDs: []int64{writeID},
	})
	require.NoError(t, err)
	self := strconv.FormatInt(writer.ID, 10)

	res := e.call(http.MethodPost, "/users/"+self+"/roles/"+adminRole, "", "1", writer.ID)
	assert.Equal(t, http.StatusForbidden, res.Code, res.Body.String())
	res = e.call(http.MethodPost, "/users", `{"email":"sock@acme.io","first_name":"S","last_name":"P","password":"sock-pass","role_ids":[`+adminRole+`]}`, "1", writer.ID)
	assert.Equal(t, http.StatusForbidden, res.Code, res.Body.String())
	res = e.call(http.MethodDelete, "/users/"+strconv.FormatInt(e.admin.ID, 10)+"/roles/"+adminRole, "", "1", writer.ID)
	assert.Equal(t, http.StatusForbidden, res.Code, res.Body.String())

	stored, err := e.svc.Users.Get(ctx, writer.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{writeID}, stored.RoleIDs())
	snap := e.svc.Resolver.Resolve(ctx, stored)
	assert.False(t, snap.HasPermission(shared.PermJobsRun))
	assert.False(t, snap.HasPermission(shared.PermRolesEdit))

	res = e.call(http.MethodPost, "/users", `{"email":"peer@acme.io","first_name":"P","last_name":"R","password":"peer-pass","role_ids":[`+strconv.FormatInt(writeID, 10)+`]}`, "1", writer.ID)
	assert.Equal(t, http.StatusCreated, res.Code, res.Body.String())
}
