package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
)

func TestNilSnapshotGrantsNothing(t *testing.T) {
	var snap *Snapshot
	assert.False(t, snap.HasRole("ADMIN"))
	assert.False(t, snap.HasPermission("WRITE"))
	assert.Empty(t, snap.RoleNames())
	assert.Empty(t, Authorities(snap))

	var zero Snapshot
	assert.False(t, zero.Resolved())
	assert.False(t, zero.HasRole("ADMIN"))
	assert.False(t, zero.HasPermission("WRITE"))
}

func TestAuthoritiesMatchRoleNames(t *testing.T) {
	resolver := NewResolver(demoRoles, nil, nil, nil)
	snap := resolver.Resolve(context.Background(), persistedUser(t, 1, 1, "a@x.com", 13, 10, 11))

	assert.Equal(t, snap.RoleNames(), Authorities(snap))
	assert.Equal(t, []string{"ADMIN", "EDITOR"}, Authorities(snap))
}

func TestProject(t *testing.T) {
	resolver := NewResolver(demoRoles, nil, nil, nil)
	u := persistedUser(t, 7, 3, "ops@acme.io", 10)
	snap := resolver.Resolve(context.Background(), u)

	p := Project(u, snap)
	assert.Equal(t, "ops@acme.io", p.Subject)
	assert.Equal(t, int64(7), p.UserID)
	assert.Equal(t, tenant.ID(3), p.TenantID)
	assert.Equal(t, []string{"ADMIN"}, p.Authorities)
	assert.Equal(t, []string{"WRITE"}, p.Permissions)
	assert.True(t, p.Eligible)
	assert.True(t, p.HasAuthority("ADMIN"))
	assert.False(t, p.HasAuthority("WRITE"))

	u.Lock()
	p = Project(u, snap)
	assert.False(t, p.Eligible)
	assert.Equal(t, []string{"ADMIN"}, p.Authorities, "eligibility and authorities are independent")
}

func TestProjectIgnoresForeignSnapshot(t *testing.T) {
	resolver := NewResolver(demoRoles, nil, nil, nil)
	owner := persistedUser(t, 1, 1, "a@x.com", 10)
	other := persistedUser(t, 2, 1, "b@x.com")

	p := Project(other, resolver.Resolve(context.Background(), owner))
	assert.Empty(t, p.Authorities)
	assert.Empty(t, p.Permissions)

	p = Project(nil, nil)
	assert.NotNil(t, p.Authorities)
	assert.False(t, p.Eligible)
}
