package rbac

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-identity/internal/shared"
)

// Catalogue is the subset of the directory needed to install built-ins.
type Catalogue interface {
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	EnsurePermission(ctx context.Context, name, description string) (Permission, error)
	SetRolePermissions(ctx context.Context, roleID int64, names []string) error
}

var permissionDescriptions = map[string]string{
	shared.PermUsersView:       "View users of the tenant",
	shared.PermUsersEdit:       "Provision users and change their roles and status",
	shared.PermRolesView:       "View roles",
	shared.PermRolesEdit:       "Create, edit and delete roles",
	shared.PermPermissionsView: "View the permission catalogue",
	shared.PermAuthoritiesView: "View resolved authorities of users",
	shared.PermJobsRun:         "Trigger maintenance sweeps",
}

// BuiltinRoles maps each built-in role to its permissions.
func BuiltinRoles() map[string][]string {
	return map[string][]string{
		shared.RoleAdmin: shared.CoreScopes(),
		shared.RoleWrite: {shared.PermUsersView, shared.PermUsersEdit, shared.PermRolesView, shared.PermPermissionsView, shared.PermAuthoritiesView},
		shared.RoleRead:  {shared.PermUsersView, shared.PermRolesView, shared.PermPermissionsView},
	}
}

// EnsureBuiltins installs the core permissions and built-in roles. Existing
// roles keep their identity and get their permission set reset. It returns
// the built-in roles by name.
func EnsureBuiltins(ctx context.Context, store Catalogue) (map[string]Role, error) {
	for _, name := range shared.CoreScopes() {
		if _, err := store.EnsurePermission(ctx, name, permissionDescriptions[name]); err != nil {
			return nil, fmt.Errorf("rbac: ensure builtins: %w", err)
		}
	}
	existing, err := store.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: ensure builtins: %w", err)
	}
	byName := make(map[string]Role, len(existing))
	for _, r := range existing {
		byName[r.Name] = r
	}
	out := make(map[string]Role)
	for name, perms := range BuiltinRoles() {
		role, ok := byName[name]
		if !ok {
			if role, err = store.CreateRole(ctx, name, "built-in "+name+" role"); err != nil {
				return nil, fmt.Errorf("rbac: ensure builtins: %w", err)
			}
		}
		if err := store.SetRolePermissions(ctx, role.ID, perms); err != nil {
			return nil, fmt.Errorf("rbac: ensure builtins: %w", err)
		}
		role.Permissions = normalizeNames(perms)
		out[name] = role
	}
	return out, nil
}
