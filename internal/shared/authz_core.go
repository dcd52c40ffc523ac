package shared

// Core platform permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"

	PermAuthoritiesView = "authorities.view"
	PermJobsRun         = "jobs.run"
)

// Built-in role names seeded for every tenant.
const (
	RoleAdmin = "ADMIN"
	RoleWrite = "WRITE"
	RoleRead  = "READ"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermAuthoritiesView,
		PermJobsRun,
	}
}
