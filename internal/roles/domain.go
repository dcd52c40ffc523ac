package roles

// RoleInput carries the editable fields of a role.
type RoleInput struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
}

// PermissionsInput replaces the permission set of a role.
type PermissionsInput struct {
	Permissions []string `json:"permissions" validate:"dive,required,max=128"`
}
