package rbac

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-identity/internal/shared"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", shared.ErrNotFound)
	// ErrDuplicate indicates a role or permission name already in use.
	ErrDuplicate = errors.New("rbac: duplicate name")
	// ErrInvalid indicates malformed role or permission input.
	ErrInvalid = errors.New("rbac: invalid input")
	// ErrUnknownPermission indicates a permission name absent from the catalogue.
	ErrUnknownPermission = errors.New("rbac: unknown permission")
)

// Role represents a high-level permission grouping. Roles are global and
// shared by every tenant.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
