package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-identity/internal/authz"
)

// MemoryDirectory is an in-process role directory used by tests and by the
// server in test mode.
type MemoryDirectory struct {
	mu          sync.RWMutex
	nextRole    int64
	nextPerm    int64
	roles       map[int64]Role
	permissions map[string]Permission
	now         func() time.Time
}

// NewMemoryDirectory constructs an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		roles:       make(map[int64]Role),
		permissions: make(map[string]Permission),
		now:         time.Now,
	}
}

// ListRoles returns all roles ordered by name.
func (m *MemoryDirectory) ListRoles(ctx context.Context) ([]Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, copyRole(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetRole fetches a role by ID.
func (m *MemoryDirectory) GetRole(ctx context.Context, id int64) (Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return copyRole(r), nil
}

// CreateRole inserts a new role.
func (m *MemoryDirectory) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(name, 0) {
		return Role{}, fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	m.nextRole++
	now := m.now().UTC()
	r := Role{ID: m.nextRole, Name: name, Description: strings.TrimSpace(description), Permissions: []string{}, CreatedAt: now, UpdatedAt: now}
	m.roles[r.ID] = r
	return copyRole(r), nil
}

// UpdateRole updates an existing role.
func (m *MemoryDirectory) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	if m.nameTaken(name, id) {
		return Role{}, fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.Name = name
	r.Description = strings.TrimSpace(description)
	r.UpdatedAt = m.now().UTC()
	m.roles[id] = r
	return copyRole(r), nil
}

// DeleteRole removes a role by ID.
func (m *MemoryDirectory) DeleteRole(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (m *MemoryDirectory) ListPermissions(ctx context.Context) ([]Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// EnsurePermission upserts a permission.
func (m *MemoryDirectory) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name required", ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.permissions[name]
	if !ok {
		m.nextPerm++
		p = Permission{ID: m.nextPerm, Name: name}
	}
	p.Description = strings.TrimSpace(description)
	m.permissions[name] = p
	return p, nil
}

// SetRolePermissions replaces the permissions of a role by name.
func (m *MemoryDirectory) SetRolePermissions(ctx context.Context, roleID int64, names []string) error {
	names = normalizeNames(names)
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	for _, n := range names {
		if _, ok := m.permissions[n]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, n)
		}
	}
	r.Permissions = names
	r.UpdatedAt = m.now().UTC()
	m.roles[roleID] = r
	return nil
}

// ResolveRoles returns the grants of the known roles among ids.
func (m *MemoryDirectory) ResolveRoles(ctx context.Context, ids []int64) (map[int64]authz.RoleGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]authz.RoleGrant, len(ids))
	for _, id := range ids {
		r, ok := m.roles[id]
		if !ok {
			continue
		}
		out[id] = authz.RoleGrant{ID: r.ID, Name: r.Name, Permissions: append([]string(nil), r.Permissions...)}
	}
	return out, nil
}

func (m *MemoryDirectory) nameTaken(name string, except int64) bool {
	for id, r := range m.roles {
		if id != except && r.Name == name {
			return true
		}
	}
	return false
}

func copyRole(r Role) Role {
	r.Permissions = append([]string{}, r.Permissions...)
	return r
}

var _ authz.RoleDirectory = (*MemoryDirectory)(nil)
