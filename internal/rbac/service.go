package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-identity/internal/authz"
	"github.com/odyssey-erp/odyssey-identity/internal/platform/db"
)

// Service orchestrates RBAC operations against PostgreSQL.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

const roleSelect = `
SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
       COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')::text[]
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id`

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx, roleSelect+` GROUP BY r.id ORDER BY r.name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()
	roles := make([]Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("rbac: list roles: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(s.pool.QueryRow(ctx, roleSelect+` WHERE r.id = $1 GROUP BY r.id`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, fmt.Errorf("rbac: get role: %w", err)
	}
	return role, nil
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalid)
	}
	role := Role{Name: name, Description: strings.TrimSpace(description), Permissions: []string{}}
	err := s.pool.QueryRow(ctx, `
INSERT INTO roles (name, description) VALUES ($1, $2)
RETURNING id, created_at, updated_at`, role.Name, role.Description).Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, translate("create role", err)
	}
	return role, nil
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalid)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1`,
		id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, translate("update role", err)
	}
	if tag.RowsAffected() == 0 {
		return Role{}, ErrNotFound
	}
	return s.GetRole(ctx, id)
}

// DeleteRole removes a role by ID. User references to it are left in place
// and resolve as unknown from then on.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("rbac: delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	defer rows.Close()
	perms := make([]Permission, 0)
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("rbac: list permissions: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// EnsurePermission upserts a permission ensuring description is stored.
func (s *Service) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name required", ErrInvalid)
	}
	p := Permission{Name: name, Description: strings.TrimSpace(description)}
	err := s.pool.QueryRow(ctx, `
INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id`, p.Name, p.Description).Scan(&p.ID)
	if err != nil {
		return Permission{}, fmt.Errorf("rbac: ensure permission: %w", err)
	}
	return p, nil
}

// SetRolePermissions replaces the permissions of a role by name.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, names []string) error {
	names = normalizeNames(names)
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists); err != nil {
			return fmt.Errorf("rbac: set role permissions: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		var ids []int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(array_agg(id), '{}')::bigint[] FROM permissions WHERE name = ANY($1)`, names).Scan(&ids); err != nil {
			return fmt.Errorf("rbac: set role permissions: %w", err)
		}
		if len(ids) != len(names) {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, strings.Join(names, ","))
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("rbac: set role permissions: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) SELECT $1, unnest($2::bigint[])`, roleID, ids); err != nil {
			return fmt.Errorf("rbac: set role permissions: %w", err)
		}
		_, err := tx.Exec(ctx, `UPDATE roles SET updated_at = NOW() WHERE id = $1`, roleID)
		return err
	})
}

// ResolveRoles returns the grants of the known roles among ids. Unknown ids
// are absent from the result.
func (s *Service) ResolveRoles(ctx context.Context, ids []int64) (map[int64]authz.RoleGrant, error) {
	if len(ids) == 0 {
		return map[int64]authz.RoleGrant{}, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT r.id, r.name, p.name
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE r.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("rbac: resolve roles: %w", err)
	}
	defer rows.Close()
	var flat []grantRow
	for rows.Next() {
		var row grantRow
		if err := rows.Scan(&row.roleID, &row.roleName, &row.permission); err != nil {
			return nil, fmt.Errorf("rbac: resolve roles: %w", err)
		}
		flat = append(flat, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: resolve roles: %w", err)
	}
	return groupGrants(flat), nil
}

type grantRow struct {
	roleID     int64
	roleName   string
	permission *string
}

func groupGrants(rows []grantRow) map[int64]authz.RoleGrant {
	out := make(map[int64]authz.RoleGrant)
	for _, row := range rows {
		grant, ok := out[row.roleID]
		if !ok {
			grant = authz.RoleGrant{ID: row.roleID, Name: row.roleName, Permissions: []string{}}
		}
		if row.permission != nil && *row.permission != "" {
			grant.Permissions = append(grant.Permissions, *row.permission)
		}
		out[row.roleID] = grant
	}
	for id, grant := range out {
		sort.Strings(grant.Permissions)
		out[id] = grant
	}
	return out
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &role.Permissions)
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	return role, err
}

func normalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func translate(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("rbac: %s: %w", op, err)
}

var _ authz.RoleDirectory = (*Service)(nil)
