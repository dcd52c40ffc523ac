package roles

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/odyssey-identity/internal/rbac"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	CreateRole(ctx context.Context, name, description string) (rbac.Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (rbac.Role, error)
	DeleteRole(ctx context.Context, id int64) error
	SetRolePermissions(ctx context.Context, roleID int64, names []string) error
}

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole adds a role and optionally attaches permissions to it.
func (s *Service) CreateRole(ctx context.Context, in RoleInput, permissions []string) (rbac.Role, error) {
	role, err := s.repo.CreateRole(ctx, in.Name, in.Description)
	if err != nil {
		return rbac.Role{}, err
	}
	if len(permissions) > 0 {
		if err := s.repo.SetRolePermissions(ctx, role.ID, permissions); err != nil {
			return rbac.Role{}, err
		}
		if role, err = s.repo.GetRole(ctx, role.ID); err != nil {
			return rbac.Role{}, err
		}
	}
	s.logger.Info("role created", slog.Int64("role_id", role.ID), slog.String("name", role.Name))
	return role, nil
}

// UpdateRole renames or redescribes a role.
func (s *Service) UpdateRole(ctx context.Context, id int64, in RoleInput) (rbac.Role, error) {
	return s.repo.UpdateRole(ctx, id, in.Name, in.Description)
}

// DeleteRole removes a role. Users still referencing it keep the reference.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.logger.Info("role deleted", slog.Int64("role_id", id))
	return nil
}

// SetPermissions replaces the permissions of a role.
func (s *Service) SetPermissions(ctx context.Context, id int64, in PermissionsInput) (rbac.Role, error) {
	if err := s.repo.SetRolePermissions(ctx, id, in.Permissions); err != nil {
		return rbac.Role{}, err
	}
	return s.repo.GetRole(ctx, id)
}
