package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
)

// StatusAction names an account status transition.
type StatusAction string

const (
	ActionDeactivate        StatusAction = "deactivate"
	ActionReactivate        StatusAction = "reactivate"
	ActionLock              StatusAction = "lock"
	ActionUnlock            StatusAction = "unlock"
	ActionExpireAccount     StatusAction = "expire-account"
	ActionRenewAccount      StatusAction = "renew-account"
	ActionExpireCredentials StatusAction = "expire-credentials"
	ActionRenewCredentials  StatusAction = "renew-credentials"
)

// ErrUnknownAction indicates an unsupported status transition name.
var ErrUnknownAction = errors.New("users: unknown status action")

var transitions = map[StatusAction]func(*User, time.Time) bool{
	ActionDeactivate:        flagOnly((*User).Disable),
	ActionReactivate:        flagOnly((*User).Enable),
	ActionLock:              flagOnly((*User).Lock),
	ActionUnlock:            flagOnly((*User).Unlock),
	ActionExpireAccount:     flagOnly((*User).ExpireAccount),
	ActionRenewAccount:      (*User).RenewAccountAt,
	ActionExpireCredentials: flagOnly((*User).ExpireCredentials),
	ActionRenewCredentials:  (*User).RenewCredentialsAt,
}

func flagOnly(fn func(*User) bool) func(*User, time.Time) bool {
	return func(u *User, _ time.Time) bool { return fn(u) }
}

// RegisterInput carries provisioning data for a new user.
type RegisterInput struct {
	Email            string
	FirstName        string
	LastName         string
	Password         string
	RoleIDs          []int64
	AccountExpiresAt *time.Time
}

// Service handles user business logic. The tenant always comes from context.
type Service struct {
	repo        Repository
	credentials Credentials
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, credentials Credentials, logger *slog.Logger) *Service {
	if credentials == nil {
		credentials = BcryptCredentials{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		credentials: credentials,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register provisions a user in the context tenant.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: credential required", ErrInvalidUser)
	}
	secret, err := s.credentials.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u, err := NewUser(tenantID, in.Email, in.FirstName, in.LastName, secret)
	if err != nil {
		return nil, err
	}
	for _, id := range in.RoleIDs {
		if err := u.AddRole(id); err != nil {
			return nil, err
		}
	}
	u.AccountExpiresAt = in.AccountExpiresAt
	if err := s.repo.Save(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", slog.Any("user", u))
	return u, nil
}

// Get loads a user of the context tenant.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.Load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.scoped(ctx, u)
}

// FindByEmail loads a user of the context tenant by login handle.
func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.FindByEmail(ctx, tenantID, email)
	if err != nil {
		return nil, err
	}
	return s.scoped(ctx, u)
}

// ListUsers returns a page of users of the context tenant.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]*User, int, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, tenantID, filter)
}

// AssignRole adds a role reference and persists the user. Any authorization
// snapshot built before the call is stale and must be resolved again.
func (s *Service) AssignRole(ctx context.Context, id, roleID int64) (*User, error) {
	if roleID <= 0 {
		return nil, fmt.Errorf("%w: role id %d", ErrInvalidReference, roleID)
	}
	return s.mutate(ctx, id, func(u *User) (bool, error) {
		if u.HasRoleID(roleID) {
			return false, nil
		}
		return true, u.AddRole(roleID)
	})
}

// RemoveRole drops a role reference and persists the user.
func (s *Service) RemoveRole(ctx context.Context, id, roleID int64) (*User, error) {
	return s.mutate(ctx, id, func(u *User) (bool, error) {
		if !u.HasRoleID(roleID) {
			return false, nil
		}
		u.RemoveRole(roleID)
		return true, nil
	})
}

// ApplyStatus runs a named status transition. Repeating a transition is a
// no-op. Renewals also reset the timestamps the expiry sweeps read.
func (s *Service) ApplyStatus(ctx context.Context, id int64, action StatusAction) (*User, error) {
	transition, ok := transitions[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	u, err := s.mutate(ctx, id, func(u *User) (bool, error) {
		return transition(u, s.now()), nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user status applied", slog.String("action", string(action)), slog.Any("user", u))
	return u, nil
}

// Deactivate disables the account without removing it.
func (s *Service) Deactivate(ctx context.Context, id int64) (*User, error) {
	return s.ApplyStatus(ctx, id, ActionDeactivate)
}

func (s *Service) mutate(ctx context.Context, id int64, fn func(*User) (bool, error)) (*User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := fn(u)
	if err != nil {
		return nil, err
	}
	if !changed {
		return u, nil
	}
	if err := s.repo.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) scoped(ctx context.Context, u *User) (*User, error) {
	if err := tenant.Check(ctx, u); err != nil {
		s.logger.Debug("tenant scope rejected record", slog.Int64("user_id", u.ID), slog.Any("error", err))
		return nil, ErrNotFound
	}
	return u, nil
}
