package users

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
)

// User is the persisted principal of a tenant. It carries credentials,
// account status flags and references to global roles. Resolved role names and
// permissions are not part of it; see package authz.
type User struct {
	tenant.Scoped

	ID               int64
	FirstName        string
	LastName         string
	Email            string
	CredentialSecret string

	Enabled               bool
	AccountNonExpired     bool
	AccountNonLocked      bool
	CredentialsNonExpired bool

	roleIDs map[int64]struct{}

	Version              int64
	CredentialsUpdatedAt time.Time
	AccountExpiresAt     *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewUser builds an unsaved user owned by tenantID. All status flags start true.
func NewUser(tenantID tenant.ID, email, firstName, lastName, credentialSecret string) (*User, error) {
	if !tenantID.Valid() {
		return nil, fmt.Errorf("%w: tenant required", ErrInvalidUser)
	}
	u := &User{
		FirstName:             normalizeName(firstName),
		LastName:              normalizeName(lastName),
		Email:                 NormalizeEmail(email),
		CredentialSecret:      credentialSecret,
		Enabled:               true,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
		roleIDs:               map[int64]struct{}{},
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	u.AssignTenant(tenantID)
	return u, nil
}

// NormalizeEmail canonicalises a login handle for storage and lookup.
func NormalizeEmail(email string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(email)))
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Username is the externally visible login handle.
func (u *User) Username() string {
	return u.Email
}

// FullName joins the display attributes.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Eligible reports whether the account may authenticate.
func (u *User) Eligible() bool {
	return u.Enabled && u.AccountNonExpired && u.AccountNonLocked && u.CredentialsNonExpired
}

// Persisted reports whether storage has assigned an id.
func (u *User) Persisted() bool {
	return u != nil && u.ID > 0
}

// Equal compares identities by id. Unsaved users are only equal to themselves.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return false
	}
	if u == other {
		return true
	}
	return u.ID > 0 && u.ID == other.ID
}

// AddRole adds a role reference. Adding a present role is a no-op.
func (u *User) AddRole(roleID int64) error {
	if roleID <= 0 {
		return fmt.Errorf("%w: role id %d", ErrInvalidReference, roleID)
	}
	if u.roleIDs == nil {
		u.roleIDs = map[int64]struct{}{}
	}
	u.roleIDs[roleID] = struct{}{}
	return nil
}

// RemoveRole drops a role reference. Removing an absent role is a no-op.
func (u *User) RemoveRole(roleID int64) {
	delete(u.roleIDs, roleID)
}

// HasRoleID reports whether the role reference is present.
func (u *User) HasRoleID(roleID int64) bool {
	_, ok := u.roleIDs[roleID]
	return ok
}

// RoleIDs returns the role references in ascending order. Never nil.
func (u *User) RoleIDs() []int64 {
	ids := make([]int64, 0, len(u.roleIDs))
	for id := range u.roleIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RoleCount returns the number of role references.
func (u *User) RoleCount() int {
	return len(u.roleIDs)
}

// Account status transitions. Each returns true when the state changed.

// Disable deactivates the account. Re-enabling is a separate administrative act.
func (u *User) Disable() bool { return setFlag(&u.Enabled, false) }

// Enable reactivates a disabled account.
func (u *User) Enable() bool { return setFlag(&u.Enabled, true) }

func (u *User) Lock() bool              { return setFlag(&u.AccountNonLocked, false) }
func (u *User) Unlock() bool            { return setFlag(&u.AccountNonLocked, true) }
func (u *User) ExpireAccount() bool     { return setFlag(&u.AccountNonExpired, false) }
func (u *User) RenewAccount() bool      { return setFlag(&u.AccountNonExpired, true) }
func (u *User) ExpireCredentials() bool { return setFlag(&u.CredentialsNonExpired, false) }
func (u *User) RenewCredentials() bool  { return setFlag(&u.CredentialsNonExpired, true) }

// RenewCredentialsAt renews expired credentials and restarts their age at
// now, so the next credential sweep does not expire them again.
func (u *User) RenewCredentialsAt(now time.Time) bool {
	if !u.RenewCredentials() {
		return false
	}
	u.CredentialsUpdatedAt = now
	return true
}

// RenewAccountAt renews the account and drops an expiry that already lapsed
// at now. A future expiry is kept.
func (u *User) RenewAccountAt(now time.Time) bool {
	changed := u.RenewAccount()
	if u.AccountExpiresAt != nil && !u.AccountExpiresAt.After(now) {
		u.AccountExpiresAt = nil
		changed = true
	}
	return changed
}

func setFlag(flag *bool, value bool) bool {
	if *flag == value {
		return false
	}
	*flag = value
	return true
}

// Validate checks the invariants storage relies on.
func (u *User) Validate() error {
	if err := validate.Struct(userRules{
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Secret:    u.CredentialSecret,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	return nil
}

func (u *User) String() string {
	return fmt.Sprintf("User{id=%d, email=%q, enabled=%t, roleCount=%d, tenantId=%d}",
		u.ID, u.Email, u.Enabled, u.RoleCount(), u.TenantID())
}

// LogValue keeps the credential secret out of structured logs.
func (u *User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("id", u.ID),
		slog.String("email", u.Email),
		slog.Bool("enabled", u.Enabled),
		slog.Int("role_count", u.RoleCount()),
		slog.Int64("tenant_id", int64(u.TenantID())),
	)
}

// restore rebuilds a user from storage.
func restore(tenantID tenant.ID, u User, roleIDs []int64) *User {
	out := u
	out.Scoped = tenant.Scoped{}
	out.AssignTenant(tenantID)
	out.roleIDs = make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		out.roleIDs[id] = struct{}{}
	}
	return &out
}

// clone returns a deep copy sharing nothing mutable with u.
func (u *User) clone() *User {
	out := *u
	out.roleIDs = make(map[int64]struct{}, len(u.roleIDs))
	for id := range u.roleIDs {
		out.roleIDs[id] = struct{}{}
	}
	if u.AccountExpiresAt != nil {
		at := *u.AccountExpiresAt
		out.AccountExpiresAt = &at
	}
	return &out
}
