package authz

import (
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
)

// Authorities maps the resolved role names one to one into the authority
// set, sorted. An unresolved snapshot yields an empty set.
func Authorities(s *Snapshot) []string {
	return s.RoleNames()
}

// Principal is the shape handed to access control.
type Principal struct {
	Subject     string    `json:"subject"`
	UserID      int64     `json:"user_id"`
	TenantID    tenant.ID `json:"tenant_id"`
	Authorities []string  `json:"authorities"`
	Permissions []string  `json:"permissions"`
	Eligible    bool      `json:"eligible"`
}

// HasAuthority reports whether the principal holds the named authority.
func (p Principal) HasAuthority(name string) bool {
	for _, a := range p.Authorities {
		if a == name {
			return true
		}
	}
	return false
}

// Project adapts a user and its snapshot into a Principal. A snapshot that
// belongs to another user contributes nothing.
func Project(u *users.User, s *Snapshot) Principal {
	if u == nil {
		return Principal{Authorities: []string{}, Permissions: []string{}}
	}
	if s != nil && s.UserID != u.ID {
		s = nil
	}
	return Principal{
		Subject:     u.Username(),
		UserID:      u.ID,
		TenantID:    u.TenantID(),
		Authorities: Authorities(s),
		Permissions: s.Permissions(),
		Eligible:    u.Eligible(),
	}
}
