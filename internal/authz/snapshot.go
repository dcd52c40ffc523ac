// Package authz resolves the runtime authorization snapshot of an identity
// record and projects it into the shape consumed by access control.
package authz

import (
	"sort"
	"time"
)

// Snapshot is the runtime-only authorization view of one user. It is built
// per request, never persisted and never shared between goroutines.
type Snapshot struct {
	UserID       int64
	TenantName   string
	TenantStatus string

	roleNames   map[string]struct{}
	permissions map[string]struct{}

	// Unresolved counts role references the directory did not know.
	Unresolved     int
	Degraded       bool
	DegradedReason string
	ResolvedAt     time.Time
}

func newSnapshot(userID int64, now time.Time) *Snapshot {
	return &Snapshot{
		UserID:      userID,
		roleNames:   make(map[string]struct{}),
		permissions: make(map[string]struct{}),
		ResolvedAt:  now,
	}
}

// Resolved reports whether s was produced by a resolution.
func (s *Snapshot) Resolved() bool {
	return s != nil && s.roleNames != nil
}

// HasRole reports whether the snapshot grants the named role. A nil or
// unresolved snapshot grants nothing.
func (s *Snapshot) HasRole(name string) bool {
	if !s.Resolved() {
		return false
	}
	_, ok := s.roleNames[name]
	return ok
}

// HasPermission reports whether any resolved role carries the permission.
func (s *Snapshot) HasPermission(name string) bool {
	if !s.Resolved() {
		return false
	}
	_, ok := s.permissions[name]
	return ok
}

// RoleNames returns the sorted role names.
func (s *Snapshot) RoleNames() []string {
	if s == nil {
		return []string{}
	}
	return sortedKeys(s.roleNames)
}

// Permissions returns the sorted permission names.
func (s *Snapshot) Permissions() []string {
	if s == nil {
		return []string{}
	}
	return sortedKeys(s.permissions)
}

func (s *Snapshot) grant(g RoleGrant) {
	s.roleNames[g.Name] = struct{}{}
	for _, p := range g.Permissions {
		s.permissions[p] = struct{}{}
	}
}

func (s *Snapshot) degrade(reason error) {
	s.roleNames = make(map[string]struct{})
	s.permissions = make(map[string]struct{})
	s.Degraded = true
	s.DegradedReason = reason.Error()
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
