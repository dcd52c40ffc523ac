// Package tenant carries the current tenant through an operation and provides
// the scoping base embedded by every tenant-owned entity.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMissing indicates the context carries no tenant.
	ErrMissing = errors.New("tenant: missing from context")
	// ErrMismatch indicates a record belongs to a different tenant than the context.
	ErrMismatch = errors.New("tenant: mismatch")
	// ErrInvalid indicates a malformed tenant identifier.
	ErrInvalid = errors.New("tenant: invalid id")
)

// ID identifies a tenant. Zero means unset.
type ID int64

// Valid reports whether the id can scope an entity.
func (id ID) Valid() bool {
	return id > 0
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses a tenant identifier as received from transport headers.
func ParseID(raw string) (ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrMissing
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, raw)
	}
	return ID(v), nil
}

type contextKey struct{}

// WithID stores the tenant in context.
func WithID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext extracts the tenant from context.
func FromContext(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(contextKey{}).(ID)
	if !ok || !id.Valid() {
		return 0, false
	}
	return id, true
}

// Require returns the context tenant or ErrMissing.
func Require(ctx context.Context) (ID, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return 0, ErrMissing
	}
	return id, nil
}

// Owned is implemented by every tenant-scoped entity.
type Owned interface {
	TenantID() ID
}

// Scoped is embedded by entities that belong to exactly one tenant.
// The tenant is assigned once, by the creation path, and never changes.
type Scoped struct {
	tenantID ID
}

// TenantID returns the owning tenant.
func (s Scoped) TenantID() ID {
	return s.tenantID
}

// AssignTenant sets the owning tenant. Calling it with an invalid id or on an
// already assigned entity is a programming error and panics.
func (s *Scoped) AssignTenant(id ID) {
	if !id.Valid() {
		panic(fmt.Sprintf("tenant: assign invalid id %d", id))
	}
	if s.tenantID.Valid() {
		panic(fmt.Sprintf("tenant: reassign from %d to %d", s.tenantID, id))
	}
	s.tenantID = id
}

// Check is the scoping predicate storage and services apply to loaded records.
func Check(ctx context.Context, owned Owned) error {
	current, err := Require(ctx)
	if err != nil {
		return err
	}
	if owned == nil || owned.TenantID() != current {
		return ErrMismatch
	}
	return nil
}
