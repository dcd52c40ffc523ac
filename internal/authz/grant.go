package authz

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-identity/internal/platform/httpx"
)

// CheckRoleGrant allows handing out or withdrawing roleIDs only when every
// permission they carry is already held by the acting user of ctx. Role ids
// unknown to the directory carry nothing and pass.
func (r *Resolver) CheckRoleGrant(ctx context.Context, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return nil
	}
	snap, ok := SnapshotFromContext(ctx)
	if !ok {
		return fmt.Errorf("role change without resolved actor: %w", httpx.ErrForbidden)
	}
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	grants, err := r.roles.ResolveRoles(lookupCtx, roleIDs)
	if err != nil {
		return fmt.Errorf("authz: check role grant: %w", err)
	}
	for _, id := range roleIDs {
		g, ok := grants[id]
		if !ok {
			continue
		}
		for _, perm := range g.Permissions {
			if !snap.HasPermission(perm) {
				return fmt.Errorf("actor %d lacks %s carried by role %s: %w", snap.UserID, perm, g.Name, httpx.ErrForbidden)
			}
		}
	}
	return nil
}
