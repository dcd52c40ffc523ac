package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
)

// DefaultTimeout bounds directory lookups when the resolver is not configured.
const DefaultTimeout = 2 * time.Second

// ErrDirectoryUnavailable marks a snapshot built without directory data.
var ErrDirectoryUnavailable = errors.New("authz: directory unavailable")

// RoleGrant is what the role directory knows about one role.
type RoleGrant struct {
	ID          int64
	Name        string
	Permissions []string
}

// RoleDirectory resolves role references. Unknown ids are simply absent from
// the returned map.
type RoleDirectory interface {
	ResolveRoles(ctx context.Context, ids []int64) (map[int64]RoleGrant, error)
}

// Recorder receives resolution diagnostics.
type Recorder interface {
	UnresolvedRoles(n int)
	DirectoryDegraded(directory string)
	SnapshotResolved(outcome string)
}

// Resolver builds authorization snapshots from directory data. It keeps no
// snapshot state between calls.
type Resolver struct {
	roles   RoleDirectory
	tenants tenant.Directory
	logger  *slog.Logger
	metrics Recorder

	// Timeout bounds each directory lookup.
	Timeout time.Duration
	// Concurrency caps parallel resolutions in ResolveAll.
	Concurrency int

	now func() time.Time
}

// NewResolver constructs a Resolver. tenants and metrics may be nil.
func NewResolver(roles RoleDirectory, tenants tenant.Directory, logger *slog.Logger, metrics Recorder) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		roles:       roles,
		tenants:     tenants,
		logger:      logger,
		metrics:     metrics,
		Timeout:     DefaultTimeout,
		Concurrency: 8,
		now:         time.Now,
	}
}

// Resolve builds the snapshot of u. Role ids unknown to the directory are
// skipped and counted. A failing or slow directory yields an empty, degraded
// snapshot instead of an error. A nil user resolves to a nil snapshot.
func (r *Resolver) Resolve(ctx context.Context, u *users.User) *Snapshot {
	if u == nil {
		return nil
	}
	snap := newSnapshot(u.ID, r.now().UTC())
	logger := r.logger.With(slog.Int64("user_id", u.ID), slog.String("tenant_id", u.TenantID().String()))

	if ids := u.RoleIDs(); len(ids) > 0 {
		grants, err := r.lookupRoles(ctx, ids)
		if err != nil {
			snap.degrade(err)
			logger.Warn("authz role directory degraded", slog.Any("error", err))
			r.degraded("roles")
		} else {
			for _, id := range ids {
				grant, ok := grants[id]
				if !ok {
					snap.Unresolved++
					continue
				}
				snap.grant(grant)
			}
			if snap.Unresolved > 0 {
				logger.Warn("authz unresolved role references", slog.Int("unresolved", snap.Unresolved))
				if r.metrics != nil {
					r.metrics.UnresolvedRoles(snap.Unresolved)
				}
			}
		}
	}

	r.describeTenant(ctx, u.TenantID(), snap, logger)

	if r.metrics != nil {
		switch {
		case snap.Degraded:
			r.metrics.SnapshotResolved("degraded")
		case snap.Unresolved > 0:
			r.metrics.SnapshotResolved("partial")
		default:
			r.metrics.SnapshotResolved("complete")
		}
	}
	return snap
}

// ResolveAll resolves independent records concurrently. The result is
// index-aligned with list.
func (r *Resolver) ResolveAll(ctx context.Context, list []*users.User) []*Snapshot {
	out := make([]*Snapshot, len(list))
	var g errgroup.Group
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for i, u := range list {
		g.Go(func() error {
			out[i] = r.Resolve(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

type roleResult struct {
	grants map[int64]RoleGrant
	err    error
}

func (r *Resolver) lookupRoles(ctx context.Context, ids []int64) (map[int64]RoleGrant, error) {
	if r.roles == nil {
		return nil, fmt.Errorf("%w: no role directory configured", ErrDirectoryUnavailable)
	}
	timeout := r.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan roleResult, 1)
	go func() {
		grants, err := r.roles.ResolveRoles(ctx, ids)
		done <- roleResult{grants: grants, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, res.err)
		}
		return res.grants, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: lookup exceeded %s", ErrDirectoryUnavailable, timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, ctx.Err())
	}
}

func (r *Resolver) describeTenant(ctx context.Context, id tenant.ID, snap *Snapshot, logger *slog.Logger) {
	if r.tenants == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	info, err := r.tenants.ResolveTenant(ctx, id)
	switch {
	case err == nil:
		snap.TenantName = info.Name
		snap.TenantStatus = info.Status
	case errors.Is(err, tenant.ErrUnknown):
		logger.Debug("authz tenant unknown to directory")
	default:
		logger.Warn("authz tenant directory degraded", slog.Any("error", err))
		r.degraded("tenants")
	}
}

func (r *Resolver) degraded(directory string) {
	if r.metrics != nil {
		r.metrics.DirectoryDegraded(directory)
	}
}

func (r *Resolver) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}
