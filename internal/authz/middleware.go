package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-identity/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-identity/internal/shared"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
)

// UserLoader loads users of the context tenant.
type UserLoader interface {
	Get(ctx context.Context, id int64) (*users.User, error)
}

type requestAuth struct {
	user     *users.User
	snapshot *Snapshot
}

type authContextKey struct{}

// WithSnapshot stores the acting user and its snapshot for the rest of the request.
func WithSnapshot(ctx context.Context, u *users.User, s *Snapshot) context.Context {
	return context.WithValue(ctx, authContextKey{}, requestAuth{user: u, snapshot: s})
}

// SnapshotFromContext returns the acting user's snapshot, if resolved.
func SnapshotFromContext(ctx context.Context) (*Snapshot, bool) {
	auth, ok := ctx.Value(authContextKey{}).(requestAuth)
	if !ok || auth.snapshot == nil {
		return nil, false
	}
	return auth.snapshot, true
}

// PrincipalFromContext projects the acting user of the request.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	auth, ok := ctx.Value(authContextKey{}).(requestAuth)
	if !ok || auth.user == nil {
		return Principal{}, false
	}
	return Project(auth.user, auth.snapshot), true
}

// ActorMiddleware reads the acting user id from the request header.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(shared.ActorHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "actor header malformed")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), id)))
	})
}

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Users    UserLoader
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireAny ensures the current user has at least one of the required
// permissions. Names are matched exactly, as Snapshot.HasPermission does.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require("authz require any", normalizePermissions(perms), hasAnyPermission)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require("authz require all", normalizePermissions(perms), hasAllPermissions)
}

func (m Middleware) require(op string, normalized []string, allowed func(snap *Snapshot, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, snap, err := m.authorize(r)
			if err != nil {
				if !errors.Is(err, shared.ErrActorMissing) && !errors.Is(err, httpx.ErrForbidden) {
					m.logger().Error("authz load actor", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if allowed(snap, normalized) {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			m.logger().Debug(op+" denied", slog.Int64("user_id", snap.UserID), slog.Any("required", normalized))
			httpx.Problem(w, http.StatusForbidden, http.StatusText(http.StatusForbidden), "")
		})
	}
}

func (m Middleware) authorize(r *http.Request) (context.Context, *Snapshot, error) {
	ctx := r.Context()
	if snap, ok := SnapshotFromContext(ctx); ok {
		return ctx, snap, nil
	}
	userID, ok := shared.ActorFromContext(ctx)
	if !ok {
		return ctx, nil, shared.ErrActorMissing
	}
	u, err := m.Users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ctx, nil, fmt.Errorf("actor %d: %w", userID, httpx.ErrForbidden)
		}
		return ctx, nil, err
	}
	if !u.Eligible() {
		return ctx, nil, fmt.Errorf("actor %d ineligible: %w", userID, httpx.ErrForbidden)
	}
	snap := m.Resolver.Resolve(ctx, u)
	return WithSnapshot(ctx, u, snap), snap, nil
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAnyPermission(snap *Snapshot, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if snap.HasPermission(r) {
			return true
		}
	}
	return false
}

func hasAllPermissions(snap *Snapshot, required []string) bool {
	for _, r := range required {
		if !snap.HasPermission(r) {
			return false
		}
	}
	return true
}
