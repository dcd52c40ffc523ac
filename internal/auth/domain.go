package auth

import (
	"context"

	"github.com/odyssey-erp/odyssey-identity/internal/authz"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
)

// UserFinder looks up users of the context tenant by login handle.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
}

// SnapshotResolver builds the authorization snapshot of a user.
type SnapshotResolver interface {
	Resolve(ctx context.Context, u *users.User) *authz.Snapshot
}

// Recorder receives authentication outcomes.
type Recorder interface {
	Authentication(outcome string)
}

// Authentication outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeIneligible  = "ineligible"
	OutcomeUnknownUser = "unknown_user"
	OutcomeBadSecret   = "bad_secret"
	OutcomeError       = "error"
)
