package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/odyssey-erp/odyssey-identity/internal/authz"
	"github.com/odyssey-erp/odyssey-identity/internal/shared"
	"github.com/odyssey-erp/odyssey-identity/internal/tenant"
	"github.com/odyssey-erp/odyssey-identity/internal/users"
)

// Service wraps authentication business rules.
type Service struct {
	users       UserFinder
	credentials users.Credentials
	resolver    SnapshotResolver
	logger      *slog.Logger
	metrics     Recorder

	decoyOnce sync.Once
	decoy     string
}

// decoyPassword seeds the secret verified for unknown login handles so both
// rejection paths pay the same hashing cost.
const decoyPassword = "odyssey-identity-decoy-credential"

// NewService constructs a new Service. metrics may be nil.
func NewService(finder UserFinder, credentials users.Credentials, resolver SnapshotResolver, logger *slog.Logger, metrics Recorder) *Service {
	if credentials == nil {
		credentials = users.BcryptCredentials{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: finder, credentials: credentials, resolver: resolver, logger: logger, metrics: metrics}
}

// Authenticate validates email/password credentials within the context
// tenant and returns the projected principal. An ineligible account is not
// an error: the principal reports Eligible=false and access control decides.
func (s *Service) Authenticate(ctx context.Context, email, password string) (authz.Principal, error) {
	if _, err := tenant.Require(ctx); err != nil {
		return authz.Principal{}, err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			s.verifyDecoy(password)
			s.record(OutcomeUnknownUser)
			return authz.Principal{}, shared.ErrInvalidCredentials
		}
		s.record(OutcomeError)
		return authz.Principal{}, err
	}
	if err := s.credentials.Verify(user.CredentialSecret, password); err != nil {
		s.record(OutcomeBadSecret)
		s.logger.Debug("credential verification failed", slog.Int64("user_id", user.ID))
		return authz.Principal{}, shared.ErrInvalidCredentials
	}
	snap := s.resolver.Resolve(ctx, user)
	principal := authz.Project(user, snap)
	if principal.Eligible {
		s.record(OutcomeSuccess)
	} else {
		s.record(OutcomeIneligible)
	}
	s.logger.Info("user authenticated",
		slog.Any("user", user),
		slog.Bool("eligible", principal.Eligible),
		slog.Bool("degraded", snap != nil && snap.Degraded))
	return principal, nil
}

func (s *Service) verifyDecoy(password string) {
	s.decoyOnce.Do(func() {
		secret, err := s.credentials.Hash(decoyPassword)
		if err != nil {
			s.logger.Error("hash decoy credential", slog.Any("error", err))
			return
		}
		s.decoy = secret
	})
	if s.decoy != "" {
		_ = s.credentials.Verify(s.decoy, password)
	}
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.Authentication(outcome)
	}
}
